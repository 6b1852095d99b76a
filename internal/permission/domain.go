package permission

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ResourceType distinguishes the two resource collections sharing the engine.
type ResourceType string

const (
	ResourceTypeApp     ResourceType = "app"
	ResourceTypeDataset ResourceType = "dataset"
)

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	return t == ResourceTypeApp || t == ResourceTypeDataset
}

// PrincipalKind identifies which membership axis a grant is attached to.
type PrincipalKind string

const (
	PrincipalMember PrincipalKind = "member"
	PrincipalGroup  PrincipalKind = "group"
	PrincipalOrg    PrincipalKind = "org"
)

// Principal is a grant holder: a team member, a member group, or an
// organizational unit.
type Principal struct {
	Kind PrincipalKind
	ID   int64
}

func (p Principal) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// Collaborator is a persisted (resource, principal, role) grant row.
// Exactly one of MemberID, GroupID, OrgID is set.
type Collaborator struct {
	ID           int64
	ResourceType ResourceType
	ResourceID   int64
	TeamID       int64
	MemberID     *int64
	GroupID      *int64
	OrgID        *int64
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the single principal reference of the row, or
// ErrInvariantViolation when zero or more than one reference is set.
func (c Collaborator) Principal() (Principal, error) {
	var (
		p Principal
		n int
	)
	if c.MemberID != nil {
		p = Principal{Kind: PrincipalMember, ID: *c.MemberID}
		n++
	}
	if c.GroupID != nil {
		p = Principal{Kind: PrincipalGroup, ID: *c.GroupID}
		n++
	}
	if c.OrgID != nil {
		p = Principal{Kind: PrincipalOrg, ID: *c.OrgID}
		n++
	}
	if n != 1 {
		return Principal{}, fmt.Errorf("%w: collaborator %d on %s/%d has %d principal references",
			ErrInvariantViolation, c.ID, c.ResourceType, c.ResourceID, n)
	}
	return p, nil
}

// Grant is the desired state of one collaborator row, used by Sync, Grant
// and SeedFromParent.
type Grant struct {
	Principal Principal
	Role      Role
}

// SetPrincipal writes p into the matching reference field, clearing the others.
func (c *Collaborator) SetPrincipal(p Principal) {
	c.MemberID, c.GroupID, c.OrgID = nil, nil, nil
	id := p.ID
	switch p.Kind {
	case PrincipalMember:
		c.MemberID = &id
	case PrincipalGroup:
		c.GroupID = &id
	case PrincipalOrg:
		c.OrgID = &id
	}
}

// Closure is the set of principal identifiers through which one team member
// may hold a grant: the member itself, every group containing it, and every
// organizational unit containing it plus those units' ancestors. It is
// recomputed per request and never cached across requests, because
// membership is mutable.
type Closure struct {
	TeamID   int64
	MemberID int64
	GroupIDs []int64
	OrgIDs   []int64
}

// Contains reports whether the principal can match one of the closure's
// identifiers.
func (c Closure) Contains(p Principal) bool {
	switch p.Kind {
	case PrincipalMember:
		return p.ID == c.MemberID
	case PrincipalGroup:
		for _, id := range c.GroupIDs {
			if id == p.ID {
				return true
			}
		}
	case PrincipalOrg:
		for _, id := range c.OrgIDs {
			if id == p.ID {
				return true
			}
		}
	}
	return false
}

// ResourceRef is the engine's view of a resource node. ParentID nil means
// the node sits at the team root.
type ResourceRef struct {
	ID            int64
	Type          ResourceType
	TeamID        int64
	ParentID      *int64
	OwnerMemberID int64
	IsFolder      bool
	Inherit       bool
}

// Tree is the capability interface the resource domains implement. Which
// kind variants count as folders differs between apps and datasets; the
// engine never branches on kind itself.
type Tree interface {
	Get(ctx context.Context, typ ResourceType, id int64) (ResourceRef, error)
	Children(ctx context.Context, typ ResourceType, parentID int64) ([]ResourceRef, error)
}

// Memberships is the slice of the team service the engine consumes.
type Memberships interface {
	IsTeamOwner(ctx context.Context, teamID, memberID int64) (bool, error)
	MemberGroups(ctx context.Context, teamID, memberID int64) ([]int64, error)
	MemberOrgUnitsWithAncestors(ctx context.Context, teamID, memberID int64) ([]int64, error)
}

// Sentinel errors of the engine.
var (
	// ErrPrincipalResolution marks an actor/team pair that cannot be
	// resolved. Identity is wrong, not transient; callers surface it as an
	// authorization failure and do not retry.
	ErrPrincipalResolution = errors.New("permission: principal resolution failed")
	// ErrResourceNotFound marks a target or ancestor resource that is gone,
	// typically racing a concurrent delete.
	ErrResourceNotFound = errors.New("permission: resource not found")
	// ErrInvariantViolation marks a collaborator row with zero or multiple
	// principal references. Logged and surfaced, never silently repaired.
	ErrInvariantViolation = errors.New("permission: collaborator invariant violation")
	// ErrNotFolder rejects sync on a leaf resource.
	ErrNotFolder = errors.New("permission: resource is not a folder")
)
