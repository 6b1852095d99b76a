package resource

import (
	"time"

	"github.com/atelier-ai/atelier/internal/permission"
)

// Resource is an app or dataset node in a team's folder tree. ParentID nil
// means the node sits at the team root; root nodes are unaffected by
// inheritance and their own collaborator rows are authoritative.
type Resource struct {
	ID            int64
	Type          permission.ResourceType
	TeamID        int64
	ParentID      *int64
	Kind          string
	Name          string
	Intro         string
	OwnerMemberID int64
	Inherit       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Domain describes one resource collection. The closed set of folder-like
// kind variants differs between apps and datasets; the permission engine
// only ever consumes the predicate.
type Domain struct {
	Type        permission.ResourceType
	Kinds       []string
	FolderKinds []string
}

// IsFolder reports whether the kind is one of the domain's folder variants.
func (d Domain) IsFolder(kind string) bool {
	for _, k := range d.FolderKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ValidKind reports whether the kind belongs to the domain.
func (d Domain) ValidKind(kind string) bool {
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Ref converts the resource to the engine's view of it.
func (d Domain) Ref(r Resource) permission.ResourceRef {
	return permission.ResourceRef{
		ID:            r.ID,
		Type:          r.Type,
		TeamID:        r.TeamID,
		ParentID:      r.ParentID,
		OwnerMemberID: r.OwnerMemberID,
		IsFolder:      d.IsFolder(r.Kind),
		Inherit:       r.Inherit,
	}
}

// Summary is one row of a listing: the resource annotated with the actor's
// effective permission and the privately-held indicator.
type Summary struct {
	Resource
	Permission permission.Effective
	Private    bool
}
