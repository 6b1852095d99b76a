package permission

import (
	"context"
	"errors"
	"fmt"
)

// Resolver computes the principal closure of one team member. Read-only;
// the org side already includes ancestor units because an organizational
// grant reaches every member beneath it in the org tree.
type Resolver struct {
	memberships Memberships
}

// NewResolver constructs a resolver over the team membership service.
func NewResolver(memberships Memberships) *Resolver {
	return &Resolver{memberships: memberships}
}

// Resolve returns the closure for the member within the team. Fails with
// ErrPrincipalResolution when the pair does not exist.
func (r *Resolver) Resolve(ctx context.Context, teamID, memberID int64) (Closure, error) {
	groups, err := r.memberships.MemberGroups(ctx, teamID, memberID)
	if err != nil {
		return Closure{}, resolveErr(teamID, memberID, err)
	}
	orgs, err := r.memberships.MemberOrgUnitsWithAncestors(ctx, teamID, memberID)
	if err != nil {
		return Closure{}, resolveErr(teamID, memberID, err)
	}
	return Closure{
		TeamID:   teamID,
		MemberID: memberID,
		GroupIDs: groups,
		OrgIDs:   orgs,
	}, nil
}

func resolveErr(teamID, memberID int64, err error) error {
	if errors.Is(err, ErrPrincipalResolution) {
		return fmt.Errorf("%w: member %d in team %d", ErrPrincipalResolution, memberID, teamID)
	}
	return fmt.Errorf("permission: resolve principals for member %d in team %d: %w", memberID, teamID, err)
}
