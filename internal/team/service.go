package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/atelier-ai/atelier/internal/permission"
)

// Store is the persistence surface the service needs. Satisfied by
// *Repository and by map-backed fakes in tests.
type Store interface {
	GetTeam(ctx context.Context, id int64) (Team, error)
	MemberExists(ctx context.Context, teamID, memberID int64) (bool, error)
	MemberGroups(ctx context.Context, teamID, memberID int64) ([]int64, error)
	MemberOrgUnitsWithAncestors(ctx context.Context, teamID, memberID int64) ([]int64, error)
	PrincipalNames(ctx context.Context, teamID int64, memberIDs, groupIDs, orgIDs []int64) (PrincipalNames, error)
}

// Service implements the membership contract the permission engine consumes.
// Unknown team/member pairs surface as permission.ErrPrincipalResolution.
type Service struct {
	store Store
}

// NewService constructs the membership service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// IsTeamOwner reports whether the member owns the team.
func (s *Service) IsTeamOwner(ctx context.Context, teamID, memberID int64) (bool, error) {
	t, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: team %d", permission.ErrPrincipalResolution, teamID)
	}
	if err != nil {
		return false, err
	}
	return t.OwnerMemberID == memberID, nil
}

// MemberGroups returns the member's direct group memberships within the team.
func (s *Service) MemberGroups(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	if err := s.requireMember(ctx, teamID, memberID); err != nil {
		return nil, err
	}
	return s.store.MemberGroups(ctx, teamID, memberID)
}

// MemberOrgUnitsWithAncestors returns the member's org units expanded with
// every ancestor unit.
func (s *Service) MemberOrgUnitsWithAncestors(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	if err := s.requireMember(ctx, teamID, memberID); err != nil {
		return nil, err
	}
	return s.store.MemberOrgUnitsWithAncestors(ctx, teamID, memberID)
}

// Names resolves display names for principal id sets.
func (s *Service) Names(ctx context.Context, teamID int64, memberIDs, groupIDs, orgIDs []int64) (PrincipalNames, error) {
	return s.store.PrincipalNames(ctx, teamID, memberIDs, groupIDs, orgIDs)
}

func (s *Service) requireMember(ctx context.Context, teamID, memberID int64) error {
	ok, err := s.store.MemberExists(ctx, teamID, memberID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: member %d in team %d", permission.ErrPrincipalResolution, memberID, teamID)
	}
	return nil
}
