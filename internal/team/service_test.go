package team

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/atelier-ai/atelier/internal/permission"
)

type stubStore struct {
	teams   map[int64]Team
	members map[int64][]int64 // teamID -> member ids
	groups  map[int64][]int64 // memberID -> group ids
	orgs    map[int64][]int64 // memberID -> org unit ids with ancestors
	names   PrincipalNames
}

func (s *stubStore) GetTeam(ctx context.Context, id int64) (Team, error) {
	t, ok := s.teams[id]
	if !ok {
		return Team{}, pgx.ErrNoRows
	}
	return t, nil
}

func (s *stubStore) MemberExists(ctx context.Context, teamID, memberID int64) (bool, error) {
	for _, id := range s.members[teamID] {
		if id == memberID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStore) MemberGroups(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	return s.groups[memberID], nil
}

func (s *stubStore) MemberOrgUnitsWithAncestors(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	return s.orgs[memberID], nil
}

func (s *stubStore) PrincipalNames(ctx context.Context, teamID int64, memberIDs, groupIDs, orgIDs []int64) (PrincipalNames, error) {
	return s.names, nil
}

func fixtureStore() *stubStore {
	return &stubStore{
		teams:   map[int64]Team{1: {ID: 1, Name: "atelier", OwnerMemberID: 100}},
		members: map[int64][]int64{1: {100, 10}},
		groups:  map[int64][]int64{10: {20}},
		orgs:    map[int64][]int64{10: {30, 31}},
	}
}

func TestIsTeamOwner(t *testing.T) {
	svc := NewService(fixtureStore())

	owner, err := svc.IsTeamOwner(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("owner check: %v", err)
	}
	if !owner {
		t.Fatalf("member 100 should own team 1")
	}

	owner, err = svc.IsTeamOwner(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("non-owner check: %v", err)
	}
	if owner {
		t.Fatalf("member 10 must not own team 1")
	}
}

func TestIsTeamOwnerUnknownTeam(t *testing.T) {
	svc := NewService(fixtureStore())

	_, err := svc.IsTeamOwner(context.Background(), 99, 100)
	if !errors.Is(err, permission.ErrPrincipalResolution) {
		t.Fatalf("unknown team: %v", err)
	}
}

func TestMembershipLookupsRequireMember(t *testing.T) {
	svc := NewService(fixtureStore())

	groups, err := svc.MemberGroups(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 1 || groups[0] != 20 {
		t.Fatalf("groups = %v", groups)
	}

	orgs, err := svc.MemberOrgUnitsWithAncestors(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("orgs: %v", err)
	}
	if len(orgs) != 2 {
		t.Fatalf("orgs = %v", orgs)
	}

	if _, err := svc.MemberGroups(context.Background(), 1, 55); !errors.Is(err, permission.ErrPrincipalResolution) {
		t.Fatalf("foreign member groups: %v", err)
	}
	if _, err := svc.MemberOrgUnitsWithAncestors(context.Background(), 1, 55); !errors.Is(err, permission.ErrPrincipalResolution) {
		t.Fatalf("foreign member orgs: %v", err)
	}
}
