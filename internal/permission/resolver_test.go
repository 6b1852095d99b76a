package permission

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type failingMemberships struct {
	fakeMemberships
	err error
}

func (f *failingMemberships) MemberGroups(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	return nil, f.err
}

func TestResolveBuildsClosure(t *testing.T) {
	members := &fakeMemberships{
		groups: map[int64][]int64{10: {20, 21}},
		orgs:   map[int64][]int64{10: {30, 31, 32}},
	}
	r := NewResolver(members)

	closure, err := r.Resolve(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if closure.TeamID != 1 || closure.MemberID != 10 {
		t.Fatalf("closure identity = %+v", closure)
	}
	if len(closure.GroupIDs) != 2 || len(closure.OrgIDs) != 3 {
		t.Fatalf("closure sets = %+v", closure)
	}
}

func TestResolvePreservesResolutionSentinel(t *testing.T) {
	members := &failingMemberships{
		err: fmt.Errorf("%w: member 10 in team 1", ErrPrincipalResolution),
	}
	r := NewResolver(members)

	_, err := r.Resolve(context.Background(), 1, 10)
	if !errors.Is(err, ErrPrincipalResolution) {
		t.Fatalf("expected resolution sentinel, got %v", err)
	}
}

func TestResolveWrapsTransientErrors(t *testing.T) {
	members := &failingMemberships{err: errors.New("connection reset")}
	r := NewResolver(members)

	_, err := r.Resolve(context.Background(), 1, 10)
	if err == nil || errors.Is(err, ErrPrincipalResolution) {
		t.Fatalf("transient error mapped wrong: %v", err)
	}
}
