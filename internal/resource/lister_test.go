package resource

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/atelier-ai/atelier/internal/permission"
)

func ptr(v int64) *int64 { return &v }

var testDomain = Domain{
	Type:        permission.ResourceTypeApp,
	Kinds:       []string{"simple", "workflow", "folder"},
	FolderKinds: []string{"folder"},
}

// fakeCatalog applies the structural query semantics in memory and records
// the last query for assertions.
type fakeCatalog struct {
	domain    Domain
	resources []Resource
	lastQuery ListQuery
}

func (f *fakeCatalog) Domain() Domain { return f.domain }

func (f *fakeCatalog) List(ctx context.Context, q ListQuery) ([]Resource, error) {
	f.lastQuery = q
	var out []Resource
	for _, res := range f.resources {
		if res.TeamID != q.TeamID || res.DeletedAt != nil {
			continue
		}
		if q.Kind != "" && res.Kind != q.Kind {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(res.Name), strings.ToLower(q.Search)) {
			continue
		}
		if !f.inScope(res, q) {
			continue
		}
		out = append(out, res)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCatalog) inScope(res Resource, q ListQuery) bool {
	if q.ParentScoped {
		if q.ParentID == nil {
			return res.ParentID == nil
		}
		return res.ParentID != nil && *res.ParentID == *q.ParentID
	}
	if q.RestrictIDs == nil {
		return true
	}
	for _, id := range q.RestrictIDs {
		if id == res.ID {
			return true
		}
		if res.Inherit && res.ParentID != nil && *res.ParentID == id {
			return true
		}
	}
	return res.OwnerMemberID == q.OwnerMemberID
}

func (f *fakeCatalog) ByIDs(ctx context.Context, ids []int64) ([]Resource, error) {
	var out []Resource
	for _, res := range f.resources {
		if res.DeletedAt != nil {
			continue
		}
		for _, id := range ids {
			if res.ID == id {
				out = append(out, res)
			}
		}
	}
	return out, nil
}

type fakePermStore struct {
	rows []permission.Collaborator
}

func (f *fakePermStore) InTx(ctx context.Context, fn func(permission.Store) error) error {
	return fn(f)
}

func (f *fakePermStore) ListForResources(ctx context.Context, typ permission.ResourceType, ids []int64) ([]permission.Collaborator, error) {
	var out []permission.Collaborator
	for _, row := range f.rows {
		for _, id := range ids {
			if row.ResourceID == id {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakePermStore) ListForTeam(ctx context.Context, typ permission.ResourceType, teamID int64) ([]permission.Collaborator, error) {
	return f.rows, nil
}

func (f *fakePermStore) Upsert(ctx context.Context, c permission.Collaborator) error {
	return nil
}

func (f *fakePermStore) Delete(ctx context.Context, typ permission.ResourceType, resourceID int64, p permission.Principal) error {
	return nil
}

func (f *fakePermStore) DeleteForResource(ctx context.Context, typ permission.ResourceType, resourceID int64) error {
	return nil
}

func (f *fakePermStore) SetInheritFlag(ctx context.Context, typ permission.ResourceType, resourceID int64, inherit bool) error {
	return nil
}

type fakeMembers struct {
	ownerID int64
	groups  []int64
	orgs    []int64
}

func (f *fakeMembers) IsTeamOwner(ctx context.Context, teamID, memberID int64) (bool, error) {
	return memberID == f.ownerID, nil
}

func (f *fakeMembers) MemberGroups(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	return f.groups, nil
}

func (f *fakeMembers) MemberOrgUnitsWithAncestors(ctx context.Context, teamID, memberID int64) ([]int64, error) {
	return f.orgs, nil
}

type catalogTree struct {
	catalog *fakeCatalog
}

func (t catalogTree) Get(ctx context.Context, typ permission.ResourceType, id int64) (permission.ResourceRef, error) {
	for _, res := range t.catalog.resources {
		if res.ID == id && res.DeletedAt != nil {
			break
		}
		if res.ID == id {
			return t.catalog.domain.Ref(res), nil
		}
	}
	return permission.ResourceRef{}, fmt.Errorf("%w: %s/%d", permission.ErrResourceNotFound, typ, id)
}

func (t catalogTree) Children(ctx context.Context, typ permission.ResourceType, parentID int64) ([]permission.ResourceRef, error) {
	var out []permission.ResourceRef
	for _, res := range t.catalog.resources {
		if res.DeletedAt == nil && res.ParentID != nil && *res.ParentID == parentID {
			out = append(out, t.catalog.domain.Ref(res))
		}
	}
	return out, nil
}

type countDrops struct{ n int }

func (c *countDrops) IncListDrops() { c.n++ }

func memberGrant(resourceID, memberID int64, role permission.Role) permission.Collaborator {
	c := permission.Collaborator{ResourceType: permission.ResourceTypeApp, ResourceID: resourceID, TeamID: 1, Role: role}
	c.SetPrincipal(permission.Principal{Kind: permission.PrincipalMember, ID: memberID})
	return c
}

func listerFixture(rows []permission.Collaborator, resources []Resource) (*Lister, *fakeCatalog, *countDrops) {
	catalog := &fakeCatalog{domain: testDomain, resources: resources}
	store := &fakePermStore{rows: rows}
	members := &fakeMembers{ownerID: 100}
	perm := permission.NewService(store, members, catalogTree{catalog: catalog}, nil, nil, nil, nil)
	drops := &countDrops{}
	return NewLister(perm, drops, nil, catalog), catalog, drops
}

func fixtureResources() []Resource {
	now := time.Now()
	return []Resource{
		{ID: 1, Type: permission.ResourceTypeApp, TeamID: 1, Kind: "folder", Name: "Research", OwnerMemberID: 100, Inherit: true, UpdatedAt: now},
		{ID: 2, Type: permission.ResourceTypeApp, TeamID: 1, ParentID: ptr(1), Kind: "simple", Name: "Summarizer", OwnerMemberID: 100, Inherit: true, UpdatedAt: now},
		{ID: 3, Type: permission.ResourceTypeApp, TeamID: 1, ParentID: ptr(1), Kind: "simple", Name: "Classifier", OwnerMemberID: 100, Inherit: false, UpdatedAt: now},
		{ID: 4, Type: permission.ResourceTypeApp, TeamID: 1, Kind: "simple", Name: "Scratchpad", OwnerMemberID: 10, Inherit: true, UpdatedAt: now},
	}
}

func TestListTeamOwnerSeesEverythingAtRoot(t *testing.T) {
	lister, catalog, _ := listerFixture(nil, fixtureResources())

	out, err := lister.List(context.Background(), permission.ResourceTypeApp, ListFilter{TeamID: 1, MemberID: 100})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 { // folder 1 and root app 4
		t.Fatalf("root listing = %d rows", len(out))
	}
	if catalog.lastQuery.RestrictIDs != nil {
		t.Fatalf("team owner query must not be restricted")
	}
	for _, s := range out {
		if !s.Permission.IsOwner {
			t.Fatalf("team owner lost owner flag on %d", s.ID)
		}
	}
}

func TestListFiltersUnreadable(t *testing.T) {
	rows := []permission.Collaborator{memberGrant(1, 10, permission.RoleRead)}
	lister, catalog, _ := listerFixture(rows, fixtureResources())

	out, err := lister.List(context.Background(), permission.ResourceTypeApp, ListFilter{TeamID: 1, MemberID: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Folder 1 carries the row, app 4 is owned. Nothing else at root.
	if len(out) != 2 {
		t.Fatalf("root listing = %d rows, want 2", len(out))
	}
	if catalog.lastQuery.RestrictIDs == nil {
		t.Fatalf("non-owner query must be restricted")
	}
	if catalog.lastQuery.OwnerMemberID != 10 {
		t.Fatalf("owned-resource scope missing")
	}
}

func TestListInheritingChildReadableThroughParent(t *testing.T) {
	rows := []permission.Collaborator{memberGrant(1, 10, permission.RoleWrite)}
	lister, _, _ := listerFixture(rows, fixtureResources())

	out, err := lister.List(context.Background(), permission.ResourceTypeApp, ListFilter{TeamID: 1, MemberID: 10, ParentID: ptr(1)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// App 2 inherits the folder grant; app 3 opted out and has no rows.
	if len(out) != 1 || out[0].ID != 2 {
		t.Fatalf("folder listing = %+v", out)
	}
	if out[0].Permission.Role != permission.RoleWrite {
		t.Fatalf("inherited role = %s", out[0].Permission.Role)
	}
	if !out[0].Private {
		t.Fatalf("single-row parent should read private")
	}
}

func TestListDropsLeafWithVanishedParent(t *testing.T) {
	resources := fixtureResources()
	gone := time.Now()
	resources[0].DeletedAt = &gone // folder 1 deleted under the listing

	rows := []permission.Collaborator{memberGrant(2, 10, permission.RoleRead)}
	lister, _, drops := listerFixture(rows, resources)

	out, err := lister.List(context.Background(), permission.ResourceTypeApp, ListFilter{TeamID: 1, MemberID: 10, ParentID: ptr(1)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("leaf with vanished parent listed: %+v", out)
	}
	if drops.n != 1 {
		t.Fatalf("drop counter = %d", drops.n)
	}
}

func TestListSearchSpansTeamAndIsCapped(t *testing.T) {
	lister, catalog, _ := listerFixture(nil, fixtureResources())

	out, err := lister.List(context.Background(), permission.ResourceTypeApp, ListFilter{TeamID: 1, MemberID: 100, Search: "class"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ID != 3 {
		t.Fatalf("search result = %+v", out)
	}
	if catalog.lastQuery.ParentScoped {
		t.Fatalf("search must span the team, not one folder")
	}
	if catalog.lastQuery.Limit != searchLimit {
		t.Fatalf("search limit = %d, want %d", catalog.lastQuery.Limit, searchLimit)
	}
}

func TestListUnknownTypeFails(t *testing.T) {
	lister, _, _ := listerFixture(nil, nil)

	_, err := lister.List(context.Background(), permission.ResourceTypeDataset, ListFilter{TeamID: 1, MemberID: 100})
	if err == nil {
		t.Fatalf("unknown resource type accepted")
	}
}
