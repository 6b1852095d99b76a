package permission

import "testing"

func ptr(v int64) *int64 { return &v }

func memberRow(resourceID, memberID int64, role Role) Collaborator {
	c := Collaborator{ResourceType: ResourceTypeApp, ResourceID: resourceID, TeamID: 1, Role: role}
	c.SetPrincipal(Principal{Kind: PrincipalMember, ID: memberID})
	return c
}

func groupRow(resourceID, groupID int64, role Role) Collaborator {
	c := Collaborator{ResourceType: ResourceTypeApp, ResourceID: resourceID, TeamID: 1, Role: role}
	c.SetPrincipal(Principal{Kind: PrincipalGroup, ID: groupID})
	return c
}

func orgRow(resourceID, orgID int64, role Role) Collaborator {
	c := Collaborator{ResourceType: ResourceTypeApp, ResourceID: resourceID, TeamID: 1, Role: role}
	c.SetPrincipal(Principal{Kind: PrincipalOrg, ID: orgID})
	return c
}

func TestEvaluateCombinesClosureRows(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10, GroupIDs: []int64{20}, OrgIDs: []int64{30}}
	res := ResourceRef{ID: 5, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99}
	rows := []Collaborator{
		memberRow(5, 10, RoleRead),
		groupRow(5, 20, RoleWrite),
		orgRow(5, 31, RoleManage), // not in closure
	}

	eff := Evaluate(res, closure, rows, false, nil)
	if eff.Role != RoleWrite {
		t.Fatalf("combined role = %s, want write", eff.Role)
	}
	if eff.IsOwner {
		t.Fatalf("non-owner evaluated as owner")
	}
}

func TestEvaluateResourceOwner(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	res := ResourceRef{ID: 5, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 10}

	eff := Evaluate(res, closure, nil, false, nil)
	if !eff.IsOwner || eff.MaxRole() != RoleManage {
		t.Fatalf("resource owner got %+v", eff)
	}
}

func TestEvaluateTeamOwnerBypassesRows(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	res := ResourceRef{ID: 5, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99}

	eff := Evaluate(res, closure, nil, true, nil)
	if !eff.IsOwner || !eff.HasManage() {
		t.Fatalf("team owner got %+v", eff)
	}
}

func TestEvaluateInheritingLeafNeverBelowParent(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	parent := ResourceRef{ID: 1, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, IsFolder: true, Inherit: true}
	leaf := ResourceRef{ID: 2, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, ParentID: ptr(1), Inherit: true}

	for _, parentRole := range []Role{RoleNone, RoleRead, RoleWrite, RoleManage} {
		rows := []Collaborator{memberRow(1, 10, parentRole)}
		eff := Evaluate(leaf, closure, rows, false, &parent)
		if parentRole.HasRead() && !eff.HasRead() {
			t.Fatalf("parent %s readable but leaf is not", parentRole)
		}
		if parentRole.HasWrite() && !eff.HasWrite() {
			t.Fatalf("parent %s writable but leaf is not", parentRole)
		}
		if parentRole.HasManage() && !eff.HasManage() {
			t.Fatalf("parent %s manageable but leaf is not", parentRole)
		}
	}
}

func TestEvaluateLocalGrantAddsToInherited(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	parent := ResourceRef{ID: 1, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, IsFolder: true, Inherit: true}
	leaf := ResourceRef{ID: 2, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, ParentID: ptr(1), Inherit: true}

	rows := []Collaborator{
		memberRow(1, 10, RoleRead),  // inherited
		memberRow(2, 10, RoleWrite), // local override
	}
	eff := Evaluate(leaf, closure, rows, false, &parent)
	if eff.Role != RoleWrite {
		t.Fatalf("override role = %s, want write", eff.Role)
	}

	// The local row cannot shrink the inherited role.
	rows = []Collaborator{
		memberRow(1, 10, RoleManage),
		memberRow(2, 10, RoleRead),
	}
	eff = Evaluate(leaf, closure, rows, false, &parent)
	if eff.Role != RoleManage {
		t.Fatalf("shrunk inherited role to %s", eff.Role)
	}
}

func TestEvaluateOwnedParentFoldsAsManage(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	parent := ResourceRef{ID: 1, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 10, IsFolder: true, Inherit: true}
	leaf := ResourceRef{ID: 2, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, ParentID: ptr(1), Inherit: true}

	eff := Evaluate(leaf, closure, nil, false, &parent)
	if eff.IsOwner {
		t.Fatalf("leaf owner flag must not leak from parent ownership")
	}
	if eff.Role != RoleManage {
		t.Fatalf("owned parent folded to %s, want manage", eff.Role)
	}
}

func TestEvaluateNonInheritingLeafIgnoresParent(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	parent := ResourceRef{ID: 1, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, IsFolder: true, Inherit: true}
	leaf := ResourceRef{ID: 2, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, ParentID: ptr(1), Inherit: false}

	rows := []Collaborator{memberRow(1, 10, RoleManage)}
	eff := Evaluate(leaf, closure, rows, false, &parent)
	if eff.Role != RoleNone {
		t.Fatalf("opted-out leaf inherited %s", eff.Role)
	}
}

func TestEvaluateSkipsMalformedRows(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	res := ResourceRef{ID: 5, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99}

	malformed := Collaborator{ResourceType: ResourceTypeApp, ResourceID: 5, TeamID: 1, Role: RoleManage}
	malformed.MemberID = ptr(10)
	malformed.GroupID = ptr(20)

	rows := []Collaborator{malformed, memberRow(5, 10, RoleRead)}
	eff := Evaluate(res, closure, rows, false, nil)
	if eff.Role != RoleRead {
		t.Fatalf("malformed row contributed: got %s", eff.Role)
	}
}

func TestPrivateIndicator(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	folder := ResourceRef{ID: 1, Type: ResourceTypeApp, TeamID: 1, IsFolder: true}
	leaf := ResourceRef{ID: 2, Type: ResourceTypeApp, TeamID: 1, ParentID: ptr(1), Inherit: true}

	b := NewBatch(closure, false, []Collaborator{memberRow(1, 10, RoleManage)}, []ResourceRef{folder})
	if !b.Private(folder) {
		t.Fatalf("single-row folder should be private")
	}
	if !b.Private(leaf) {
		t.Fatalf("inheriting leaf privacy must follow the parent")
	}

	b = NewBatch(closure, false, []Collaborator{
		memberRow(1, 10, RoleManage),
		groupRow(1, 20, RoleRead),
	}, []ResourceRef{folder})
	if b.Private(folder) {
		t.Fatalf("two-row folder should not be private")
	}
	if b.Private(leaf) {
		t.Fatalf("inheriting leaf should mirror shared parent")
	}
}

func TestBatchMemoizesParentEvaluation(t *testing.T) {
	closure := Closure{TeamID: 1, MemberID: 10}
	parent := ResourceRef{ID: 1, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, IsFolder: true, Inherit: true}
	rows := []Collaborator{memberRow(1, 10, RoleWrite)}

	b := NewBatch(closure, false, rows, []ResourceRef{parent})
	for i := int64(2); i < 10; i++ {
		leaf := ResourceRef{ID: i, Type: ResourceTypeApp, TeamID: 1, OwnerMemberID: 99, ParentID: ptr(1), Inherit: true}
		if eff := b.Evaluate(leaf); eff.Role != RoleWrite {
			t.Fatalf("leaf %d role = %s, want write", i, eff.Role)
		}
	}
	if len(b.parentMemo) != 1 {
		t.Fatalf("memo size = %d, want 1", len(b.parentMemo))
	}
}

func TestClosureContains(t *testing.T) {
	c := Closure{TeamID: 1, MemberID: 10, GroupIDs: []int64{20, 21}, OrgIDs: []int64{30}}
	if !c.Contains(Principal{Kind: PrincipalMember, ID: 10}) {
		t.Fatalf("member not contained")
	}
	if c.Contains(Principal{Kind: PrincipalMember, ID: 11}) {
		t.Fatalf("foreign member contained")
	}
	if !c.Contains(Principal{Kind: PrincipalGroup, ID: 21}) {
		t.Fatalf("group not contained")
	}
	if !c.Contains(Principal{Kind: PrincipalOrg, ID: 30}) {
		t.Fatalf("org not contained")
	}
	if c.Contains(Principal{Kind: PrincipalOrg, ID: 31}) {
		t.Fatalf("foreign org contained")
	}
}
