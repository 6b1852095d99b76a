package permission

// Evaluation is pure: given the closure, the relevant rows and the resource
// graph slice, it performs no I/O. Callers fetch rows and parents in bulk
// and reuse one Batch across as many resources as they like.

// Batch evaluates effective permission for many resources that share one
// team and one actor. Parents of inheriting leaves are resolved once per
// distinct parent id, not once per child.
type Batch struct {
	closure    Closure
	teamOwner  bool
	rows       map[int64][]Collaborator
	parents    map[int64]ResourceRef
	parentMemo map[int64]Effective
}

// NewBatch builds a batch from one bulk row fetch. rows may span any number
// of resources; parents holds the distinct parent resources of the
// inheriting leaves about to be evaluated.
func NewBatch(closure Closure, teamOwner bool, rows []Collaborator, parents []ResourceRef) *Batch {
	byResource := make(map[int64][]Collaborator, len(rows))
	for _, row := range rows {
		byResource[row.ResourceID] = append(byResource[row.ResourceID], row)
	}
	parentRefs := make(map[int64]ResourceRef, len(parents))
	for _, p := range parents {
		parentRefs[p.ID] = p
	}
	return &Batch{
		closure:    closure,
		teamOwner:  teamOwner,
		rows:       byResource,
		parents:    parentRefs,
		parentMemo: make(map[int64]Effective, len(parents)),
	}
}

// Evaluate computes the actor's effective permission on res.
func (b *Batch) Evaluate(res ResourceRef) Effective {
	if b.teamOwner || res.OwnerMemberID == b.closure.MemberID {
		return Effective{Role: RoleManage, IsOwner: true}
	}

	own := b.ownRole(res.ID)

	// Inheriting leaves add the parent's effective role on top of their own
	// rows. Folder ACLs are materialized mirrors, so a single parent hop
	// reaches the authoritative row set.
	if !res.IsFolder && res.Inherit && res.ParentID != nil {
		parent := b.parentEffective(*res.ParentID)
		if parent.IsOwner {
			return Effective{Role: Add(RoleManage, own)}
		}
		return Effective{Role: Add(parent.Role, own)}
	}
	return Effective{Role: own}
}

// Private reports whether the resource is held privately: at most one
// distinct collaborator row on the id the evaluation reads (the resource's
// own id, or the parent's when the resource is an inheriting leaf).
func (b *Batch) Private(res ResourceRef) bool {
	id := res.ID
	if !res.IsFolder && res.Inherit && res.ParentID != nil {
		id = *res.ParentID
	}
	return len(b.rows[id]) <= 1
}

// ownRole combines the member's direct row with every group/org row whose
// principal is in the closure. More access wins.
func (b *Batch) ownRole(resourceID int64) Role {
	role := RoleNone
	for _, row := range b.rows[resourceID] {
		p, err := row.Principal()
		if err != nil {
			// Malformed row: skipped here, surfaced by the integrity scan.
			continue
		}
		if b.closure.Contains(p) {
			role = Combine(role, row.Role)
		}
	}
	return role
}

func (b *Batch) parentEffective(parentID int64) Effective {
	if eff, ok := b.parentMemo[parentID]; ok {
		return eff
	}
	parent, ok := b.parents[parentID]
	if !ok {
		// Parent rows were not preloaded: an absent grant evaluates to none.
		eff := Effective{Role: b.ownRole(parentID)}
		b.parentMemo[parentID] = eff
		return eff
	}
	eff := b.Evaluate(parent)
	b.parentMemo[parentID] = eff
	return eff
}

// Evaluate computes one actor's effective permission on a single resource.
// Convenience over a one-element batch; list paths build the Batch directly.
func Evaluate(res ResourceRef, closure Closure, rows []Collaborator, teamOwner bool, parent *ResourceRef) Effective {
	var parents []ResourceRef
	if parent != nil {
		parents = append(parents, *parent)
	}
	return NewBatch(closure, teamOwner, rows, parents).Evaluate(res)
}
