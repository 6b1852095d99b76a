package permission

import (
	"context"
	"fmt"
)

// syncNode reconciles one resource's rows against the desired set: changed
// roles are updated, missing rows inserted, extra rows deleted. Returns the
// number of writes performed so idempotent re-runs are observable as zero.
func syncNode(ctx context.Context, store Store, res ResourceRef, desired []Grant) (int, error) {
	current, err := store.ListForResources(ctx, res.Type, []int64{res.ID})
	if err != nil {
		return 0, err
	}

	currentByPrincipal := make(map[Principal]Collaborator, len(current))
	for _, row := range current {
		p, err := row.Principal()
		if err != nil {
			return 0, err
		}
		currentByPrincipal[p] = row
	}

	writes := 0
	seen := make(map[Principal]struct{}, len(desired))
	for _, want := range desired {
		seen[want.Principal] = struct{}{}
		if have, ok := currentByPrincipal[want.Principal]; ok && have.Role == want.Role {
			continue
		}
		row := Collaborator{
			ResourceType: res.Type,
			ResourceID:   res.ID,
			TeamID:       res.TeamID,
			Role:         want.Role,
		}
		row.SetPrincipal(want.Principal)
		if err := store.Upsert(ctx, row); err != nil {
			return writes, err
		}
		writes++
	}
	for p := range currentByPrincipal {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := store.Delete(ctx, res.Type, res.ID, p); err != nil {
			return writes, err
		}
		writes++
	}
	return writes, nil
}

// syncTree walks the folder and its inheriting folder-type descendants with
// an explicit FIFO worklist, mirroring desired onto each node. Descendants
// that opted out of inheritance stop the descent; leaf children are never
// touched, their permission is derived at read time. The caller supplies the
// store session: the whole descent commits or none of it does. Tree reads go
// through the shared Tree, outside that session; a concurrent structural
// change can steer the walk, but row writes stay atomic and the per-team
// sync lock keeps two descents from interleaving.
func (s *Service) syncTree(ctx context.Context, store Store, root ResourceRef, desired []Grant) (int, error) {
	writes := 0

	queue := []ResourceRef{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		n, err := syncNode(ctx, store, node, desired)
		if err != nil {
			return writes, fmt.Errorf("permission: sync %s/%d: %w", node.Type, node.ID, err)
		}
		writes += n

		children, err := s.tree.Children(ctx, node.Type, node.ID)
		if err != nil {
			return writes, fmt.Errorf("permission: children of %s/%d: %w", node.Type, node.ID, err)
		}
		for _, child := range children {
			if child.IsFolder && child.Inherit {
				queue = append(queue, child)
			}
		}
	}
	return writes, nil
}
