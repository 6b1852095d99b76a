package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atelier-ai/atelier/internal/shared"
)

// Locker serializes collaborator syncs within a team. The database
// transaction remains the correctness boundary; the lock only narrows the
// window for two overlapping descents to race.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AuditSink receives engine mutation events.
type AuditSink interface {
	Record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) error
}

// Metrics is the slice of the observability registry the engine reports to.
// A nil implementation is valid.
type Metrics interface {
	ObserveEvaluations(n int)
	ObserveSyncWrites(n int)
	IncInvariantViolations()
}

// Service is the hierarchical resource-permission engine.
type Service struct {
	store    Store
	resolver *Resolver
	team     Memberships
	tree     Tree
	locker   Locker
	lockTTL  time.Duration
	audit    AuditSink
	metrics  Metrics
	logger   *slog.Logger
}

// NewService wires the engine. locker, audit and metrics may be nil.
func NewService(store Store, team Memberships, tree Tree, locker Locker, audit AuditSink, metrics Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: NewResolver(team),
		team:     team,
		tree:     tree,
		locker:   locker,
		lockTTL:  30 * time.Second,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetSyncLockTTL overrides the advisory lock TTL of collaborator syncs.
func (s *Service) SetSyncLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// Store exposes the collaborator store for read paths that batch rows
// themselves (the resource lister).
func (s *Service) Store() Store { return s.store }

// Resolver exposes the principal resolver for batching callers.
func (s *Service) Resolver() *Resolver { return s.resolver }

// Memberships exposes the team service slice the engine was wired with.
func (s *Service) Memberships() Memberships { return s.team }

// Evaluate computes the actor's effective permission on one resource plus
// the privately-held indicator.
func (s *Service) Evaluate(ctx context.Context, typ ResourceType, resourceID, teamID, memberID int64) (Effective, bool, error) {
	res, err := s.tree.Get(ctx, typ, resourceID)
	if err != nil {
		return Effective{}, false, err
	}
	if res.TeamID != teamID {
		// Cross-team probes read as absent; existence is never leaked.
		return Effective{}, false, fmt.Errorf("%w: %s/%d", ErrResourceNotFound, typ, resourceID)
	}

	closure, err := s.resolver.Resolve(ctx, teamID, memberID)
	if err != nil {
		return Effective{}, false, err
	}
	teamOwner, err := s.team.IsTeamOwner(ctx, teamID, memberID)
	if err != nil {
		return Effective{}, false, err
	}

	ids := []int64{res.ID}
	var parents []ResourceRef
	if !res.IsFolder && res.Inherit && res.ParentID != nil {
		parent, err := s.tree.Get(ctx, typ, *res.ParentID)
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) || errors.Is(err, shared.ErrNotFound) {
				return Effective{}, false, fmt.Errorf("%w: parent of %s/%d", ErrResourceNotFound, typ, resourceID)
			}
			return Effective{}, false, err
		}
		parents = append(parents, parent)
		ids = append(ids, parent.ID)
	}

	rows, err := s.store.ListForResources(ctx, typ, ids)
	if err != nil {
		return Effective{}, false, err
	}

	batch := NewBatch(closure, teamOwner, rows, parents)
	eff := batch.Evaluate(res)
	if s.metrics != nil {
		s.metrics.ObserveEvaluations(1)
	}
	return eff, batch.Private(res), nil
}

// Sync transactionally reconciles the folder's rows and those of every
// folder-type descendant that still inherits. Partial propagation is never
// observable: the whole descent runs in one RepeatableRead transaction.
func (s *Service) Sync(ctx context.Context, typ ResourceType, folderID int64, desired []Grant, actorMemberID int64) error {
	folder, err := s.tree.Get(ctx, typ, folderID)
	if err != nil {
		return err
	}
	if !folder.IsFolder {
		return fmt.Errorf("%w: %s/%d", ErrNotFolder, typ, folderID)
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.ACLSyncLockKey(folder.TeamID), s.lockTTL)
		if err != nil {
			return fmt.Errorf("permission: acquire sync lock for team %d: %w", folder.TeamID, err)
		}
		defer release()
	}

	var writes int
	err = s.store.InTx(ctx, func(tx Store) error {
		n, err := s.syncTree(ctx, tx, folder, desired)
		writes = n
		return err
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ObserveSyncWrites(writes)
	}
	if s.logger != nil {
		s.logger.Info("collaborators synced",
			slog.String("resource_type", string(typ)),
			slog.Int64("folder_id", folderID),
			slog.Int("desired", len(desired)),
			slog.Int("writes", writes))
	}
	s.recordAudit(ctx, actorMemberID, "collaborators.sync", typ, folderID, map[string]any{
		"desired": len(desired),
		"writes":  writes,
	})
	return nil
}

// Grant upserts a single collaborator row. This is the path for leaf
// resources and for additive overrides on inheriting leaves.
func (s *Service) Grant(ctx context.Context, typ ResourceType, resourceID, teamID int64, p Principal, role Role, actorMemberID int64) error {
	res, err := s.tree.Get(ctx, typ, resourceID)
	if err != nil {
		return err
	}
	if res.TeamID != teamID {
		// Cross-team probes read as absent; existence is never leaked.
		return fmt.Errorf("%w: %s/%d", ErrResourceNotFound, typ, resourceID)
	}
	row := Collaborator{
		ResourceType: typ,
		ResourceID:   res.ID,
		TeamID:       res.TeamID,
		Role:         role,
	}
	row.SetPrincipal(p)
	if err := s.store.Upsert(ctx, row); err != nil {
		return err
	}
	s.recordAudit(ctx, actorMemberID, "collaborators.grant", typ, resourceID, map[string]any{
		"principal": p.String(),
		"role":      role.String(),
	})
	return nil
}

// Revoke removes a single collaborator row.
func (s *Service) Revoke(ctx context.Context, typ ResourceType, resourceID, teamID int64, p Principal, actorMemberID int64) error {
	res, err := s.tree.Get(ctx, typ, resourceID)
	if err != nil {
		return err
	}
	if res.TeamID != teamID {
		return fmt.Errorf("%w: %s/%d", ErrResourceNotFound, typ, resourceID)
	}
	if err := s.store.Delete(ctx, typ, resourceID, p); err != nil {
		return err
	}
	s.recordAudit(ctx, actorMemberID, "collaborators.revoke", typ, resourceID, map[string]any{
		"principal": p.String(),
	})
	return nil
}

// Collaborators lists the rows of one resource.
func (s *Service) Collaborators(ctx context.Context, typ ResourceType, resourceID int64) ([]Collaborator, error) {
	return s.store.ListForResources(ctx, typ, []int64{resourceID})
}

// SeedFromParent copies the parent folder's rows onto a freshly created
// resource inside the caller's store session: the creator becomes the
// manage-role holder and the parent's rows carry over unchanged. Creation
// flows call this before the resource's first explicit Sync; until then
// inheriting leaves still evaluate through the parent chain at read time.
func (s *Service) SeedFromParent(ctx context.Context, store Store, res ResourceRef, creatorMemberID int64) error {
	var parentRows []Collaborator
	if res.ParentID != nil {
		rows, err := store.ListForResources(ctx, res.Type, []int64{*res.ParentID})
		if err != nil {
			return err
		}
		parentRows = rows
	}

	for _, row := range parentRows {
		p, err := row.Principal()
		if err != nil {
			return err
		}
		if p.Kind == PrincipalMember && p.ID == creatorMemberID {
			continue
		}
		seeded := Collaborator{
			ResourceType: res.Type,
			ResourceID:   res.ID,
			TeamID:       res.TeamID,
			Role:         row.Role,
		}
		seeded.SetPrincipal(p)
		if err := store.Upsert(ctx, seeded); err != nil {
			return err
		}
	}

	creator := Collaborator{
		ResourceType: res.Type,
		ResourceID:   res.ID,
		TeamID:       res.TeamID,
		Role:         RoleManage,
	}
	creator.SetPrincipal(Principal{Kind: PrincipalMember, ID: creatorMemberID})
	return store.Upsert(ctx, creator)
}

// SetInherit toggles the inheritance flag. Turning inheritance off snapshots
// the currently effective row set as the resource's own ACL; turning it back
// on re-mirrors the parent folder. Both directions run in one transaction.
func (s *Service) SetInherit(ctx context.Context, typ ResourceType, resourceID int64, inherit bool, actorMemberID int64) error {
	res, err := s.tree.Get(ctx, typ, resourceID)
	if err != nil {
		return err
	}
	if res.Inherit == inherit {
		return nil
	}

	err = s.store.InTx(ctx, func(store Store) error {
		if err := store.SetInheritFlag(ctx, typ, resourceID, inherit); err != nil {
			return err
		}

		if res.ParentID == nil {
			// Root resources are unaffected by inheritance; their own rows
			// stay authoritative either way.
			return nil
		}
		parentID := *res.ParentID
		rows, err := store.ListForResources(ctx, typ, []int64{resourceID, parentID})
		if err != nil {
			return err
		}
		var desired []Grant
		index := make(map[Principal]int, len(rows))
		layer := func(id int64) error {
			for _, row := range rows {
				if row.ResourceID != id {
					continue
				}
				p, err := row.Principal()
				if err != nil {
					return err
				}
				if i, ok := index[p]; ok {
					desired[i].Role = Add(desired[i].Role, row.Role)
					continue
				}
				index[p] = len(desired)
				desired = append(desired, Grant{Principal: p, Role: row.Role})
			}
			return nil
		}
		if err := layer(parentID); err != nil {
			return err
		}

		if !inherit {
			// Opting out snapshots the effective state: the parent's rows
			// layered with the resource's own additive overrides, combined
			// per principal so no held privilege shrinks across the toggle.
			if err := layer(resourceID); err != nil {
				return err
			}
			res.Inherit = false
			_, err := syncNode(ctx, store, res, desired)
			return err
		}
		// Opting back in: folders re-mirror the parent down their inheriting
		// descendants; leaves drop their override rows and read through the
		// parent again.
		if res.IsFolder {
			res.Inherit = true
			_, err := s.syncTree(ctx, store, res, desired)
			return err
		}
		return store.DeleteForResource(ctx, typ, resourceID)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actorMemberID, "collaborators.inherit", typ, resourceID, map[string]any{
		"inherit": inherit,
	})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, typ ResourceType, resourceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actorID, action, string(typ), fmt.Sprint(resourceID), meta); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
