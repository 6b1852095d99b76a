package resource

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/atelier-ai/atelier/internal/permission"
)

// searchLimit caps broad free-text listings so one query cannot sweep an
// entire team's tree into a response.
const searchLimit = 60

// ListFilter is the caller-facing filter of a listing. When Search is empty
// the listing is scoped to ParentID (nil meaning the team root); a search
// spans the whole team and is capped.
type ListFilter struct {
	TeamID   int64
	MemberID int64
	ParentID *int64
	Kind     string
	Search   string
}

// ListMetrics counts listings' dropped rows. A nil implementation is valid.
type ListMetrics interface {
	IncListDrops()
}

// Catalog is the read surface the lister needs from a per-domain
// repository.
type Catalog interface {
	Domain() Domain
	List(ctx context.Context, q ListQuery) ([]Resource, error)
	ByIDs(ctx context.Context, ids []int64) ([]Resource, error)
}

// Lister produces the resources an actor may read, annotated with effective
// permission and the privately-held indicator. One closure resolution and
// one bulk row fetch per call regardless of result size.
type Lister struct {
	repos   map[permission.ResourceType]Catalog
	perm    *permission.Service
	metrics ListMetrics
	logger  *slog.Logger
}

// NewLister wires the lister. metrics may be nil.
func NewLister(perm *permission.Service, metrics ListMetrics, logger *slog.Logger, repos ...Catalog) *Lister {
	byType := make(map[permission.ResourceType]Catalog, len(repos))
	for _, repo := range repos {
		byType[repo.Domain().Type] = repo
	}
	return &Lister{repos: byType, perm: perm, metrics: metrics, logger: logger}
}

// List returns the readable resources matching the filter, newest first.
func (l *Lister) List(ctx context.Context, typ permission.ResourceType, f ListFilter) ([]Summary, error) {
	repo, ok := l.repos[typ]
	if !ok {
		return nil, permission.ErrResourceNotFound
	}

	var (
		closure   permission.Closure
		teamOwner bool
		rows      []permission.Collaborator
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		closure, err = l.perm.Resolver().Resolve(gctx, f.TeamID, f.MemberID)
		if err != nil {
			return err
		}
		teamOwner, err = l.perm.Memberships().IsTeamOwner(gctx, f.TeamID, f.MemberID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = l.perm.Store().ListForTeam(gctx, typ, f.TeamID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	query := ListQuery{
		TeamID:       f.TeamID,
		ParentScoped: f.Search == "",
		ParentID:     f.ParentID,
		Kind:         f.Kind,
		Search:       f.Search,
	}
	if f.Search != "" {
		query.Limit = searchLimit
	}
	if !teamOwner {
		query.RestrictIDs = accessibleIDs(rows, closure)
		query.OwnerMemberID = f.MemberID
	}

	candidates, err := repo.List(ctx, query)
	if err != nil {
		return nil, err
	}

	parents, err := l.loadParents(ctx, repo, candidates)
	if err != nil {
		return nil, err
	}

	batch := permission.NewBatch(closure, teamOwner, rows, parents)
	parentRefs := indexRefs(parents)
	summaries := make([]Summary, 0, len(candidates))
	for _, res := range candidates {
		ref := repo.Domain().Ref(res)
		if !ref.IsFolder && ref.Inherit && ref.ParentID != nil {
			if _, ok := parentRefs[*ref.ParentID]; !ok {
				// Parent vanished under a concurrent delete: drop the row
				// rather than fail the whole listing.
				l.warnDrop(res)
				continue
			}
		}
		eff := batch.Evaluate(ref)
		if !eff.HasRead() {
			continue
		}
		summaries = append(summaries, Summary{
			Resource:   res,
			Permission: eff,
			Private:    batch.Private(ref),
		})
	}
	return summaries, nil
}

// loadParents fetches each distinct parent of the inheriting leaves once.
func (l *Lister) loadParents(ctx context.Context, repo Catalog, candidates []Resource) ([]permission.ResourceRef, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, res := range candidates {
		if repo.Domain().IsFolder(res.Kind) || !res.Inherit || res.ParentID == nil {
			continue
		}
		if _, ok := seen[*res.ParentID]; ok {
			continue
		}
		seen[*res.ParentID] = struct{}{}
		ids = append(ids, *res.ParentID)
	}
	parents, err := repo.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	refs := make([]permission.ResourceRef, len(parents))
	for i, p := range parents {
		refs[i] = repo.Domain().Ref(p)
	}
	return refs, nil
}

func (l *Lister) warnDrop(res Resource) {
	if l.metrics != nil {
		l.metrics.IncListDrops()
	}
	if l.logger != nil {
		l.logger.Warn("dropped resource from listing: parent missing",
			slog.String("resource_type", string(res.Type)),
			slog.Int64("resource_id", res.ID))
	}
}

// accessibleIDs collects the ids of resources that carry a row matching the
// actor's closure. Never nil, so an actor without rows still restricts the
// structural query instead of widening it.
func accessibleIDs(rows []permission.Collaborator, closure permission.Closure) []int64 {
	ids := make([]int64, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		p, err := row.Principal()
		if err != nil {
			continue
		}
		if !closure.Contains(p) {
			continue
		}
		if _, ok := seen[row.ResourceID]; ok {
			continue
		}
		seen[row.ResourceID] = struct{}{}
		ids = append(ids, row.ResourceID)
	}
	return ids
}

func indexRefs(refs []permission.ResourceRef) map[int64]permission.ResourceRef {
	m := make(map[int64]permission.ResourceRef, len(refs))
	for _, r := range refs {
		m[r.ID] = r
	}
	return m
}
