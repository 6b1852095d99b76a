package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ai/atelier/internal/permission"
)

// Repository provides PostgreSQL backed persistence for one resource
// collection and implements the tree reads the permission engine needs.
type Repository struct {
	pool   *pgxpool.Pool
	domain Domain
}

// NewRepository constructs a repository for the domain.
func NewRepository(pool *pgxpool.Pool, domain Domain) *Repository {
	return &Repository{pool: pool, domain: domain}
}

// Domain returns the collection descriptor.
func (r *Repository) Domain() Domain { return r.domain }

const resourceColumns = `id, resource_type, team_id, parent_id, kind, name, intro, owner_member_id, inherit_permission, created_at, updated_at, deleted_at`

// Get fetches one live resource.
func (r *Repository) Get(ctx context.Context, id int64) (Resource, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+resourceColumns+`
		FROM resources
		WHERE resource_type = $1 AND id = $2 AND deleted_at IS NULL`, r.domain.Type, id)
	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Resource{}, fmt.Errorf("%w: %s/%d", permission.ErrResourceNotFound, r.domain.Type, id)
	}
	if err != nil {
		return Resource{}, fmt.Errorf("resource: get %s/%d: %w", r.domain.Type, id, err)
	}
	return res, nil
}

// Children fetches the immediate live children of a node.
func (r *Repository) Children(ctx context.Context, parentID int64) ([]Resource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+resourceColumns+`
		FROM resources
		WHERE resource_type = $1 AND parent_id = $2 AND deleted_at IS NULL`, r.domain.Type, parentID)
	if err != nil {
		return nil, fmt.Errorf("resource: children of %s/%d: %w", r.domain.Type, parentID, err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// ByIDs bulk fetches live resources; absent ids are silently skipped.
func (r *Repository) ByIDs(ctx context.Context, ids []int64) ([]Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+resourceColumns+`
		FROM resources
		WHERE resource_type = $1 AND id = ANY($2) AND deleted_at IS NULL`, r.domain.Type, ids)
	if err != nil {
		return nil, fmt.Errorf("resource: by ids: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// ListQuery is the structural filter of a listing. A parent-scoped query
// returns every child of the requested parent and the caller culls the
// unreadable ones, so browsing into a readable folder works without a row
// on every child. RestrictIDs non-nil narrows a team-wide search to those
// ids, resources owned by OwnerMemberID, and inheriting children of the
// listed folders.
type ListQuery struct {
	TeamID        int64
	ParentScoped  bool
	ParentID      *int64
	Kind          string
	Search        string
	RestrictIDs   []int64
	OwnerMemberID int64
	Limit         int
}

// List runs the structural query, newest-updated first.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]Resource, error) {
	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString(`SELECT ` + resourceColumns + ` FROM resources WHERE resource_type = ` + arg(r.domain.Type))
	sb.WriteString(` AND team_id = ` + arg(q.TeamID))
	sb.WriteString(` AND deleted_at IS NULL`)
	if q.Kind != "" {
		sb.WriteString(` AND kind = ` + arg(q.Kind))
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		p := arg(pattern)
		sb.WriteString(` AND (name ILIKE ` + p + ` OR intro ILIKE ` + p + `)`)
	}

	switch {
	case q.ParentScoped && q.ParentID == nil:
		sb.WriteString(` AND parent_id IS NULL`)
	case q.ParentScoped:
		sb.WriteString(` AND parent_id = ` + arg(*q.ParentID))
	case q.RestrictIDs != nil:
		ids := arg(q.RestrictIDs)
		sb.WriteString(` AND (id = ANY(` + ids + `)` +
			` OR owner_member_id = ` + arg(q.OwnerMemberID) +
			` OR (inherit_permission AND parent_id = ANY(` + ids + `)))`)
	}

	sb.WriteString(` ORDER BY updated_at DESC`)
	if q.Limit > 0 {
		sb.WriteString(` LIMIT ` + arg(q.Limit))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("resource: list: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func scanResource(row pgx.Row) (Resource, error) {
	var res Resource
	err := row.Scan(&res.ID, &res.Type, &res.TeamID, &res.ParentID, &res.Kind, &res.Name, &res.Intro,
		&res.OwnerMemberID, &res.Inherit, &res.CreatedAt, &res.UpdatedAt, &res.DeletedAt)
	return res, err
}

func scanResources(rows pgx.Rows) ([]Resource, error) {
	var out []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("resource: scan: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resource: iterate: %w", err)
	}
	return out, nil
}

// TreeMux dispatches the engine's tree reads to the per-domain repositories.
type TreeMux struct {
	repos map[permission.ResourceType]*Repository
}

// NewTreeMux builds the dispatcher.
func NewTreeMux(repos ...*Repository) *TreeMux {
	m := &TreeMux{repos: make(map[permission.ResourceType]*Repository, len(repos))}
	for _, repo := range repos {
		m.repos[repo.domain.Type] = repo
	}
	return m
}

func (m *TreeMux) repo(typ permission.ResourceType) (*Repository, error) {
	repo, ok := m.repos[typ]
	if !ok {
		return nil, fmt.Errorf("resource: unknown resource type %q", typ)
	}
	return repo, nil
}

// Get implements permission.Tree.
func (m *TreeMux) Get(ctx context.Context, typ permission.ResourceType, id int64) (permission.ResourceRef, error) {
	repo, err := m.repo(typ)
	if err != nil {
		return permission.ResourceRef{}, err
	}
	res, err := repo.Get(ctx, id)
	if err != nil {
		return permission.ResourceRef{}, err
	}
	return repo.domain.Ref(res), nil
}

// Children implements permission.Tree.
func (m *TreeMux) Children(ctx context.Context, typ permission.ResourceType, parentID int64) ([]permission.ResourceRef, error) {
	repo, err := m.repo(typ)
	if err != nil {
		return nil, err
	}
	children, err := repo.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	refs := make([]permission.ResourceRef, len(children))
	for i, c := range children {
		refs[i] = repo.domain.Ref(c)
	}
	return refs, nil
}
