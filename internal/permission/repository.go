package permission

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-ai/atelier/internal/platform/db"
)

// Store is the persistence contract of the engine: bulk reads, row writes
// and the transactional session the synchronizer descends inside. Satisfied
// by *Repository and by map-backed fakes in tests.
type Store interface {
	// InTx runs fn against a transactional view of the store. Any error
	// aborts the whole session; nothing fn wrote is observable after a
	// failure.
	InTx(ctx context.Context, fn func(Store) error) error
	ListForResources(ctx context.Context, typ ResourceType, resourceIDs []int64) ([]Collaborator, error)
	ListForTeam(ctx context.Context, typ ResourceType, teamID int64) ([]Collaborator, error)
	Upsert(ctx context.Context, c Collaborator) error
	Delete(ctx context.Context, typ ResourceType, resourceID int64, p Principal) error
	DeleteForResource(ctx context.Context, typ ResourceType, resourceID int64) error
	SetInheritFlag(ctx context.Context, typ ResourceType, resourceID int64, inherit bool) error
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every store
// method can run standalone or inside a caller-supplied transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL backed persistence for collaborator rows.
type Repository struct {
	pool *pgxpool.Pool
	db   Querier
}

// NewRepository constructs a repository on the shared pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// WithTx returns a repository whose operations run on tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

// InTx opens a RepeatableRead transaction and hands fn a tx-scoped view.
// Called on an already tx-scoped repository it reuses the session, so
// nested engine operations share one commit boundary.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(r.WithTx(tx))
	})
}

const collaboratorColumns = `id, resource_type, resource_id, team_id, member_id, group_id, org_id, role, created_at, updated_at`

// ListForResources bulk fetches the rows of all the given resources in one
// query. Callers evaluating thousands of resources issue exactly one call.
func (r *Repository) ListForResources(ctx context.Context, typ ResourceType, resourceIDs []int64) ([]Collaborator, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+collaboratorColumns+`
		FROM collaborators
		WHERE resource_type = $1 AND resource_id = ANY($2)`, typ, resourceIDs)
	if err != nil {
		return nil, fmt.Errorf("permission: list collaborators: %w", err)
	}
	defer rows.Close()
	return scanCollaborators(rows)
}

// ListForTeam fetches every row of a team for one resource type. This is the
// single up-front read the lister performs.
func (r *Repository) ListForTeam(ctx context.Context, typ ResourceType, teamID int64) ([]Collaborator, error) {
	rows, err := r.db.Query(ctx, `SELECT `+collaboratorColumns+`
		FROM collaborators
		WHERE resource_type = $1 AND team_id = $2`, typ, teamID)
	if err != nil {
		return nil, fmt.Errorf("permission: list team collaborators: %w", err)
	}
	defer rows.Close()
	return scanCollaborators(rows)
}

// Upsert inserts the row or updates its role, keyed by (resource, principal).
func (r *Repository) Upsert(ctx context.Context, c Collaborator) error {
	p, err := c.Principal()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO collaborators
			(resource_type, resource_id, team_id, member_id, group_id, org_id, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (resource_type, resource_id, principal_kind, principal_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`,
		c.ResourceType, c.ResourceID, c.TeamID, c.MemberID, c.GroupID, c.OrgID, c.Role)
	if err != nil {
		return fmt.Errorf("permission: upsert collaborator %s on %s/%d: %w", p, c.ResourceType, c.ResourceID, err)
	}
	return nil
}

// Delete removes the row of one principal on one resource. Deleting an
// absent row is not an error.
func (r *Repository) Delete(ctx context.Context, typ ResourceType, resourceID int64, p Principal) error {
	_, err := r.db.Exec(ctx, `DELETE FROM collaborators
		WHERE resource_type = $1 AND resource_id = $2 AND principal_kind = $3 AND principal_id = $4`,
		typ, resourceID, p.Kind, p.ID)
	if err != nil {
		return fmt.Errorf("permission: delete collaborator %s on %s/%d: %w", p, typ, resourceID, err)
	}
	return nil
}

// DeleteForResource removes every row of one resource.
func (r *Repository) DeleteForResource(ctx context.Context, typ ResourceType, resourceID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM collaborators WHERE resource_type = $1 AND resource_id = $2`, typ, resourceID)
	if err != nil {
		return fmt.Errorf("permission: delete collaborators of %s/%d: %w", typ, resourceID, err)
	}
	return nil
}

// SetInheritFlag flips the inheritance flag on the resource row itself.
func (r *Repository) SetInheritFlag(ctx context.Context, typ ResourceType, resourceID int64, inherit bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE resources
		SET inherit_permission = $1, updated_at = NOW()
		WHERE resource_type = $2 AND id = $3 AND deleted_at IS NULL`, inherit, typ, resourceID)
	if err != nil {
		return fmt.Errorf("permission: set inherit on %s/%d: %w", typ, resourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func scanCollaborators(rows pgx.Rows) ([]Collaborator, error) {
	var out []Collaborator
	for rows.Next() {
		var c Collaborator
		if err := rows.Scan(&c.ID, &c.ResourceType, &c.ResourceID, &c.TeamID,
			&c.MemberID, &c.GroupID, &c.OrgID, &c.Role, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("permission: scan collaborator: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("permission: iterate collaborators: %w", err)
	}
	return out, nil
}
