package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IntegrityMetrics receives the scan's findings. A nil implementation is valid.
type IntegrityMetrics interface {
	IncInvariantViolations()
}

// ACLIntegrityScanner detects collaborator rows that should not exist.
// Findings are logged and counted, never repaired: a malformed row means a
// write path bypassed the store and deserves a human look.
type ACLIntegrityScanner struct {
	pool    *pgxpool.Pool
	metrics IntegrityMetrics
	logger  *slog.Logger
}

// NewACLIntegrityScanner constructs the scanner.
func NewACLIntegrityScanner(pool *pgxpool.Pool, metrics IntegrityMetrics, logger *slog.Logger) *ACLIntegrityScanner {
	return &ACLIntegrityScanner{pool: pool, metrics: metrics, logger: logger}
}

// HandleTask processes TaskACLIntegrityScan tasks.
func (s *ACLIntegrityScanner) HandleTask(ctx context.Context, _ *asynq.Task) error {
	malformed, err := s.scanMalformedRows(ctx)
	if err != nil {
		return fmt.Errorf("jobs: acl integrity scan: %w", err)
	}
	orphaned, err := s.scanOrphanedRows(ctx)
	if err != nil {
		return fmt.Errorf("jobs: acl orphan scan: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("acl integrity scan finished",
			slog.Int("malformed_rows", malformed),
			slog.Int("orphaned_rows", orphaned))
	}
	return nil
}

// scanMalformedRows finds rows where the number of principal references is
// not exactly one. The table's check constraint should make this impossible.
func (s *ACLIntegrityScanner) scanMalformedRows(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, resource_type, resource_id
		FROM collaborators
		WHERE num_nonnulls(member_id, group_id, org_id) <> 1`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id           int64
			resourceType string
			resourceID   int64
		)
		if err := rows.Scan(&id, &resourceType, &resourceID); err != nil {
			return count, err
		}
		count++
		if s.metrics != nil {
			s.metrics.IncInvariantViolations()
		}
		if s.logger != nil {
			s.logger.Error("collaborator row violates principal invariant",
				slog.Int64("row_id", id),
				slog.String("resource_type", resourceType),
				slog.Int64("resource_id", resourceID))
		}
	}
	return count, rows.Err()
}

// scanOrphanedRows finds rows pointing at soft-deleted or missing resources.
func (s *ACLIntegrityScanner) scanOrphanedRows(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT c.id, c.resource_type, c.resource_id
		FROM collaborators c
		LEFT JOIN resources r ON r.id = c.resource_id AND r.resource_type = c.resource_type AND r.deleted_at IS NULL
		WHERE r.id IS NULL`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id           int64
			resourceType string
			resourceID   int64
		)
		if err := rows.Scan(&id, &resourceType, &resourceID); err != nil {
			return count, err
		}
		count++
		if s.logger != nil {
			s.logger.Warn("collaborator row references a deleted resource",
				slog.Int64("row_id", id),
				slog.String("resource_type", resourceType),
				slog.Int64("resource_id", resourceID))
		}
	}
	return count, rows.Err()
}
