// Package audit persists and serves an append-only trail of permission
// mutations (grants, revocations, syncs, inheritance toggles).
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Logger writes records into audit_logs.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger returns a new Logger.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// Record persists one event. Satisfies permission.AuditSink.
func (l *Logger) Record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if action == "" || entity == "" || entityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`, actorID, action, entity, entityID, metaJSON)
	return err
}
