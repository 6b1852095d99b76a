package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the audit trail.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Service coordinates the retrieval of audit data.
type Service struct {
	repo Repository
}

// NewService creates a new audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches audit data with paging, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// One extra row decides HasNext without a count query.
	rows, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// SQLRepository implements Repository over audit_logs.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewSQLRepository constructs the repository.
func NewSQLRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// TimelineWindow fetches one page of the trail.
func (r *SQLRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString(`SELECT occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs WHERE 1=1`)
	if !filters.From.IsZero() {
		sb.WriteString(` AND occurred_at >= ` + arg(filters.From))
	}
	if !filters.To.IsZero() {
		sb.WriteString(` AND occurred_at <= ` + arg(filters.To))
	}
	if filters.ActorID != 0 {
		sb.WriteString(` AND actor_id = ` + arg(filters.ActorID))
	}
	if filters.Entity != "" {
		sb.WriteString(` AND entity = ` + arg(filters.Entity))
	}
	if filters.EntityID != "" {
		sb.WriteString(` AND entity_id = ` + arg(filters.EntityID))
	}
	if filters.Action != "" {
		sb.WriteString(` AND action = ` + arg(filters.Action))
	}
	sb.WriteString(` ORDER BY occurred_at DESC OFFSET ` + arg(offset) + ` LIMIT ` + arg(limit))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline window: %w", err)
	}
	defer rows.Close()
	return scanTimeline(rows)
}

func scanTimeline(rows pgx.Rows) ([]TimelineRow, error) {
	var out []TimelineRow
	for rows.Next() {
		var (
			row      TimelineRow
			metaJSON []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &metaJSON); err != nil {
			return nil, fmt.Errorf("audit: scan timeline row: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate timeline: %w", err)
	}
	return out, nil
}
