package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepository is the append-only usage ledger. Every call takes an
// explicit tenant scope; events live in the tenant's own schema.
type UsageRepository interface {
	Insert(ctx context.Context, scope model.TenantScope, ev *model.UsageEvent) (*model.UsageEvent, error)
	// Query returns events ordered by recorded_at ascending (id as tiebreak),
	// paginated by the filter's limit and offset.
	Query(ctx context.Context, scope model.TenantScope, f model.UsageFilter) ([]model.UsageEvent, error)
	// Aggregate sums quantities over [start, end). Consistent with Query: the
	// sum of quantities from full pagination equals the aggregate.
	Aggregate(ctx context.Context, scope model.TenantScope, metric model.Metric, start, end time.Time) (int64, error)
}

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a new UsageRepository.
func NewUsageRepo(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

func usageTable(scope model.TenantScope) string {
	return pgx.Identifier{scope.Namespace, "usage_events"}.Sanitize()
}

func (r *usageRepo) Insert(ctx context.Context, scope model.TenantScope, ev *model.UsageEvent) (*model.UsageEvent, error) {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal usage metadata: %w", err)
	}
	q := fmt.Sprintf(`
        INSERT INTO %s (tenant_id, metric, quantity, unit_price_cents, metadata, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, usageTable(scope))
	out := *ev
	out.TenantID = scope.TenantID
	err = r.pool.QueryRow(ctx, q, scope.TenantID, ev.Metric, ev.Quantity, ev.UnitPriceCents, meta, ev.RecordedAt).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record usage for tenant %s: %w", scope.TenantID, err)
	}
	return &out, nil
}

func (r *usageRepo) Query(ctx context.Context, scope model.TenantScope, f model.UsageFilter) ([]model.UsageEvent, error) {
	q := fmt.Sprintf(`
        SELECT id, tenant_id, metric, quantity, unit_price_cents, metadata, recorded_at, created_at
        FROM %s
        WHERE recorded_at >= $1
          AND recorded_at < $2
          AND ($3 = '' OR metric = $3)
        ORDER BY recorded_at ASC, id ASC
        LIMIT $4 OFFSET $5
    `, usageTable(scope))
	rows, err := r.pool.Query(ctx, q, f.Start, f.End, string(f.Metric), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("query usage for tenant %s: %w", scope.TenantID, err)
	}
	defer rows.Close()

	var events []model.UsageEvent
	for rows.Next() {
		var ev model.UsageEvent
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.Metric, &ev.Quantity, &ev.UnitPriceCents, &meta, &ev.RecordedAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal usage metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query usage rows: %w", err)
	}
	return events, nil
}

func (r *usageRepo) Aggregate(ctx context.Context, scope model.TenantScope, metric model.Metric, start, end time.Time) (int64, error) {
	q := fmt.Sprintf(`
        SELECT COALESCE(SUM(quantity), 0)
        FROM %s
        WHERE metric = $1
          AND recorded_at >= $2
          AND recorded_at < $3
    `, usageTable(scope))
	var total int64
	if err := r.pool.QueryRow(ctx, q, metric, start, end).Scan(&total); err != nil {
		return 0, fmt.Errorf("aggregate %s usage for tenant %s: %w", metric, scope.TenantID, err)
	}
	return total, nil
}
