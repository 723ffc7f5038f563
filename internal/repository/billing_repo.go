package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BillingRepository persists billing records inside each tenant's schema.
// One row per billing period; a partial unique index on
// (period) WHERE status='completed' backs the at-most-one-completed invariant
// across processes.
type BillingRepository interface {
	// GetForPeriod returns the tenant's record for the period, or NotFoundError.
	GetForPeriod(ctx context.Context, scope model.TenantScope, period model.BillingPeriod) (*model.BillingRecord, error)
	// UpsertPending inserts a fresh pending record, or resets an existing
	// failed record to pending keeping its id and idempotency key. Returns
	// ConflictError when the period is already completed.
	UpsertPending(ctx context.Context, scope model.TenantScope, rec *model.BillingRecord) (*model.BillingRecord, error)
	// MarkCompleted finalizes a pending record. ConflictError when a completed
	// record for the period already exists.
	MarkCompleted(ctx context.Context, scope model.TenantScope, id uuid.UUID, providerChargeID string) error
	MarkFailed(ctx context.Context, scope model.TenantScope, id uuid.UUID, reason string) error
	SetProviderCharge(ctx context.Context, scope model.TenantScope, id uuid.UUID, providerChargeID string) error
	// ListStuckPending returns pending records last touched before the cutoff.
	ListStuckPending(ctx context.Context, scope model.TenantScope, cutoff time.Time) ([]model.BillingRecord, error)
}

type billingRepo struct {
	pool *pgxpool.Pool
}

// NewBillingRepo creates a new BillingRepository.
func NewBillingRepo(pool *pgxpool.Pool) BillingRepository {
	return &billingRepo{pool: pool}
}

func billingTable(scope model.TenantScope) string {
	return pgx.Identifier{scope.Namespace, "billing_records"}.Sanitize()
}

const billingColumns = `id, tenant_id, period, lines, total_cents, status, idempotency_key,
       COALESCE(provider_charge_id, ''), COALESCE(failure_reason, ''), created_at, updated_at`

func scanBillingRecord(row pgx.Row) (*model.BillingRecord, error) {
	var rec model.BillingRecord
	var period string
	var lines []byte
	err := row.Scan(&rec.ID, &rec.TenantID, &period, &lines, &rec.TotalCents, &rec.Status,
		&rec.IdempotencyKey, &rec.ProviderChargeID, &rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Period, err = model.ParseBillingPeriod(period)
	if err != nil {
		return nil, fmt.Errorf("stored period %q: %w", period, err)
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &rec.Lines); err != nil {
			return nil, fmt.Errorf("unmarshal charge lines: %w", err)
		}
	}
	return &rec, nil
}

func (r *billingRepo) GetForPeriod(ctx context.Context, scope model.TenantScope, period model.BillingPeriod) (*model.BillingRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE period = $1`, billingColumns, billingTable(scope))
	rec, err := scanBillingRecord(r.pool.QueryRow(ctx, q, period.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "billing record", ID: scope.TenantID.String() + "/" + period.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch billing record %s for tenant %s: %w", period, scope.TenantID, err)
	}
	return rec, nil
}

func (r *billingRepo) UpsertPending(ctx context.Context, scope model.TenantScope, rec *model.BillingRecord) (*model.BillingRecord, error) {
	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return nil, fmt.Errorf("marshal charge lines: %w", err)
	}
	// The WHERE clause leaves completed rows untouched; zero rows back means
	// the period is already billed.
	q := fmt.Sprintf(`
        INSERT INTO %s (id, tenant_id, period, lines, total_cents, status, idempotency_key)
        VALUES ($1, $2, $3, $4, $5, 'pending', $6)
        ON CONFLICT (period) DO UPDATE
        SET lines = EXCLUDED.lines,
            total_cents = EXCLUDED.total_cents,
            status = 'pending',
            failure_reason = NULL,
            updated_at = NOW()
        WHERE %s.status IN ('pending', 'failed')
        RETURNING %s
    `, billingTable(scope), billingTable(scope), billingColumns)
	out, err := scanBillingRecord(r.pool.QueryRow(ctx, q,
		rec.ID, scope.TenantID, rec.Period.String(), lines, rec.TotalCents, rec.IdempotencyKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.ConflictError{Resource: "billing record", Reason: "period " + rec.Period.String() + " already completed"}
	}
	if err != nil {
		return nil, fmt.Errorf("upsert pending billing record for tenant %s: %w", scope.TenantID, err)
	}
	return out, nil
}

func (r *billingRepo) MarkCompleted(ctx context.Context, scope model.TenantScope, id uuid.UUID, providerChargeID string) error {
	q := fmt.Sprintf(`
        UPDATE %s
        SET status = 'completed',
            provider_charge_id = NULLIF($2, ''),
            failure_reason = NULL,
            updated_at = NOW()
        WHERE id = $1 AND status = 'pending'
    `, billingTable(scope))
	tag, err := r.pool.Exec(ctx, q, id, providerChargeID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return &model.ConflictError{Resource: "billing record", Reason: "period already completed"}
		}
		return fmt.Errorf("mark billing record %s completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.ConflictError{Resource: "billing record", Reason: "record is not pending"}
	}
	return nil
}

func (r *billingRepo) MarkFailed(ctx context.Context, scope model.TenantScope, id uuid.UUID, reason string) error {
	q := fmt.Sprintf(`
        UPDATE %s
        SET status = 'failed', failure_reason = $2, updated_at = NOW()
        WHERE id = $1 AND status = 'pending'
    `, billingTable(scope))
	if _, err := r.pool.Exec(ctx, q, id, reason); err != nil {
		return fmt.Errorf("mark billing record %s failed: %w", id, err)
	}
	return nil
}

func (r *billingRepo) SetProviderCharge(ctx context.Context, scope model.TenantScope, id uuid.UUID, providerChargeID string) error {
	q := fmt.Sprintf(`UPDATE %s SET provider_charge_id = $2, updated_at = NOW() WHERE id = $1`, billingTable(scope))
	if _, err := r.pool.Exec(ctx, q, id, providerChargeID); err != nil {
		return fmt.Errorf("set provider charge on billing record %s: %w", id, err)
	}
	return nil
}

func (r *billingRepo) ListStuckPending(ctx context.Context, scope model.TenantScope, cutoff time.Time) ([]model.BillingRecord, error) {
	q := fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE status = 'pending' AND updated_at < $1
        ORDER BY updated_at
    `, billingColumns, billingTable(scope))
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck pending records for tenant %s: %w", scope.TenantID, err)
	}
	defer rows.Close()

	var recs []model.BillingRecord
	for rows.Next() {
		rec, err := scanBillingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan billing record: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stuck pending rows: %w", err)
	}
	return recs, nil
}
