package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository maintains the single live subscription row per tenant.
type SubscriptionRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*model.Subscription, error)
	// Upsert creates or replaces the tenant's subscription, keyed by tenant id.
	Upsert(ctx context.Context, sub *model.Subscription) error
	SetCancelAtPeriodEnd(ctx context.Context, tenantID uuid.UUID, cancel bool) error
	// UpdateStatus applies a provider-driven status transition.
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, status model.SubscriptionStatus, providerSubscriptionID string) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Get(ctx context.Context, tenantID uuid.UUID) (*model.Subscription, error) {
	const q = `
        SELECT tenant_id, plan, status, current_period_start, current_period_end,
               cancel_at_period_end, COALESCE(provider_subscription_id, ''), created_at, updated_at
        FROM subscriptions
        WHERE tenant_id = $1
    `
	var s model.Subscription
	err := r.pool.QueryRow(ctx, q, tenantID).Scan(
		&s.TenantID,
		&s.Plan,
		&s.Status,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.ProviderSubscriptionID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "subscription", ID: tenantID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch subscription for tenant %s: %w", tenantID, err)
	}
	return &s, nil
}

func (r *subscriptionRepo) Upsert(ctx context.Context, sub *model.Subscription) error {
	const q = `
        INSERT INTO subscriptions (tenant_id, plan, status, current_period_start, current_period_end,
                                   cancel_at_period_end, provider_subscription_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW(), NOW())
        ON CONFLICT (tenant_id) DO UPDATE
        SET plan = EXCLUDED.plan,
            status = EXCLUDED.status,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            cancel_at_period_end = EXCLUDED.cancel_at_period_end,
            provider_subscription_id = EXCLUDED.provider_subscription_id,
            updated_at = NOW()
    `
	_, err := r.pool.Exec(ctx, q,
		sub.TenantID, sub.Plan, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.ProviderSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription for tenant %s: %w", sub.TenantID, err)
	}
	return nil
}

func (r *subscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, tenantID uuid.UUID, cancel bool) error {
	const q = `UPDATE subscriptions SET cancel_at_period_end = $2, updated_at = NOW() WHERE tenant_id = $1`
	tag, err := r.pool.Exec(ctx, q, tenantID, cancel)
	if err != nil {
		return fmt.Errorf("set cancel_at_period_end for tenant %s: %w", tenantID, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Resource: "subscription", ID: tenantID.String()}
	}
	return nil
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, tenantID uuid.UUID, status model.SubscriptionStatus, providerSubscriptionID string) error {
	const q = `
        UPDATE subscriptions
        SET status = $2,
            provider_subscription_id = COALESCE(NULLIF($3, ''), provider_subscription_id),
            updated_at = NOW()
        WHERE tenant_id = $1
    `
	tag, err := r.pool.Exec(ctx, q, tenantID, status, providerSubscriptionID)
	if err != nil {
		return fmt.Errorf("update subscription status for tenant %s: %w", tenantID, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Resource: "subscription", ID: tenantID.String()}
	}
	return nil
}
