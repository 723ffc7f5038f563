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

// TenantRepository resolves tenants and their isolated namespaces. Tenant rows
// live in the shared public schema; everything else is per-tenant.
type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	// ListActive returns tenants with an active subscription.
	ListActive(ctx context.Context) ([]model.Tenant, error)
	ListAll(ctx context.Context) ([]model.Tenant, error)
	// UpdatePlan keeps the tenant row's plan in step with the subscription.
	UpdatePlan(ctx context.Context, id uuid.UUID, plan model.Plan) error
	UpdateProviderCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	UpdateConnectAccountID(ctx context.Context, id uuid.UUID, accountID string) error
}

type tenantRepo struct {
	pool *pgxpool.Pool
}

// NewTenantRepo creates a new TenantRepository.
func NewTenantRepo(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepo{pool: pool}
}

const tenantColumns = `id, name, plan, namespace, COALESCE(provider_customer_id, ''), COALESCE(connect_account_id, ''), created_at`

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Plan, &t.Namespace, &t.ProviderCustomerID, &t.ConnectAccountID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	q := fmt.Sprintf(`SELECT %s FROM tenants WHERE id = $1`, tenantColumns)
	t, err := scanTenant(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch tenant %s: %w", id, err)
	}
	return t, nil
}

func (r *tenantRepo) ListActive(ctx context.Context) ([]model.Tenant, error) {
	q := fmt.Sprintf(`
        SELECT %s
        FROM tenants t
        JOIN subscriptions s ON s.tenant_id = t.id
        WHERE s.status = 'active'
        ORDER BY t.created_at
    `, qualifyTenantColumns())
	return r.list(ctx, q)
}

func (r *tenantRepo) ListAll(ctx context.Context) ([]model.Tenant, error) {
	q := fmt.Sprintf(`SELECT %s FROM tenants ORDER BY created_at`, tenantColumns)
	return r.list(ctx, q)
}

func (r *tenantRepo) list(ctx context.Context, q string) ([]model.Tenant, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants rows: %w", err)
	}
	return tenants, nil
}

func (r *tenantRepo) UpdatePlan(ctx context.Context, id uuid.UUID, plan model.Plan) error {
	const q = `UPDATE tenants SET plan = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, plan)
	if err != nil {
		return fmt.Errorf("update plan for tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	return nil
}

func (r *tenantRepo) UpdateProviderCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	const q = `UPDATE tenants SET provider_customer_id = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, customerID)
	if err != nil {
		return fmt.Errorf("update provider customer id for tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	return nil
}

func (r *tenantRepo) UpdateConnectAccountID(ctx context.Context, id uuid.UUID, accountID string) error {
	const q = `UPDATE tenants SET connect_account_id = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, accountID)
	if err != nil {
		return fmt.Errorf("update connect account id for tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Resource: "tenant", ID: id.String()}
	}
	return nil
}

func qualifyTenantColumns() string {
	return `t.id, t.name, t.plan, t.namespace, COALESCE(t.provider_customer_id, ''), COALESCE(t.connect_account_id, ''), t.created_at`
}
