package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingArchiver struct {
	mu      sync.Mutex
	reports []*ReconciliationReport
}

func (a *capturingArchiver) Archive(ctx context.Context, report *ReconciliationReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, report)
	return nil
}

func seedCompletedRecord(repo *fakeBillingRepo, tenant model.Tenant, period model.BillingPeriod, totalCents int64, chargeID string) {
	repo.seed(tenant.Scope(), model.BillingRecord{
		ID:               uuid.New(),
		TenantID:         tenant.ID,
		Period:           period,
		TotalCents:       totalCents,
		Status:           model.BillingStatusCompleted,
		IdempotencyKey:   model.IdempotencyKey(tenant.ID, period),
		ProviderChargeID: chargeID,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	})
}

func TestReconcileCleanPeriod(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	tenantRepo := newFakeTenantRepo(tenant)
	billingRepo := newFakeBillingRepo()
	provider := NewMockProvider()
	archiver := &capturingArchiver{}

	provider.SetChargeResult(ChargeResult{
		ChargeID:    "ch_ok",
		Status:      ChargeStatusSucceeded,
		AmountCents: 2025,
		Currency:    "usd",
	})
	seedCompletedRecord(billingRepo, tenant, testPeriod, 2025, "ch_ok")

	svc := NewReconciliationService(tenantRepo, billingRepo, provider, archiver, zerolog.Nop())
	report, err := svc.Reconcile(context.Background(), testPeriod, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Discrepancies)
	require.Len(t, archiver.reports, 1)
	assert.Equal(t, report, archiver.reports[0])
}

func TestReconcileAmountMismatch(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	tenantRepo := newFakeTenantRepo(tenant)
	billingRepo := newFakeBillingRepo()
	provider := NewMockProvider()

	// Local record says 2025 cents, the provider settled 2000.
	provider.SetChargeResult(ChargeResult{
		ChargeID:    "ch_short",
		Status:      ChargeStatusSucceeded,
		AmountCents: 2000,
		Currency:    "usd",
	})
	seedCompletedRecord(billingRepo, tenant, testPeriod, 2025, "ch_short")

	svc := NewReconciliationService(tenantRepo, billingRepo, provider, nil, zerolog.Nop())
	report, err := svc.Reconcile(context.Background(), testPeriod, true)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, "amount_mismatch", d.Kind)
	assert.Equal(t, tenant.ID, d.TenantID)
	assert.Contains(t, d.Expected, "2025")
	assert.Contains(t, d.Actual, "2000")
}

func TestReconcileStatusMismatchAndMissingCharge(t *testing.T) {
	settled := testTenant("settled", model.PlanBasic)
	ghost := testTenant("ghost", model.PlanBasic)
	tenantRepo := newFakeTenantRepo(settled, ghost)
	billingRepo := newFakeBillingRepo()
	provider := NewMockProvider()

	// A completed record whose charge the provider says failed.
	provider.SetChargeResult(ChargeResult{
		ChargeID:    "ch_failed",
		Status:      ChargeStatusFailed,
		AmountCents: 2025,
	})
	seedCompletedRecord(billingRepo, settled, testPeriod, 2025, "ch_failed")

	// A completed record whose charge the provider has never seen.
	seedCompletedRecord(billingRepo, ghost, testPeriod, 500, "ch_unknown")

	svc := NewReconciliationService(tenantRepo, billingRepo, provider, nil, zerolog.Nop())
	report, err := svc.Reconcile(context.Background(), testPeriod, true)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 2)

	kinds := make(map[uuid.UUID]string)
	for _, d := range report.Discrepancies {
		kinds[d.TenantID] = d.Kind
	}
	assert.Equal(t, "status_mismatch", kinds[settled.ID])
	assert.Equal(t, "missing_charge", kinds[ghost.ID])
}

func TestReconcileWithoutProviderDataListsRecordsOnly(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	tenantRepo := newFakeTenantRepo(tenant)
	billingRepo := newFakeBillingRepo()

	// The provider has never seen this charge; without provider data the
	// record is listed as-is and nothing is flagged.
	seedCompletedRecord(billingRepo, tenant, testPeriod, 2025, "ch_unknown")

	svc := NewReconciliationService(tenantRepo, billingRepo, NewMockProvider(), nil, zerolog.Nop())
	report, err := svc.Reconcile(context.Background(), testPeriod, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Discrepancies)
	require.Len(t, report.Records, 1)
	assert.Equal(t, tenant.ID, report.Records[0].TenantID)
	assert.Equal(t, int64(2025), report.Records[0].TotalCents)
	assert.Equal(t, model.BillingStatusCompleted, report.Records[0].Status)
	assert.Equal(t, "ch_unknown", report.Records[0].ProviderChargeID)
}

func TestReconcileCountsUnbilledTenants(t *testing.T) {
	billed := testTenant("billed", model.PlanBasic)
	unbilled := testTenant("unbilled", model.PlanBasic)
	tenantRepo := newFakeTenantRepo(billed, unbilled)
	billingRepo := newFakeBillingRepo()
	provider := NewMockProvider()

	provider.SetChargeResult(ChargeResult{ChargeID: "ch_ok", Status: ChargeStatusSucceeded, AmountCents: 2025})
	seedCompletedRecord(billingRepo, billed, testPeriod, 2025, "ch_ok")

	svc := NewReconciliationService(tenantRepo, billingRepo, provider, nil, zerolog.Nop())
	report, err := svc.Reconcile(context.Background(), testPeriod, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Unbilled)
	assert.Empty(t, report.Discrepancies)
}

func TestReconcileSkipsZeroTotalRecords(t *testing.T) {
	free := testTenant("free", model.PlanFree)
	tenantRepo := newFakeTenantRepo(free)
	billingRepo := newFakeBillingRepo()

	// A zero-total completion has no provider side to compare against.
	seedCompletedRecord(billingRepo, free, testPeriod, 0, "")

	svc := NewReconciliationService(tenantRepo, billingRepo, NewMockProvider(), nil, zerolog.Nop())
	report, err := svc.Reconcile(context.Background(), testPeriod, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Discrepancies)
}
