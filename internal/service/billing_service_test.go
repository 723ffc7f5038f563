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

type capturingPublisher struct {
	mu     sync.Mutex
	events []BillingEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event BillingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) byType(eventType string) []BillingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []BillingEvent
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type billingFixture struct {
	tenantRepo  *fakeTenantRepo
	usageRepo   *fakeUsageRepo
	billingRepo *fakeBillingRepo
	provider    *MockProvider
	publisher   *capturingPublisher
	svc         *BillingService
}

func newBillingFixture(tenants ...model.Tenant) *billingFixture {
	f := &billingFixture{
		tenantRepo:  newFakeTenantRepo(tenants...),
		usageRepo:   newFakeUsageRepo(),
		billingRepo: newFakeBillingRepo(),
		provider:    NewMockProvider(),
		publisher:   &capturingPublisher{},
	}
	usageSvc := NewUsageService(f.usageRepo, 5*time.Minute, zerolog.Nop())
	f.svc = NewBillingService(f.tenantRepo, f.billingRepo, usageSvc, NewPlanCatalog(),
		f.provider, f.publisher, "usd", 4, zerolog.Nop())
	return f
}

func (f *billingFixture) addUsage(t *testing.T, tenant model.Tenant, period model.BillingPeriod, metric model.Metric, qty int64) {
	t.Helper()
	_, err := f.usageRepo.Insert(context.Background(), tenant.Scope(), &model.UsageEvent{
		Metric:     metric,
		Quantity:   qty,
		RecordedAt: period.Start().Add(time.Hour),
	})
	require.NoError(t, err)
}

var testPeriod = model.BillingPeriod{Year: 2025, Month: time.July}

func TestBillingRunChargesOverage(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	f := newBillingFixture(tenant)
	f.addUsage(t, tenant, testPeriod, model.MetricAPICalls, 12_500)

	result, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 1)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, "completed", result.Tenants[0].Status)
	assert.Equal(t, int64(2025), result.Tenants[0].Charge.TotalCents)

	rec, err := f.billingRepo.GetForPeriod(context.Background(), tenant.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusCompleted, rec.Status)
	assert.Equal(t, int64(2025), rec.TotalCents)
	assert.Equal(t, model.IdempotencyKey(tenant.ID, testPeriod), rec.IdempotencyKey)
	assert.NotEmpty(t, rec.ProviderChargeID)

	completed := f.publisher.byType("billing.completed")
	require.Len(t, completed, 1)
	assert.Equal(t, tenant.ID, completed[0].TenantID)
}

func TestBillingRunIdempotent(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	f := newBillingFixture(tenant)
	f.addUsage(t, tenant, testPeriod, model.MetricAPICalls, 12_500)

	_, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)

	// Re-running the same period must not touch the provider again.
	result, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 1)
	assert.Equal(t, "skipped", result.Tenants[0].Status)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, f.provider.ChargeCalls())
}

func TestBillingRunTenantIsolation(t *testing.T) {
	good := testTenant("good", model.PlanBasic)
	declined := testTenant("declined", model.PlanBasic)
	slow := testTenant("slow", model.PlanBasic)
	f := newBillingFixture(good, declined, slow)
	for _, tenant := range []model.Tenant{good, declined, slow} {
		f.addUsage(t, tenant, testPeriod, model.MetricAPICalls, 12_500)
	}
	f.provider.FailChargesFor(declined.ProviderCustomerID, "card_declined", "insufficient_funds")
	f.provider.TimeoutChargesFor(slow.ProviderCustomerID)

	result, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 3)

	statuses := make(map[string]string)
	for _, r := range result.Tenants {
		statuses[r.TenantID.String()] = r.Status
	}
	assert.Equal(t, "completed", statuses[good.ID.String()])
	assert.Equal(t, "failed", statuses[declined.ID.String()])
	assert.Equal(t, "failed", statuses[slow.ID.String()])
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)

	// The declined tenant's record is failed and keeps the decline reason.
	rec, err := f.billingRepo.GetForPeriod(context.Background(), declined.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusFailed, rec.Status)
	assert.Contains(t, rec.FailureReason, "card_declined")

	// The timed-out tenant's record is failed too; a retry under the same
	// idempotency key is safe.
	rec, err = f.billingRepo.GetForPeriod(context.Background(), slow.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusFailed, rec.Status)

	// The good tenant's outcome is untouched by its neighbors.
	rec, err = f.billingRepo.GetForPeriod(context.Background(), good.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusCompleted, rec.Status)
}

func TestBillingRunTimeoutCountsAsFailed(t *testing.T) {
	a := testTenant("alpha", model.PlanBasic)
	b := testTenant("beta", model.PlanBasic)
	c := testTenant("gamma", model.PlanBasic)
	f := newBillingFixture(a, b, c)
	for _, tenant := range []model.Tenant{a, b, c} {
		f.addUsage(t, tenant, testPeriod, model.MetricAPICalls, 12_500)
	}
	f.provider.TimeoutChargesFor(b.ProviderCustomerID)

	result, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	rec, err := f.billingRepo.GetForPeriod(context.Background(), b.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusFailed, rec.Status)

	// The provider recovered: a rerun reuses the same key and charges once.
	f.provider.ClearChargeOverridesFor(b.ProviderCustomerID)
	rerun, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod, TenantID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, "completed", rerun.Tenants[0].Status)

	rec, err = f.billingRepo.GetForPeriod(context.Background(), b.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusCompleted, rec.Status)
	assert.Equal(t, model.IdempotencyKey(b.ID, testPeriod), rec.IdempotencyKey)
}

func TestBillingRunDryRun(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	f := newBillingFixture(tenant)
	f.addUsage(t, tenant, testPeriod, model.MetricAPICalls, 12_500)

	dry, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod, DryRun: true})
	require.NoError(t, err)
	require.Len(t, dry.Tenants, 1)
	assert.Equal(t, "dry_run", dry.Tenants[0].Status)
	assert.Equal(t, int64(2025), dry.Tenants[0].Charge.TotalCents)
	assert.Equal(t, 0, f.provider.ChargeCalls())

	_, err = f.billingRepo.GetForPeriod(context.Background(), tenant.Scope(), testPeriod)
	var notFound *model.NotFoundError
	require.ErrorAs(t, err, &notFound)

	// A committed run over the same ledger produces the same totals.
	committed, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)
	assert.Equal(t, dry.Tenants[0].Charge, committed.Tenants[0].Charge)
}

func TestBillingRunZeroTotalCompletesWithoutCharge(t *testing.T) {
	tenant := testTenant("freeloader", model.PlanFree)
	f := newBillingFixture(tenant)

	// An explicit tenant is billed even on a plan with overage disabled.
	result, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod, TenantID: tenant.ID})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 1)
	assert.Equal(t, "completed", result.Tenants[0].Status)
	assert.Equal(t, 0, f.provider.ChargeCalls())

	rec, err := f.billingRepo.GetForPeriod(context.Background(), tenant.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusCompleted, rec.Status)
	assert.Equal(t, int64(0), rec.TotalCents)
	assert.Empty(t, rec.ProviderChargeID)
}

func TestBillingRunSkipsIneligiblePlans(t *testing.T) {
	free := testTenant("free", model.PlanFree)
	basic := testTenant("basic", model.PlanBasic)
	enterprise := testTenant("enterprise", model.PlanEnterprise)
	f := newBillingFixture(free, basic, enterprise)

	result, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 1)
	assert.Equal(t, basic.ID, result.Tenants[0].TenantID)
}

func TestBillingRunFailedRecordRetries(t *testing.T) {
	tenant := testTenant("retry", model.PlanBasic)
	f := newBillingFixture(tenant)
	f.addUsage(t, tenant, testPeriod, model.MetricAPICalls, 12_500)

	f.provider.FailChargesFor(tenant.ProviderCustomerID, "card_declined", "insufficient_funds")
	_, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)

	failedRec, err := f.billingRepo.GetForPeriod(context.Background(), tenant.Scope(), testPeriod)
	require.NoError(t, err)
	require.Equal(t, model.BillingStatusFailed, failedRec.Status)

	// Card fixed: the retry reuses the same record and idempotency key.
	f.provider.ClearChargeOverridesFor(tenant.ProviderCustomerID)

	result, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Tenants[0].Status)

	rec, err := f.billingRepo.GetForPeriod(context.Background(), tenant.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, failedRec.ID, rec.ID)
	assert.Equal(t, failedRec.IdempotencyKey, rec.IdempotencyKey)
	assert.Equal(t, model.BillingStatusCompleted, rec.Status)
}

func TestResolveStuckPending(t *testing.T) {
	tenant := testTenant("slow", model.PlanBasic)
	f := newBillingFixture(tenant)

	// A record left pending by an interrupted run, before the provider call
	// reported back.
	f.billingRepo.seed(tenant.Scope(), model.BillingRecord{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		Period:         testPeriod,
		TotalCents:     2025,
		Status:         model.BillingStatusPending,
		IdempotencyKey: model.IdempotencyKey(tenant.ID, testPeriod),
		UpdatedAt:      time.Now().Add(-time.Hour),
	})

	// The sweep retries under the original key and the tenant is charged
	// exactly once.
	resolved, err := f.svc.ResolveStuckPending(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 1, f.provider.ChargeCalls())

	rec, err := f.billingRepo.GetForPeriod(context.Background(), tenant.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, model.BillingStatusCompleted, rec.Status)
	assert.NotEmpty(t, rec.ProviderChargeID)

	// A second sweep finds nothing left to resolve.
	resolved, err = f.svc.ResolveStuckPending(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)
	assert.Equal(t, 1, f.provider.ChargeCalls())
}

func TestRefundRecord(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	f := newBillingFixture(tenant)
	f.addUsage(t, tenant, testPeriod, model.MetricAPICalls, 12_500)

	_, err := f.svc.Run(context.Background(), BillingRunRequest{Period: testPeriod})
	require.NoError(t, err)

	refund, err := f.svc.RefundRecord(context.Background(), tenant.Scope(), testPeriod)
	require.NoError(t, err)
	assert.Equal(t, int64(2025), refund.AmountCents)

	// Only completed records are refundable.
	other := model.BillingPeriod{Year: 2025, Month: time.August}
	_, err = f.svc.RefundRecord(context.Background(), tenant.Scope(), other)
	var notFound *model.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
