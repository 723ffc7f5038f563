package service

import (
	"context"
	"testing"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubscriptionFixture(tenants ...model.Tenant) (*SubscriptionService, *fakeTenantRepo, *fakeSubscriptionRepo, *MockProvider) {
	tenantRepo := newFakeTenantRepo(tenants...)
	subRepo := newFakeSubscriptionRepo()
	provider := NewMockProvider()
	svc := NewSubscriptionService(tenantRepo, subRepo, provider, NewPlanCatalog(),
		"http://localhost/refresh", "http://localhost/return", "usd", zerolog.Nop())
	return svc, tenantRepo, subRepo, provider
}

func TestChangePlan(t *testing.T) {
	tenant := testTenant("acme", model.PlanFree)
	svc, _, _, _ := newSubscriptionFixture(tenant)
	ctx := context.Background()

	sub, err := svc.ChangePlan(ctx, tenant.ID, model.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, sub.Plan)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart))

	// Unknown plans are rejected before touching storage.
	_, err = svc.ChangePlan(ctx, tenant.ID, model.Plan("platinum"))
	var validationErr *model.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestChangePlanRepricesBilling(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	tenantRepo := newFakeTenantRepo(tenant)
	subRepo := newFakeSubscriptionRepo()
	provider := NewMockProvider()
	catalog := NewPlanCatalog()
	subSvc := NewSubscriptionService(tenantRepo, subRepo, provider, catalog,
		"http://localhost/refresh", "http://localhost/return", "usd", zerolog.Nop())

	usageRepo := newFakeUsageRepo()
	billingRepo := newFakeBillingRepo()
	usageSvc := NewUsageService(usageRepo, 5*time.Minute, zerolog.Nop())
	billingSvc := NewBillingService(tenantRepo, billingRepo, usageSvc, catalog,
		provider, nil, "usd", 1, zerolog.Nop())

	period := model.BillingPeriod{Year: 2025, Month: time.July}
	_, err := usageRepo.Insert(context.Background(), tenant.Scope(), &model.UsageEvent{
		Metric:     model.MetricAPICalls,
		Quantity:   12_500,
		RecordedAt: period.Start().Add(time.Hour),
	})
	require.NoError(t, err)

	// Moving to enterprise must reprice the next run, not just the
	// subscription row.
	_, err = subSvc.ChangePlan(context.Background(), tenant.ID, model.PlanEnterprise)
	require.NoError(t, err)

	stored, err := tenantRepo.GetByID(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanEnterprise, stored.Plan)

	result, err := billingSvc.Run(context.Background(), BillingRunRequest{Period: period, TenantID: tenant.ID})
	require.NoError(t, err)
	require.Len(t, result.Tenants, 1)
	assert.Equal(t, model.PlanEnterprise, result.Tenants[0].Plan)
	assert.Equal(t, int64(0), result.Tenants[0].Charge.TotalCents)
	assert.Equal(t, 0, provider.ChargeCalls())
}

func TestCancelAtPeriodEnd(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	svc, _, _, _ := newSubscriptionFixture(tenant)
	ctx := context.Background()

	_, err := svc.ChangePlan(ctx, tenant.ID, model.PlanBasic)
	require.NoError(t, err)

	sub, err := svc.CancelAtPeriodEnd(ctx, tenant.ID, true)
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)

	sub, err = svc.CancelAtPeriodEnd(ctx, tenant.ID, false)
	require.NoError(t, err)
	assert.False(t, sub.CancelAtPeriodEnd)
}

func TestApplyProviderStatus(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	svc, _, subRepo, _ := newSubscriptionFixture(tenant)
	ctx := context.Background()

	_, err := svc.ChangePlan(ctx, tenant.ID, model.PlanBasic)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyProviderStatus(ctx, tenant.ID, model.SubscriptionStatusPastDue, "sub_123"))
	sub, err := subRepo.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, "sub_123", sub.ProviderSubscriptionID)

	err = svc.ApplyProviderStatus(ctx, tenant.ID, model.SubscriptionStatus("paused"), "")
	var validationErr *model.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestConnectOnboardingReusesAccount(t *testing.T) {
	tenant := testTenant("acme", model.PlanPro)
	svc, tenantRepo, _, _ := newSubscriptionFixture(tenant)
	ctx := context.Background()

	link, err := svc.StartConnectOnboarding(ctx, tenant.ID, "owner@acme.test")
	require.NoError(t, err)
	assert.NotEmpty(t, link.URL)

	stored, err := tenantRepo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ConnectAccountID)

	// A second onboarding call reuses the stored account.
	_, err = svc.StartConnectOnboarding(ctx, tenant.ID, "owner@acme.test")
	require.NoError(t, err)
	again, err := tenantRepo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ConnectAccountID, again.ConnectAccountID)

	status, err := svc.ConnectStatus(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ConnectAccountID, status.AccountID)
	assert.False(t, status.PayoutsEnabled)
}

func TestPayoutGatedOnPayoutsEnabled(t *testing.T) {
	tenant := testTenant("acme", model.PlanPro)
	svc, tenantRepo, _, provider := newSubscriptionFixture(tenant)
	ctx := context.Background()

	// No Connect account yet.
	_, err := svc.PayoutTenant(ctx, tenant.ID, 1000, "July revenue share", "payout-1")
	var notFound *model.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = svc.StartConnectOnboarding(ctx, tenant.ID, "owner@acme.test")
	require.NoError(t, err)
	stored, err := tenantRepo.GetByID(ctx, tenant.ID)
	require.NoError(t, err)

	// Onboarding incomplete: payouts are still blocked even though the
	// account exists.
	_, err = svc.PayoutTenant(ctx, tenant.ID, 1000, "July revenue share", "payout-1")
	var conflictErr *model.ConflictError
	require.ErrorAs(t, err, &conflictErr)

	provider.SetAccountStatus(ConnectAccountStatus{
		AccountID:        stored.ConnectAccountID,
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
	})
	transfer, err := svc.PayoutTenant(ctx, tenant.ID, 1000, "July revenue share", "payout-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), transfer.AmountCents)
	assert.Equal(t, TransferStatusPaid, transfer.Status)

	// The same idempotency key returns the same transfer.
	again, err := svc.PayoutTenant(ctx, tenant.ID, 1000, "July revenue share", "payout-1")
	require.NoError(t, err)
	assert.Equal(t, transfer.TransferID, again.TransferID)

	// Basic input validation.
	_, err = svc.PayoutTenant(ctx, tenant.ID, 0, "", "payout-2")
	var validationErr *model.ValidationError
	require.ErrorAs(t, err, &validationErr)
	_, err = svc.PayoutTenant(ctx, tenant.ID, 1000, "", "")
	require.ErrorAs(t, err, &validationErr)
}

func TestSubscriptionPeriodSpansOneMonth(t *testing.T) {
	tenant := testTenant("acme", model.PlanBasic)
	svc, _, _, _ := newSubscriptionFixture(tenant)

	sub, err := svc.ChangePlan(context.Background(), tenant.ID, model.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, sub.CurrentPeriodStart.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
	assert.WithinDuration(t, time.Now().UTC(), sub.CurrentPeriodStart, time.Minute)
}
