package service

import (
	"context"
	"testing"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUsageService(repo *fakeUsageRepo) *UsageService {
	return NewUsageService(repo, 5*time.Minute, zerolog.Nop())
}

func TestRecordUsageValidation(t *testing.T) {
	svc := newTestUsageService(newFakeUsageRepo())
	scope := testTenant("acme", model.PlanBasic).Scope()
	ctx := context.Background()

	var validationErr *model.ValidationError

	_, err := svc.RecordUsage(ctx, scope, &model.UsageEvent{Quantity: 1})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "metric", validationErr.Field)

	_, err = svc.RecordUsage(ctx, scope, &model.UsageEvent{Metric: model.MetricAPICalls, Quantity: -1})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "quantity", validationErr.Field)

	price := int64(-5)
	_, err = svc.RecordUsage(ctx, scope, &model.UsageEvent{Metric: model.MetricAPICalls, Quantity: 1, UnitPriceCents: &price})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "unit_price_cents", validationErr.Field)

	_, err = svc.RecordUsage(ctx, scope, &model.UsageEvent{
		Metric:     model.MetricAPICalls,
		Quantity:   1,
		RecordedAt: time.Now().Add(time.Hour),
	})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "recorded_at", validationErr.Field)
}

func TestRecordUsageDefaultsTimestamp(t *testing.T) {
	svc := newTestUsageService(newFakeUsageRepo())
	scope := testTenant("acme", model.PlanBasic).Scope()

	before := time.Now().UTC()
	ev, err := svc.RecordUsage(context.Background(), scope, &model.UsageEvent{
		Metric:   model.MetricAPICalls,
		Quantity: 3,
	})
	require.NoError(t, err)
	assert.False(t, ev.RecordedAt.Before(before))
	assert.Equal(t, scope.TenantID, ev.TenantID)
	assert.NotEqual(t, uuid.Nil, ev.ID)
}

func TestQueryUsageInvalidRange(t *testing.T) {
	svc := newTestUsageService(newFakeUsageRepo())
	scope := testTenant("acme", model.PlanBasic).Scope()

	now := time.Now()
	_, err := svc.QueryUsage(context.Background(), scope, model.UsageFilter{
		Start: now,
		End:   now.Add(-time.Hour),
	})
	var rangeErr *model.InvalidRangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestAggregateMatchesPaginatedSum(t *testing.T) {
	repo := newFakeUsageRepo()
	svc := newTestUsageService(repo)
	scope := testTenant("acme", model.PlanBasic).Scope()
	ctx := context.Background()

	base := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	var want int64
	for i := 0; i < 25; i++ {
		qty := int64(i + 1)
		want += qty
		_, err := svc.RecordUsage(ctx, scope, &model.UsageEvent{
			Metric:     model.MetricAPICalls,
			Quantity:   qty,
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	// A different metric inside the window must not leak into the sum.
	_, err := svc.RecordUsage(ctx, scope, &model.UsageEvent{
		Metric:     model.MetricStorageMB,
		Quantity:   999,
		RecordedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)

	end := base.Add(time.Hour)
	total, err := svc.AggregateUsage(ctx, scope, model.MetricAPICalls, base, end)
	require.NoError(t, err)
	assert.Equal(t, want, total)

	// Full pagination over the same window sums to the aggregate.
	var paged int64
	for offset := 0; ; offset += 10 {
		events, err := svc.QueryUsage(ctx, scope, model.UsageFilter{
			Start:  base,
			End:    end,
			Metric: model.MetricAPICalls,
			Limit:  10,
			Offset: offset,
		})
		require.NoError(t, err)
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			paged += ev.Quantity
		}
	}
	assert.Equal(t, total, paged)
}

func TestPeriodUsageCoversAllMetrics(t *testing.T) {
	repo := newFakeUsageRepo()
	svc := newTestUsageService(repo)
	scope := testTenant("acme", model.PlanBasic).Scope()
	ctx := context.Background()

	period := model.BillingPeriod{Year: 2025, Month: time.July}
	_, err := svc.RecordUsage(ctx, scope, &model.UsageEvent{
		Metric:     model.MetricAPICalls,
		Quantity:   42,
		RecordedAt: period.Start().Add(time.Hour),
	})
	require.NoError(t, err)

	// An event on the period boundary belongs to the next period.
	_, err = svc.RecordUsage(ctx, scope, &model.UsageEvent{
		Metric:     model.MetricAPICalls,
		Quantity:   7,
		RecordedAt: period.End(),
	})
	require.NoError(t, err)

	usage, err := svc.PeriodUsage(ctx, scope, period)
	require.NoError(t, err)
	assert.Equal(t, int64(42), usage[model.MetricAPICalls])
	assert.Equal(t, int64(0), usage[model.MetricStorageMB])
}
