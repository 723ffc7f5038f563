package service

import (
	"context"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

const defaultUsageQueryLimit = 100

// UsageService validates and records metering events, and answers usage
// queries and aggregations over a tenant's ledger.
type UsageService struct {
	usageRepo     repository.UsageRepository
	maxFutureSkew time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

// NewUsageService creates a new UsageService.
func NewUsageService(usageRepo repository.UsageRepository, maxFutureSkew time.Duration, logger zerolog.Logger) *UsageService {
	return &UsageService{
		usageRepo:     usageRepo,
		maxFutureSkew: maxFutureSkew,
		now:           time.Now,
		logger:        logger.With().Str("service", "UsageService").Logger(),
	}
}

// RecordUsage appends one event to the tenant's ledger. A zero RecordedAt
// defaults to the current time; timestamps further in the future than the
// allowed clock skew are rejected.
func (s *UsageService) RecordUsage(ctx context.Context, scope model.TenantScope, ev *model.UsageEvent) (*model.UsageEvent, error) {
	if ev.Metric == "" {
		return nil, &model.ValidationError{Field: "metric", Reason: "must not be empty"}
	}
	if ev.Quantity < 0 {
		return nil, &model.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if ev.UnitPriceCents != nil && *ev.UnitPriceCents < 0 {
		return nil, &model.ValidationError{Field: "unit_price_cents", Reason: "must not be negative"}
	}

	now := s.now().UTC()
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = now
	} else {
		ev.RecordedAt = ev.RecordedAt.UTC()
	}
	if ev.RecordedAt.After(now.Add(s.maxFutureSkew)) {
		return nil, &model.ValidationError{Field: "recorded_at", Reason: "timestamp is too far in the future"}
	}

	out, err := s.usageRepo.Insert(ctx, scope, ev)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", scope.TenantID.String()).Msg("Failed to record usage event")
		return nil, err
	}
	return out, nil
}

// QueryUsage returns events in [start, end) ordered by recording time.
func (s *UsageService) QueryUsage(ctx context.Context, scope model.TenantScope, f model.UsageFilter) ([]model.UsageEvent, error) {
	if f.Start.After(f.End) {
		return nil, &model.InvalidRangeError{Start: f.Start, End: f.End}
	}
	if f.Limit <= 0 {
		f.Limit = defaultUsageQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.usageRepo.Query(ctx, scope, f)
}

// AggregateUsage sums one metric's quantities over [start, end).
func (s *UsageService) AggregateUsage(ctx context.Context, scope model.TenantScope, metric model.Metric, start, end time.Time) (int64, error) {
	if metric == "" {
		return 0, &model.ValidationError{Field: "metric", Reason: "must not be empty"}
	}
	if start.After(end) {
		return 0, &model.InvalidRangeError{Start: start, End: end}
	}
	return s.usageRepo.Aggregate(ctx, scope, metric, start, end)
}

// PeriodUsage aggregates every known metric over one billing period. This is
// the billing run's read of the ledger.
func (s *UsageService) PeriodUsage(ctx context.Context, scope model.TenantScope, period model.BillingPeriod) (map[model.Metric]int64, error) {
	usage := make(map[model.Metric]int64, len(model.Metrics()))
	for _, metric := range model.Metrics() {
		total, err := s.usageRepo.Aggregate(ctx, scope, metric, period.Start(), period.End())
		if err != nil {
			return nil, err
		}
		usage[metric] = total
	}
	return usage, nil
}
