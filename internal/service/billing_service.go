package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BillingEventPublisher emits billing lifecycle events. Publishing is
// best-effort; a publish failure never fails the billing run.
type BillingEventPublisher interface {
	Publish(ctx context.Context, event BillingEvent) error
}

// BillingEvent is one billing lifecycle notification.
type BillingEvent struct {
	Type       string    `json:"type"` // billing.completed | billing.failed
	TenantID   uuid.UUID `json:"tenant_id"`
	Period     string    `json:"period"`
	TotalCents int64     `json:"total_cents"`
	ChargeID   string    `json:"charge_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BillingRunRequest selects what to bill. A zero Period defaults to the
// previous calendar month. An explicit TenantID bills that tenant alone,
// regardless of plan eligibility; otherwise every active tenant on an
// overage-enabled plan is billed.
type BillingRunRequest struct {
	Period   model.BillingPeriod
	TenantID uuid.UUID
	DryRun   bool
}

// TenantBillingResult is the per-tenant outcome of one run.
type TenantBillingResult struct {
	TenantID uuid.UUID            `json:"tenant_id"`
	Plan     model.Plan           `json:"plan"`
	Charge   model.ItemizedCharge `json:"charge"`
	Status   string               `json:"status"` // completed | pending | failed | skipped | dry_run
	ChargeID string               `json:"charge_id,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// BillingRunResult summarizes one run across all processed tenants.
type BillingRunResult struct {
	Period    model.BillingPeriod   `json:"period"`
	DryRun    bool                  `json:"dry_run"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Skipped   int                   `json:"skipped"`
	Tenants   []TenantBillingResult `json:"tenants"`
}

// BillingService orchestrates billing runs: it aggregates each tenant's
// usage, prices it, persists the record, and collects payment. Tenants are
// processed with bounded concurrency and full fault isolation; one tenant's
// failure never touches another's outcome.
type BillingService struct {
	tenantRepo  repository.TenantRepository
	billingRepo repository.BillingRepository
	usage       *UsageService
	catalog     *PlanCatalog
	provider    PaymentProvider
	publisher   BillingEventPublisher
	currency    string
	workers     int
	now         func() time.Time
	logger      zerolog.Logger
}

// NewBillingService creates a new BillingService. publisher may be nil.
func NewBillingService(
	tenantRepo repository.TenantRepository,
	billingRepo repository.BillingRepository,
	usage *UsageService,
	catalog *PlanCatalog,
	provider PaymentProvider,
	publisher BillingEventPublisher,
	currency string,
	workers int,
	logger zerolog.Logger,
) *BillingService {
	if workers <= 0 {
		workers = 1
	}
	return &BillingService{
		tenantRepo:  tenantRepo,
		billingRepo: billingRepo,
		usage:       usage,
		catalog:     catalog,
		provider:    provider,
		publisher:   publisher,
		currency:    currency,
		workers:     workers,
		now:         time.Now,
		logger:      logger.With().Str("service", "BillingService").Logger(),
	}
}

// Run executes one billing run and returns the per-tenant outcomes.
func (s *BillingService) Run(ctx context.Context, req BillingRunRequest) (*BillingRunResult, error) {
	period := req.Period
	if period.IsZero() {
		period = model.PreviousBillingPeriod(s.now())
	}

	tenants, err := s.resolveTenants(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("period", period.String()).
		Bool("dry_run", req.DryRun).
		Int("tenants", len(tenants)).
		Msg("Starting billing run")

	results := make([]TenantBillingResult, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, tenant := range tenants {
		g.Go(func() error {
			// Failures land in the result; the group only propagates
			// cancellation of the run itself.
			results[i] = s.billTenant(gctx, tenant, period, req.DryRun)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &BillingRunResult{Period: period, DryRun: req.DryRun, Tenants: results}
	for _, r := range results {
		switch r.Status {
		case "completed", "pending", "dry_run":
			out.Succeeded++
		case "skipped":
			out.Skipped++
		default:
			out.Failed++
		}
	}
	s.logger.Info().
		Str("period", period.String()).
		Int("succeeded", out.Succeeded).
		Int("failed", out.Failed).
		Int("skipped", out.Skipped).
		Msg("Billing run finished")
	return out, nil
}

// resolveTenants picks the run's tenant set. An explicit tenant is billed
// even on a plan with overage disabled; a full run only bills plans that
// meter overage.
func (s *BillingService) resolveTenants(ctx context.Context, req BillingRunRequest) ([]model.Tenant, error) {
	if req.TenantID != uuid.Nil {
		tenant, err := s.tenantRepo.GetByID(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		return []model.Tenant{*tenant}, nil
	}
	active, err := s.tenantRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	tenants := make([]model.Tenant, 0, len(active))
	for _, t := range active {
		if s.catalog.IsOverageEnabled(t.Plan) {
			tenants = append(tenants, t)
		}
	}
	return tenants, nil
}

func (s *BillingService) billTenant(ctx context.Context, tenant model.Tenant, period model.BillingPeriod, dryRun bool) TenantBillingResult {
	res := TenantBillingResult{TenantID: tenant.ID, Plan: tenant.Plan}
	logger := s.logger.With().
		Str("tenant_id", tenant.ID.String()).
		Str("period", period.String()).
		Logger()

	usage, err := s.usage.PeriodUsage(ctx, tenant.Scope(), period)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to aggregate tenant usage")
		res.Status = "failed"
		res.Error = err.Error()
		return res
	}
	res.Charge = ComputeCharge(s.catalog.Get(tenant.Plan), usage)

	if dryRun {
		res.Status = "dry_run"
		return res
	}

	rec := &model.BillingRecord{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		Period:         period,
		Lines:          res.Charge.Lines,
		TotalCents:     res.Charge.TotalCents,
		IdempotencyKey: model.IdempotencyKey(tenant.ID, period),
	}
	rec, err = s.billingRepo.UpsertPending(ctx, tenant.Scope(), rec)
	if err != nil {
		var conflict *model.ConflictError
		if errors.As(err, &conflict) {
			logger.Info().Msg("Period already billed, skipping")
			res.Status = "skipped"
			return res
		}
		logger.Error().Err(err).Msg("Failed to persist billing record")
		res.Status = "failed"
		res.Error = err.Error()
		return res
	}

	// Nothing owed: complete without touching the provider.
	if rec.TotalCents == 0 {
		if err := s.billingRepo.MarkCompleted(ctx, tenant.Scope(), rec.ID, ""); err != nil {
			logger.Error().Err(err).Msg("Failed to complete zero-total billing record")
			res.Status = "failed"
			res.Error = err.Error()
			return res
		}
		res.Status = "completed"
		s.publish(ctx, BillingEvent{
			Type: "billing.completed", TenantID: tenant.ID, Period: period.String(), OccurredAt: s.now().UTC(),
		})
		return res
	}

	charge, err := s.provider.CreateCharge(ctx, ChargeRequest{
		AmountCents:    rec.TotalCents,
		Currency:       s.currency,
		CustomerID:     tenant.ProviderCustomerID,
		Description:    fmt.Sprintf("Usage charges for %s", period),
		IdempotencyKey: rec.IdempotencyKey,
		Metadata: map[string]string{
			"tenant_id": tenant.ID.String(),
			"period":    period.String(),
		},
	})
	if err != nil {
		reason := err.Error()
		var timeoutErr *model.TimeoutError
		if errors.As(err, &timeoutErr) {
			// Outcome indeterminate: the provider may still have charged. The
			// record goes to failed so the run reports it; a retry reuses the
			// same idempotency key and converges on the earlier charge if one
			// was made.
			logger.Warn().Err(err).Msg("Charge timed out")
		} else {
			logger.Error().Err(err).Msg("Charge failed")
		}
		if markErr := s.billingRepo.MarkFailed(ctx, tenant.Scope(), rec.ID, reason); markErr != nil {
			logger.Error().Err(markErr).Msg("Failed to mark billing record failed")
		}
		res.Status = "failed"
		res.Error = reason
		s.publish(ctx, BillingEvent{
			Type: "billing.failed", TenantID: tenant.ID, Period: period.String(),
			TotalCents: rec.TotalCents, Reason: reason, OccurredAt: s.now().UTC(),
		})
		return res
	}

	res.ChargeID = charge.ChargeID
	switch charge.Status {
	case ChargeStatusSucceeded:
		if err := s.billingRepo.MarkCompleted(ctx, tenant.Scope(), rec.ID, charge.ChargeID); err != nil {
			logger.Error().Err(err).Msg("Failed to mark billing record completed")
			res.Status = "failed"
			res.Error = err.Error()
			return res
		}
		res.Status = "completed"
		s.publish(ctx, BillingEvent{
			Type: "billing.completed", TenantID: tenant.ID, Period: period.String(),
			TotalCents: rec.TotalCents, ChargeID: charge.ChargeID, OccurredAt: s.now().UTC(),
		})
	case ChargeStatusPending:
		if err := s.billingRepo.SetProviderCharge(ctx, tenant.Scope(), rec.ID, charge.ChargeID); err != nil {
			logger.Error().Err(err).Msg("Failed to attach provider charge id")
		}
		logger.Info().Str("charge_id", charge.ChargeID).Msg("Charge pending at provider")
		res.Status = "pending"
	default:
		reason := charge.FailureCode
		if charge.DeclineCode != "" {
			reason += " (" + charge.DeclineCode + ")"
		}
		logger.Warn().Str("failure_code", charge.FailureCode).Str("decline_code", charge.DeclineCode).Msg("Charge declined")
		if err := s.billingRepo.MarkFailed(ctx, tenant.Scope(), rec.ID, reason); err != nil {
			logger.Error().Err(err).Msg("Failed to mark billing record failed")
		}
		res.Status = "failed"
		res.Error = reason
		s.publish(ctx, BillingEvent{
			Type: "billing.failed", TenantID: tenant.ID, Period: period.String(),
			TotalCents: rec.TotalCents, Reason: reason, OccurredAt: s.now().UTC(),
		})
	}
	return res
}

// GetRecord returns the tenant's billing record for the period.
func (s *BillingService) GetRecord(ctx context.Context, scope model.TenantScope, period model.BillingPeriod) (*model.BillingRecord, error) {
	return s.billingRepo.GetForPeriod(ctx, scope, period)
}

// RefundRecord refunds a completed record's charge in full. The local record
// keeps its charge id for audit; the provider ledger carries the refund.
func (s *BillingService) RefundRecord(ctx context.Context, scope model.TenantScope, period model.BillingPeriod) (*RefundResult, error) {
	rec, err := s.billingRepo.GetForPeriod(ctx, scope, period)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.BillingStatusCompleted {
		return nil, &model.ConflictError{Resource: "billing record", Reason: "only completed records can be refunded"}
	}
	if rec.ProviderChargeID == "" {
		return nil, &model.ConflictError{Resource: "billing record", Reason: "record has no provider charge"}
	}
	return s.provider.RefundCharge(ctx, rec.ProviderChargeID, rec.TotalCents)
}

// ResolveStuckPending re-checks pending records older than the cutoff against
// the provider and settles the ones that have since reached a terminal state.
// Records without a provider charge id (a run interrupted mid-charge) are
// retried under their original idempotency key and cannot double-bill.
func (s *BillingService) ResolveStuckPending(ctx context.Context, cutoff time.Time) (int, error) {
	tenants, err := s.tenantRepo.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, tenant := range tenants {
		recs, err := s.billingRepo.ListStuckPending(ctx, tenant.Scope(), cutoff)
		if err != nil {
			s.logger.Error().Err(err).Str("tenant_id", tenant.ID.String()).Msg("Failed to list stuck pending records")
			continue
		}
		for _, rec := range recs {
			if s.resolvePending(ctx, tenant, rec) {
				resolved++
			}
		}
	}
	return resolved, nil
}

func (s *BillingService) resolvePending(ctx context.Context, tenant model.Tenant, rec model.BillingRecord) bool {
	logger := s.logger.With().
		Str("tenant_id", tenant.ID.String()).
		Str("period", rec.Period.String()).
		Logger()

	var charge *ChargeResult
	var err error
	if rec.ProviderChargeID != "" {
		charge, err = s.provider.RetrieveCharge(ctx, rec.ProviderChargeID)
	} else {
		// The original call's outcome is unknown. Re-sending under the same
		// key either surfaces the earlier charge or makes it now.
		charge, err = s.provider.CreateCharge(ctx, ChargeRequest{
			AmountCents:    rec.TotalCents,
			Currency:       s.currency,
			CustomerID:     tenant.ProviderCustomerID,
			Description:    fmt.Sprintf("Usage charges for %s", rec.Period),
			IdempotencyKey: rec.IdempotencyKey,
		})
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Could not resolve pending billing record")
		return false
	}

	switch charge.Status {
	case ChargeStatusSucceeded:
		if err := s.billingRepo.MarkCompleted(ctx, tenant.Scope(), rec.ID, charge.ChargeID); err != nil {
			logger.Error().Err(err).Msg("Failed to complete resolved billing record")
			return false
		}
		logger.Info().Str("charge_id", charge.ChargeID).Msg("Resolved pending billing record as completed")
		s.publish(ctx, BillingEvent{
			Type: "billing.completed", TenantID: tenant.ID, Period: rec.Period.String(),
			TotalCents: rec.TotalCents, ChargeID: charge.ChargeID, OccurredAt: s.now().UTC(),
		})
		return true
	case ChargeStatusFailed:
		reason := charge.FailureCode
		if err := s.billingRepo.MarkFailed(ctx, tenant.Scope(), rec.ID, reason); err != nil {
			logger.Error().Err(err).Msg("Failed to fail resolved billing record")
			return false
		}
		logger.Info().Str("failure_code", reason).Msg("Resolved pending billing record as failed")
		return true
	default:
		if rec.ProviderChargeID == "" && charge.ChargeID != "" {
			if err := s.billingRepo.SetProviderCharge(ctx, tenant.Scope(), rec.ID, charge.ChargeID); err != nil {
				logger.Error().Err(err).Msg("Failed to attach provider charge id")
			}
		}
		return false
	}
}

func (s *BillingService) publish(ctx context.Context, event BillingEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("Failed to publish billing event")
	}
}
