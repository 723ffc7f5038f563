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
)

// ReportArchiver persists a finished reconciliation report. Archival is
// best-effort; an archive failure never fails report generation.
type ReportArchiver interface {
	Archive(ctx context.Context, report *ReconciliationReport) error
}

// Discrepancy is one divergence between a local billing record and the
// provider's view of its charge.
type Discrepancy struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Kind     string    `json:"kind"` // amount_mismatch | status_mismatch | missing_charge
	ChargeID string    `json:"charge_id,omitempty"`
	Expected string    `json:"expected"`
	Actual   string    `json:"actual"`
}

// ReconciledRecord is one local billing record listed in the report.
type ReconciledRecord struct {
	TenantID         uuid.UUID           `json:"tenant_id"`
	TotalCents       int64               `json:"total_cents"`
	Status           model.BillingStatus `json:"status"`
	ProviderChargeID string              `json:"provider_charge_id,omitempty"`
}

// ReconciliationReport is the read-only outcome of listing one period's
// billing records and, optionally, checking them against the payment provider.
type ReconciliationReport struct {
	Period        model.BillingPeriod `json:"period"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Checked       int                 `json:"checked"`
	Unbilled      int                 `json:"unbilled"`
	Records       []ReconciledRecord  `json:"records"`
	Discrepancies []Discrepancy       `json:"discrepancies"`
}

// ReconciliationService cross-checks completed billing records against the
// provider. It never mutates records; divergences are reported, not repaired.
type ReconciliationService struct {
	tenantRepo  repository.TenantRepository
	billingRepo repository.BillingRepository
	provider    PaymentProvider
	archiver    ReportArchiver
	now         func() time.Time
	logger      zerolog.Logger
}

// NewReconciliationService creates a new ReconciliationService. archiver may
// be nil.
func NewReconciliationService(
	tenantRepo repository.TenantRepository,
	billingRepo repository.BillingRepository,
	provider PaymentProvider,
	archiver ReportArchiver,
	logger zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		tenantRepo:  tenantRepo,
		billingRepo: billingRepo,
		provider:    provider,
		archiver:    archiver,
		now:         time.Now,
		logger:      logger.With().Str("service", "ReconciliationService").Logger(),
	}
}

// Reconcile lists every tenant's billing record for the period. With
// includeProviderData set, each record's charge is also retrieved from the
// provider and divergences are flagged; without it no provider call is made.
func (s *ReconciliationService) Reconcile(ctx context.Context, period model.BillingPeriod, includeProviderData bool) (*ReconciliationReport, error) {
	tenants, err := s.tenantRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		Period:        period,
		GeneratedAt:   s.now().UTC(),
		Records:       []ReconciledRecord{},
		Discrepancies: []Discrepancy{},
	}
	for _, tenant := range tenants {
		rec, err := s.billingRepo.GetForPeriod(ctx, tenant.Scope(), period)
		if err != nil {
			var notFound *model.NotFoundError
			if errors.As(err, &notFound) {
				report.Unbilled++
				continue
			}
			return nil, err
		}
		report.Checked++
		report.Records = append(report.Records, ReconciledRecord{
			TenantID:         tenant.ID,
			TotalCents:       rec.TotalCents,
			Status:           rec.Status,
			ProviderChargeID: rec.ProviderChargeID,
		})
		if includeProviderData {
			s.checkRecord(ctx, report, tenant, rec)
		}
	}

	s.logger.Info().
		Str("period", period.String()).
		Int("checked", report.Checked).
		Int("discrepancies", len(report.Discrepancies)).
		Msg("Reconciliation finished")

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, report); err != nil {
			s.logger.Warn().Err(err).Str("period", period.String()).Msg("Failed to archive reconciliation report")
		}
	}
	return report, nil
}

func (s *ReconciliationService) checkRecord(ctx context.Context, report *ReconciliationReport, tenant model.Tenant, rec *model.BillingRecord) {
	// Zero-total completions and failed records have no provider side to
	// compare against.
	if rec.ProviderChargeID == "" {
		if rec.Status == model.BillingStatusCompleted && rec.TotalCents > 0 {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				TenantID: tenant.ID,
				Kind:     "missing_charge",
				Expected: fmt.Sprintf("charge of %d cents", rec.TotalCents),
				Actual:   "no provider charge recorded",
			})
		}
		return
	}

	charge, err := s.provider.RetrieveCharge(ctx, rec.ProviderChargeID)
	if err != nil {
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				TenantID: tenant.ID,
				Kind:     "missing_charge",
				ChargeID: rec.ProviderChargeID,
				Expected: fmt.Sprintf("charge of %d cents", rec.TotalCents),
				Actual:   "charge unknown to provider",
			})
			return
		}
		s.logger.Warn().Err(err).
			Str("tenant_id", tenant.ID.String()).
			Str("charge_id", rec.ProviderChargeID).
			Msg("Could not retrieve charge for reconciliation")
		return
	}

	if charge.AmountCents != rec.TotalCents {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			TenantID: tenant.ID,
			Kind:     "amount_mismatch",
			ChargeID: rec.ProviderChargeID,
			Expected: fmt.Sprintf("%d cents", rec.TotalCents),
			Actual:   fmt.Sprintf("%d cents", charge.AmountCents),
		})
	}
	if mismatch, expected, actual := statusMismatch(rec.Status, charge.Status); mismatch {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			TenantID: tenant.ID,
			Kind:     "status_mismatch",
			ChargeID: rec.ProviderChargeID,
			Expected: expected,
			Actual:   actual,
		})
	}
}

// statusMismatch compares a local record status with the provider charge
// status. Pending on either side is inconclusive, not a discrepancy.
func statusMismatch(local model.BillingStatus, remote ChargeStatus) (bool, string, string) {
	if local == model.BillingStatusPending || remote == ChargeStatusPending {
		return false, "", ""
	}
	switch local {
	case model.BillingStatusCompleted, model.BillingStatusRefunded:
		if remote != ChargeStatusSucceeded {
			return true, fmt.Sprintf("charge succeeded for %s record", local), "charge " + string(remote)
		}
	case model.BillingStatusFailed:
		if remote == ChargeStatusSucceeded {
			return true, "charge failed for failed record", "charge succeeded"
		}
	}
	return false, "", ""
}
