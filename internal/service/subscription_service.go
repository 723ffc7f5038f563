package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubscriptionService manages each tenant's plan lifecycle and its Connect
// payout account.
type SubscriptionService struct {
	tenantRepo repository.TenantRepository
	subRepo    repository.SubscriptionRepository
	provider   PaymentProvider
	catalog    *PlanCatalog
	refreshURL string
	returnURL  string
	currency   string
	now        func() time.Time
	logger     zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(
	tenantRepo repository.TenantRepository,
	subRepo repository.SubscriptionRepository,
	provider PaymentProvider,
	catalog *PlanCatalog,
	refreshURL, returnURL, currency string,
	logger zerolog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		tenantRepo: tenantRepo,
		subRepo:    subRepo,
		provider:   provider,
		catalog:    catalog,
		refreshURL: refreshURL,
		returnURL:  returnURL,
		currency:   currency,
		now:        time.Now,
		logger:     logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

// Get returns the tenant's subscription.
func (s *SubscriptionService) Get(ctx context.Context, tenantID uuid.UUID) (*model.Subscription, error) {
	return s.subRepo.Get(ctx, tenantID)
}

// ChangePlan moves the tenant onto another plan, effective immediately. The
// new period starts now and runs one calendar month.
func (s *SubscriptionService) ChangePlan(ctx context.Context, tenantID uuid.UUID, plan model.Plan) (*model.Subscription, error) {
	if !plan.Valid() {
		return nil, &model.ValidationError{Field: "plan", Reason: fmt.Sprintf("unknown plan %q", plan)}
	}
	if _, err := s.tenantRepo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &model.Subscription{
		TenantID:           tenantID,
		Plan:               plan,
		Status:             model.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	if existing, err := s.subRepo.Get(ctx, tenantID); err == nil {
		sub.Status = existing.Status
		sub.ProviderSubscriptionID = existing.ProviderSubscriptionID
	}
	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	// Billing eligibility and pricing read the tenant row; keep it in step.
	if err := s.tenantRepo.UpdatePlan(ctx, tenantID, plan); err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", tenantID.String()).Str("plan", plan.String()).Msg("Plan changed")
	return s.subRepo.Get(ctx, tenantID)
}

// CancelAtPeriodEnd schedules or unschedules cancellation at the end of the
// current period. Service continues until then.
func (s *SubscriptionService) CancelAtPeriodEnd(ctx context.Context, tenantID uuid.UUID, cancel bool) (*model.Subscription, error) {
	if err := s.subRepo.SetCancelAtPeriodEnd(ctx, tenantID, cancel); err != nil {
		return nil, err
	}
	return s.subRepo.Get(ctx, tenantID)
}

// ApplyProviderStatus records a provider-driven subscription transition, e.g.
// past_due after a failed renewal.
func (s *SubscriptionService) ApplyProviderStatus(ctx context.Context, tenantID uuid.UUID, status model.SubscriptionStatus, providerSubscriptionID string) error {
	switch status {
	case model.SubscriptionStatusActive, model.SubscriptionStatusCanceled,
		model.SubscriptionStatusPastDue, model.SubscriptionStatusTrialing:
	default:
		return &model.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return s.subRepo.UpdateStatus(ctx, tenantID, status, providerSubscriptionID)
}

// StartConnectOnboarding opens a Connect sub-account for the tenant if it has
// none, then returns a fresh onboarding link. Safe to call repeatedly; the
// existing account is reused.
func (s *SubscriptionService) StartConnectOnboarding(ctx context.Context, tenantID uuid.UUID, email string) (*AccountLink, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	accountID := tenant.ConnectAccountID
	if accountID == "" {
		account, err := s.provider.CreateConnectAccount(ctx, ConnectAccountRequest{
			TenantID: tenantID.String(),
			Email:    email,
		})
		if err != nil {
			return nil, err
		}
		if err := s.tenantRepo.UpdateConnectAccountID(ctx, tenantID, account.AccountID); err != nil {
			return nil, err
		}
		accountID = account.AccountID
		s.logger.Info().Str("tenant_id", tenantID.String()).Str("account_id", accountID).Msg("Connect account created")
	}

	return s.provider.CreateAccountLink(ctx, accountID, s.refreshURL, s.returnURL)
}

// ConnectStatus reports the tenant's Connect onboarding progress.
func (s *SubscriptionService) ConnectStatus(ctx context.Context, tenantID uuid.UUID) (*ConnectAccountStatus, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.ConnectAccountID == "" {
		return nil, &model.NotFoundError{Resource: "connect account", ID: tenantID.String()}
	}
	return s.provider.GetConnectAccountStatus(ctx, tenant.ConnectAccountID)
}

// ConnectLoginLink returns a dashboard login link for the tenant's Connect
// account.
func (s *SubscriptionService) ConnectLoginLink(ctx context.Context, tenantID uuid.UUID) (*LoginLink, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.ConnectAccountID == "" {
		return nil, &model.NotFoundError{Resource: "connect account", ID: tenantID.String()}
	}
	return s.provider.CreateConnectLoginLink(ctx, tenant.ConnectAccountID)
}

// PayoutTenant transfers funds to the tenant's Connect account. Gated on the
// account's PayoutsEnabled flag specifically; a submitted but unverified
// account cannot receive funds.
func (s *SubscriptionService) PayoutTenant(ctx context.Context, tenantID uuid.UUID, amountCents int64, description, idempotencyKey string) (*TransferResult, error) {
	if amountCents <= 0 {
		return nil, &model.ValidationError{Field: "amount_cents", Reason: "must be positive"}
	}
	if idempotencyKey == "" {
		return nil, &model.ValidationError{Field: "idempotency_key", Reason: "must not be empty"}
	}
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.ConnectAccountID == "" {
		return nil, &model.NotFoundError{Resource: "connect account", ID: tenantID.String()}
	}
	status, err := s.provider.GetConnectAccountStatus(ctx, tenant.ConnectAccountID)
	if err != nil {
		return nil, err
	}
	if !status.PayoutsEnabled {
		return nil, &model.ConflictError{Resource: "connect account", Reason: "payouts are not enabled"}
	}

	return s.provider.CreateTransfer(ctx, TransferRequest{
		AmountCents:        amountCents,
		Currency:           s.currency,
		DestinationAccount: tenant.ConnectAccountID,
		Description:        description,
		IdempotencyKey:     idempotencyKey,
	})
}
