package dto

import "time"

// PlanChangeDTO is used for incoming plan change requests
type PlanChangeDTO struct {
	Plan string `json:"plan" validate:"required"`
}

// CancelSubscriptionDTO toggles cancellation at period end
type CancelSubscriptionDTO struct {
	Cancel *bool `json:"cancel" validate:"required"`
}

// ProviderStatusDTO applies a provider-driven subscription transition
type ProviderStatusDTO struct {
	Status                 string `json:"status" validate:"required"`
	ProviderSubscriptionID string `json:"provider_subscription_id,omitempty"`
}

// SubscriptionResponseDTO is returned in API responses for subscriptions
type SubscriptionResponseDTO struct {
	TenantID           string    `json:"tenant_id"`
	Plan               string    `json:"plan"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ConnectOnboardDTO starts Connect onboarding for a tenant
type ConnectOnboardDTO struct {
	Email string `json:"email" validate:"required,email"`
}

// ConnectLinkResponseDTO carries a one-time Connect URL
type ConnectLinkResponseDTO struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ConnectStatusResponseDTO reports Connect onboarding progress
type ConnectStatusResponseDTO struct {
	AccountID        string   `json:"account_id"`
	ChargesEnabled   bool     `json:"charges_enabled"`
	PayoutsEnabled   bool     `json:"payouts_enabled"`
	DetailsSubmitted bool     `json:"details_submitted"`
	Requirements     []string `json:"requirements,omitempty"`
}

// PayoutDTO is used for incoming payout requests
type PayoutDTO struct {
	AmountCents    int64  `json:"amount_cents" validate:"required,gt=0"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

// PayoutResponseDTO is returned after a payout transfer
type PayoutResponseDTO struct {
	TransferID  string    `json:"transfer_id"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// PlanResponseDTO describes one catalog tier
type PlanResponseDTO struct {
	Name                  string            `json:"name"`
	BasePriceCents        int64             `json:"base_price_cents"`
	IncludedQuota         map[string]int64  `json:"included_quota"`
	OverageUnitPriceCents map[string]string `json:"overage_unit_price_cents,omitempty"`
	OverageEnabled        bool              `json:"overage_enabled"`
	Features              []string          `json:"features"`
}
