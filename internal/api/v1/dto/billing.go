package dto

import "time"

// BillingRunDTO is used for incoming billing run requests
type BillingRunDTO struct {
	Period   *string `json:"period,omitempty"`    // YYYY-MM, defaults to the previous month
	TenantID *string `json:"tenant_id,omitempty"` // bill a single tenant
	DryRun   bool    `json:"dry_run,omitempty"`
	Async    bool    `json:"async,omitempty"` // enqueue instead of running inline
}

// ChargeLineDTO is one itemized line of a charge
type ChargeLineDTO struct {
	Description string `json:"description"`
	Metric      string `json:"metric,omitempty"`
	Quantity    int64  `json:"quantity,omitempty"`
	AmountCents int64  `json:"amount_cents"`
}

// ItemizedChargeDTO is a computed charge breakdown
type ItemizedChargeDTO struct {
	BaseCents  int64           `json:"base_cents"`
	Lines      []ChargeLineDTO `json:"lines,omitempty"`
	TotalCents int64           `json:"total_cents"`
}

// TenantBillingResultDTO is one tenant's outcome within a billing run
type TenantBillingResultDTO struct {
	TenantID string            `json:"tenant_id"`
	Plan     string            `json:"plan"`
	Charge   ItemizedChargeDTO `json:"charge"`
	Status   string            `json:"status"`
	ChargeID string            `json:"charge_id,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// BillingRunResponseDTO summarizes a finished billing run
type BillingRunResponseDTO struct {
	Period    string                   `json:"period"`
	DryRun    bool                     `json:"dry_run"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Skipped   int                      `json:"skipped"`
	Tenants   []TenantBillingResultDTO `json:"tenants"`
}

// BillingRunEnqueuedDTO acknowledges an async billing run
type BillingRunEnqueuedDTO struct {
	Queued bool   `json:"queued"`
	Queue  string `json:"queue"`
}

// BillingRecordResponseDTO is returned in API responses for billing records
type BillingRecordResponseDTO struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	Period           string          `json:"period"`
	Lines            []ChargeLineDTO `json:"lines,omitempty"`
	TotalCents       int64           `json:"total_cents"`
	Status           string          `json:"status"`
	ProviderChargeID string          `json:"provider_charge_id,omitempty"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RefundResponseDTO is returned after refunding a billing record's charge
type RefundResponseDTO struct {
	RefundID    string    `json:"refund_id"`
	ChargeID    string    `json:"charge_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// BalanceResponseDTO is the provider account balance
type BalanceResponseDTO struct {
	AvailableCents int64  `json:"available_cents"`
	PendingCents   int64  `json:"pending_cents"`
	Currency       string `json:"currency"`
}
