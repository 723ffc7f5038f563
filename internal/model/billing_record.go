package model

import (
	"time"

	"github.com/google/uuid"
)

// BillingStatus is the lifecycle of one billing record:
// pending -> completed | failed, failed -> pending on retry, completed terminal.
type BillingStatus string

const (
	BillingStatusPending   BillingStatus = "pending"
	BillingStatusCompleted BillingStatus = "completed"
	BillingStatusFailed    BillingStatus = "failed"
	BillingStatusRefunded  BillingStatus = "refunded"
)

// ChargeLine is one itemized line of a charge.
type ChargeLine struct {
	Description string `json:"description"`
	Metric      Metric `json:"metric,omitempty"`
	Quantity    int64  `json:"quantity,omitempty"`
	AmountCents int64  `json:"amount_cents"`
}

// ItemizedCharge is the calculator output: base price plus overage lines.
type ItemizedCharge struct {
	BaseCents  int64        `json:"base_cents"`
	Lines      []ChargeLine `json:"lines,omitempty"`
	TotalCents int64        `json:"total_cents"`
}

// BillingRecord is the persisted outcome of one billing run for one
// (tenant, period). Immutable once completed; a failed record is retried under
// the same idempotency key.
type BillingRecord struct {
	ID                uuid.UUID     `json:"id"`
	TenantID          uuid.UUID     `json:"tenant_id"`
	Period            BillingPeriod `json:"period"`
	Lines             []ChargeLine  `json:"lines"`
	TotalCents        int64         `json:"total_cents"`
	Status            BillingStatus `json:"status"`
	IdempotencyKey    string        `json:"idempotency_key"`
	ProviderChargeID  string        `json:"provider_charge_id,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// billingKeyNamespace seeds deterministic idempotency keys. Changing it would
// decouple retries from charges already made under the old keys.
var billingKeyNamespace = uuid.MustParse("f1f743dc-8a4e-4c39-9a5b-2d9e5a3e0b71")

// IdempotencyKey derives the charge idempotency key for a (tenant, period).
// It is a pure function of its inputs so retries of the same run converge on
// the same provider-side charge.
func IdempotencyKey(tenantID uuid.UUID, period BillingPeriod) string {
	return uuid.NewSHA1(billingKeyNamespace, []byte(tenantID.String()+":"+period.String())).String()
}
