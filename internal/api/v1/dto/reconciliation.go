package dto

import "time"

// DiscrepancyDTO is one divergence found during reconciliation
type DiscrepancyDTO struct {
	TenantID string `json:"tenant_id"`
	Kind     string `json:"kind"`
	ChargeID string `json:"charge_id,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ReconciledRecordDTO is one local billing record in the report
type ReconciledRecordDTO struct {
	TenantID         string `json:"tenant_id"`
	TotalCents       int64  `json:"total_cents"`
	Status           string `json:"status"`
	ProviderChargeID string `json:"provider_charge_id,omitempty"`
}

// ReconciliationResponseDTO is the report for one billing period
type ReconciliationResponseDTO struct {
	Period        string                `json:"period"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Checked       int                   `json:"checked"`
	Unbilled      int                   `json:"unbilled"`
	Records       []ReconciledRecordDTO `json:"records"`
	Discrepancies []DiscrepancyDTO      `json:"discrepancies"`
}
