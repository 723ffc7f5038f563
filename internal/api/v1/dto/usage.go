package dto

import "time"

// UsageRecordDTO is used for incoming usage recording requests
type UsageRecordDTO struct {
	Metric         string            `json:"metric" validate:"required"`
	Quantity       int64             `json:"quantity" validate:"gte=0"`
	UnitPriceCents *int64            `json:"unit_price_cents,omitempty" validate:"omitempty,gte=0"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RecordedAt     *time.Time        `json:"recorded_at,omitempty"`
}

// UsageEventResponseDTO is returned in API responses for usage events
type UsageEventResponseDTO struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	Metric         string            `json:"metric"`
	Quantity       int64             `json:"quantity"`
	UnitPriceCents *int64            `json:"unit_price_cents,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RecordedAt     time.Time         `json:"recorded_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

// UsageListResponseDTO is a page of usage events
type UsageListResponseDTO struct {
	Events []UsageEventResponseDTO `json:"events"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// UsageAggregateResponseDTO is the summed usage for one metric over a window
type UsageAggregateResponseDTO struct {
	Metric string    `json:"metric"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Total  int64     `json:"total"`
}
