package model

import (
	"time"

	"github.com/google/uuid"
)

// UsageEvent is one append-only metering record. Events are never updated or
// deleted by the billing core.
type UsageEvent struct {
	ID                uuid.UUID         `json:"id"`
	TenantID          uuid.UUID         `json:"tenant_id"`
	Metric            Metric            `json:"metric"`
	Quantity          int64             `json:"quantity"`
	UnitPriceCents    *int64            `json:"unit_price_cents,omitempty"` // optional per-event override
	Metadata          map[string]string `json:"metadata,omitempty"`
	RecordedAt        time.Time         `json:"recorded_at"`
	CreatedAt         time.Time         `json:"created_at"`
}

// UsageFilter selects usage events for a query or aggregation.
type UsageFilter struct {
	Start  time.Time
	End    time.Time
	Metric Metric // empty matches all metrics
	Limit  int
	Offset int
}
