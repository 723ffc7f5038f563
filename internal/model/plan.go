package model

// Plan is a subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether p is one of the known plan values.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

func (p Plan) String() string {
	return string(p)
}

// Plans lists all subscription tiers in ascending price order.
func Plans() []Plan {
	return []Plan{PlanFree, PlanBasic, PlanPro, PlanEnterprise}
}

// Metric is a metered resource tracked in the usage ledger.
type Metric string

const (
	MetricAPICalls  Metric = "api_calls"
	MetricStorageMB Metric = "storage_mb"
)

// Metrics lists all metered resources in deterministic order.
func Metrics() []Metric {
	return []Metric{MetricAPICalls, MetricStorageMB}
}
