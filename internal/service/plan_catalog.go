package service

import (
	"fmt"
	"math"

	"app/internal/model"

	"github.com/shopspring/decimal"
)

// PlanConfig is the immutable pricing definition of one subscription tier.
// All monetary figures are integer cents except overage unit prices, which may
// be fractional cents (e.g. 0.05 cents per API call).
type PlanConfig struct {
	Name                  model.Plan
	BasePriceCents        int64
	IncludedQuota         map[model.Metric]int64
	OverageUnitPriceCents map[model.Metric]decimal.Decimal
	OverageEnabled        bool
	Features              []string
}

// PlanCatalog is the process-wide registry of subscription tiers. Built once
// at startup from a fixed enumeration; no write path exists at runtime.
type PlanCatalog struct {
	plans map[model.Plan]PlanConfig
}

// NewPlanCatalog builds the catalog.
func NewPlanCatalog() *PlanCatalog {
	unlimited := map[model.Metric]int64{
		model.MetricAPICalls:  math.MaxInt64,
		model.MetricStorageMB: math.MaxInt64,
	}
	return &PlanCatalog{plans: map[model.Plan]PlanConfig{
		model.PlanFree: {
			Name:           model.PlanFree,
			BasePriceCents: 0,
			IncludedQuota: map[model.Metric]int64{
				model.MetricAPICalls:  1_000,
				model.MetricStorageMB: 100,
			},
			OverageUnitPriceCents: map[model.Metric]decimal.Decimal{},
			OverageEnabled:        false,
			Features:              []string{"community_support"},
		},
		model.PlanBasic: {
			Name:           model.PlanBasic,
			BasePriceCents: 1_900, // $19/month
			IncludedQuota: map[model.Metric]int64{
				model.MetricAPICalls:  10_000,
				model.MetricStorageMB: 5_120,
			},
			OverageUnitPriceCents: map[model.Metric]decimal.Decimal{
				model.MetricAPICalls:  decimal.RequireFromString("0.05"),
				model.MetricStorageMB: decimal.RequireFromString("0.2"),
			},
			OverageEnabled: true,
			Features:       []string{"email_support", "usage_exports"},
		},
		model.PlanPro: {
			Name:           model.PlanPro,
			BasePriceCents: 4_900, // $49/month
			IncludedQuota: map[model.Metric]int64{
				model.MetricAPICalls:  100_000,
				model.MetricStorageMB: 51_200,
			},
			OverageUnitPriceCents: map[model.Metric]decimal.Decimal{
				model.MetricAPICalls:  decimal.RequireFromString("0.03"),
				model.MetricStorageMB: decimal.RequireFromString("0.1"),
			},
			OverageEnabled: true,
			Features:       []string{"priority_support", "usage_exports", "connect_payouts"},
		},
		model.PlanEnterprise: {
			// Custom-billed outside the metered pipeline; unlimited quotas keep
			// the calculator from ever producing overage even if re-enabled.
			Name:                  model.PlanEnterprise,
			BasePriceCents:        0,
			IncludedQuota:         unlimited,
			OverageUnitPriceCents: map[model.Metric]decimal.Decimal{},
			OverageEnabled:        false,
			Features:              []string{"dedicated_support", "sla", "connect_payouts"},
		},
	}}
}

// Get returns the plan's config. An unknown plan value is a caller
// programming error, not a recoverable condition.
func (c *PlanCatalog) Get(plan model.Plan) PlanConfig {
	cfg, ok := c.plans[plan]
	if !ok {
		panic(fmt.Sprintf("plan catalog: unknown plan %q", plan))
	}
	return cfg
}

// IsOverageEnabled reports whether the plan bills usage beyond included quota.
func (c *PlanCatalog) IsOverageEnabled(plan model.Plan) bool {
	return c.Get(plan).OverageEnabled
}

// IncludedQuota returns the plan's included quota for the metric.
func (c *PlanCatalog) IncludedQuota(plan model.Plan, metric model.Metric) int64 {
	return c.Get(plan).IncludedQuota[metric]
}

// OverageUnitPrice returns the plan's overage price in cents per unit for the
// metric. Zero when the metric is not overage-priced.
func (c *PlanCatalog) OverageUnitPrice(plan model.Plan, metric model.Metric) decimal.Decimal {
	return c.Get(plan).OverageUnitPriceCents[metric]
}
