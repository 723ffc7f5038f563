package service

import (
	"fmt"

	"app/internal/model"

	"github.com/shopspring/decimal"
)

// ComputeCharge turns a plan and one period's aggregated usage into an
// itemized charge. Pure: no clock, no randomness; identical inputs always
// produce the identical result.
//
// Overage lines are priced in a decimal intermediate and rounded half-up to
// whole cents once per metric line, never per event, so fractional-cent unit
// prices don't accumulate truncation error over large quantities.
func ComputeCharge(plan PlanConfig, periodUsage map[model.Metric]int64) model.ItemizedCharge {
	charge := model.ItemizedCharge{
		BaseCents:  plan.BasePriceCents,
		TotalCents: plan.BasePriceCents,
	}
	if !plan.OverageEnabled {
		return charge
	}
	for _, metric := range model.Metrics() {
		unitPrice, priced := plan.OverageUnitPriceCents[metric]
		if !priced {
			continue
		}
		used := periodUsage[metric]
		included := plan.IncludedQuota[metric]
		if used <= included {
			continue
		}
		overage := used - included
		cents := decimal.NewFromInt(overage).Mul(unitPrice).Round(0).IntPart()
		if cents == 0 {
			continue
		}
		charge.Lines = append(charge.Lines, model.ChargeLine{
			Description: fmt.Sprintf("%s overage (%d over %d included)", metric, overage, included),
			Metric:      metric,
			Quantity:    overage,
			AmountCents: cents,
		})
		charge.TotalCents += cents
	}
	return charge
}
