package service

import (
	"testing"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPlanCatalogTiers(t *testing.T) {
	catalog := NewPlanCatalog()

	for _, plan := range model.Plans() {
		cfg := catalog.Get(plan)
		assert.Equal(t, plan, cfg.Name)
		for _, metric := range model.Metrics() {
			assert.GreaterOrEqual(t, cfg.IncludedQuota[metric], int64(0))
		}
	}

	assert.False(t, catalog.IsOverageEnabled(model.PlanFree))
	assert.True(t, catalog.IsOverageEnabled(model.PlanBasic))
	assert.True(t, catalog.IsOverageEnabled(model.PlanPro))
	assert.False(t, catalog.IsOverageEnabled(model.PlanEnterprise))

	assert.Equal(t, int64(10_000), catalog.IncludedQuota(model.PlanBasic, model.MetricAPICalls))
	assert.Equal(t, "0.05", catalog.OverageUnitPrice(model.PlanBasic, model.MetricAPICalls).String())
}

func TestPlanCatalogUnknownPlanPanics(t *testing.T) {
	catalog := NewPlanCatalog()
	assert.Panics(t, func() { catalog.Get(model.Plan("platinum")) })
}
