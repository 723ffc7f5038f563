package handler

import (
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/model"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// ReconciliationHandler handles reconciliation report endpoints
type ReconciliationHandler struct {
	reconciliationService *service.ReconciliationService
	logger                zerolog.Logger
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService *service.ReconciliationService, logger zerolog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{reconciliationService: reconciliationService, logger: logger}
}

// RegisterRoutes mounts reconciliation routes
func (h *ReconciliationHandler) RegisterRoutes(mux *http.ServeMux, adminMw func(http.Handler) http.Handler) {
	mux.Handle("GET /reconciliation/{period}", adminMw(http.HandlerFunc(h.reconcile)))
}

// reconcile godoc
// @Summary Reconcile a billing period
// @Description Lists every tenant's billing record for the period. With include_provider_data, each record is cross-checked against the payment provider and discrepancies are reported. Read-only.
// @Tags reconciliation
// @Produce json
// @Param period path string true "Billing period (YYYY-MM)"
// @Param include_provider_data query bool false "Retrieve provider charges and flag discrepancies (default false)"
// @Success 200 {object} dto.ReconciliationResponseDTO
// @Failure 400 {string} string "Invalid period"
// @Failure 403 {string} string "Forbidden"
// @Router /reconciliation/{period} [get]
func (h *ReconciliationHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	period, err := model.ParseBillingPeriod(r.PathValue("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	includeProviderData, _ := strconv.ParseBool(r.URL.Query().Get("include_provider_data"))

	report, err := h.reconciliationService.Reconcile(r.Context(), period, includeProviderData)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := dto.ReconciliationResponseDTO{
		Period:        report.Period.String(),
		GeneratedAt:   report.GeneratedAt,
		Checked:       report.Checked,
		Unbilled:      report.Unbilled,
		Records:       make([]dto.ReconciledRecordDTO, 0, len(report.Records)),
		Discrepancies: make([]dto.DiscrepancyDTO, 0, len(report.Discrepancies)),
	}
	for _, rec := range report.Records {
		resp.Records = append(resp.Records, dto.ReconciledRecordDTO{
			TenantID:         rec.TenantID.String(),
			TotalCents:       rec.TotalCents,
			Status:           string(rec.Status),
			ProviderChargeID: rec.ProviderChargeID,
		})
	}
	for _, d := range report.Discrepancies {
		resp.Discrepancies = append(resp.Discrepancies, dto.DiscrepancyDTO{
			TenantID: d.TenantID.String(),
			Kind:     d.Kind,
			ChargeID: d.ChargeID,
			Expected: d.Expected,
			Actual:   d.Actual,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
