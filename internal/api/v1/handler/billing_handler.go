package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/orchestrator/billingrun"
	"app/internal/pgmq"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BillingHandler handles billing run and billing record endpoints
type BillingHandler struct {
	billingService *service.BillingService
	provider       service.PaymentProvider
	queueClient    *pgmq.Client
	queueName      string
	validate       *validator.Validate
	logger         zerolog.Logger
}

// NewBillingHandler creates a new BillingHandler. queueClient may be nil when
// async runs are disabled.
func NewBillingHandler(
	billingService *service.BillingService,
	provider service.PaymentProvider,
	queueClient *pgmq.Client,
	queueName string,
	validate *validator.Validate,
	logger zerolog.Logger,
) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		provider:       provider,
		queueClient:    queueClient,
		queueName:      queueName,
		validate:       validate,
		logger:         logger,
	}
}

// RegisterRoutes mounts billing routes
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, tenantMw, adminMw, adminTenantMw func(http.Handler) http.Handler) {
	mux.Handle("POST /billing/runs", adminMw(http.HandlerFunc(h.runBilling)))
	mux.Handle("GET /billing/balance", adminMw(http.HandlerFunc(h.getBalance)))
	mux.Handle("GET /tenants/{tenantID}/billing/{period}", tenantMw(http.HandlerFunc(h.getRecord)))
	mux.Handle("POST /tenants/{tenantID}/billing/{period}/refund", adminTenantMw(http.HandlerFunc(h.refundRecord)))
}

// runBilling godoc
// @Summary Execute a billing run
// @Description Bills the selected tenants for the period. Dry runs compute charges without persisting or charging. Async runs are enqueued for the orchestrator.
// @Tags billing
// @Accept json
// @Produce json
// @Param run body dto.BillingRunDTO true "Billing run request"
// @Success 200 {object} dto.BillingRunResponseDTO
// @Success 202 {object} dto.BillingRunEnqueuedDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 403 {string} string "Forbidden"
// @Router /billing/runs [post]
func (h *BillingHandler) runBilling(w http.ResponseWriter, r *http.Request) {
	var req dto.BillingRunDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	runReq := service.BillingRunRequest{DryRun: req.DryRun}
	if req.Period != nil {
		period, err := model.ParseBillingPeriod(*req.Period)
		if err != nil {
			writeError(w, err)
			return
		}
		runReq.Period = period
	}
	if req.TenantID != nil {
		id, err := uuid.Parse(*req.TenantID)
		if err != nil {
			http.Error(w, "Invalid tenant id", http.StatusBadRequest)
			return
		}
		runReq.TenantID = id
	}

	if req.Async {
		if h.queueClient == nil {
			http.Error(w, "Async billing runs are not enabled", http.StatusConflict)
			return
		}
		job := billingrun.Job{DryRun: req.DryRun}
		if req.Period != nil {
			job.Period = *req.Period
		}
		if req.TenantID != nil {
			job.TenantID = *req.TenantID
		}
		payload, _ := json.Marshal(job)
		if err := h.queueClient.Send(r.Context(), h.queueName, payload); err != nil {
			h.logger.Error().Err(err).Msg("Failed to enqueue billing run")
			http.Error(w, "Failed to enqueue billing run", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, dto.BillingRunEnqueuedDTO{Queued: true, Queue: h.queueName})
		return
	}

	result, err := h.billingService.Run(r.Context(), runReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, billingRunToDTO(result))
}

// getBalance godoc
// @Summary Get the provider balance
// @Description Returns the platform's payment provider balance.
// @Tags billing
// @Produce json
// @Success 200 {object} dto.BalanceResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Failure 502 {string} string "Provider error"
// @Router /billing/balance [get]
func (h *BillingHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.provider.GetBalance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponseDTO{
		AvailableCents: balance.AvailableCents,
		PendingCents:   balance.PendingCents,
		Currency:       balance.Currency,
	})
}

// getRecord godoc
// @Summary Get a billing record
// @Description Returns the tenant's billing record for one period.
// @Tags billing
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param period path string true "Billing period (YYYY-MM)"
// @Success 200 {object} dto.BillingRecordResponseDTO
// @Failure 404 {string} string "Billing record not found"
// @Router /tenants/{tenantID}/billing/{period} [get]
func (h *BillingHandler) getRecord(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	period, err := model.ParseBillingPeriod(r.PathValue("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.billingService.GetRecord(r.Context(), tenant.Scope(), period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, billingRecordToDTO(rec))
}

// refundRecord godoc
// @Summary Refund a billing record
// @Description Refunds the full charge behind a completed billing record.
// @Tags billing
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param period path string true "Billing period (YYYY-MM)"
// @Success 200 {object} dto.RefundResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Billing record not found"
// @Failure 409 {string} string "Record is not refundable"
// @Router /tenants/{tenantID}/billing/{period}/refund [post]
func (h *BillingHandler) refundRecord(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	period, err := model.ParseBillingPeriod(r.PathValue("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	refund, err := h.billingService.RefundRecord(r.Context(), tenant.Scope(), period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.RefundResponseDTO{
		RefundID:    refund.RefundID,
		ChargeID:    refund.ChargeID,
		AmountCents: refund.AmountCents,
		Status:      refund.Status,
		CreatedAt:   refund.CreatedAt,
	})
}

func chargeLinesToDTO(lines []model.ChargeLine) []dto.ChargeLineDTO {
	out := make([]dto.ChargeLineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, dto.ChargeLineDTO{
			Description: l.Description,
			Metric:      string(l.Metric),
			Quantity:    l.Quantity,
			AmountCents: l.AmountCents,
		})
	}
	return out
}

func billingRunToDTO(result *service.BillingRunResult) dto.BillingRunResponseDTO {
	resp := dto.BillingRunResponseDTO{
		Period:    result.Period.String(),
		DryRun:    result.DryRun,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Tenants:   make([]dto.TenantBillingResultDTO, 0, len(result.Tenants)),
	}
	for _, t := range result.Tenants {
		resp.Tenants = append(resp.Tenants, dto.TenantBillingResultDTO{
			TenantID: t.TenantID.String(),
			Plan:     t.Plan.String(),
			Charge: dto.ItemizedChargeDTO{
				BaseCents:  t.Charge.BaseCents,
				Lines:      chargeLinesToDTO(t.Charge.Lines),
				TotalCents: t.Charge.TotalCents,
			},
			Status:   t.Status,
			ChargeID: t.ChargeID,
			Error:    t.Error,
		})
	}
	return resp
}

func billingRecordToDTO(rec *model.BillingRecord) dto.BillingRecordResponseDTO {
	return dto.BillingRecordResponseDTO{
		ID:               rec.ID.String(),
		TenantID:         rec.TenantID.String(),
		Period:           rec.Period.String(),
		Lines:            chargeLinesToDTO(rec.Lines),
		TotalCents:       rec.TotalCents,
		Status:           string(rec.Status),
		ProviderChargeID: rec.ProviderChargeID,
		FailureReason:    rec.FailureReason,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}
