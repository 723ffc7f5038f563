package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// UsageHandler handles usage ledger endpoints
type UsageHandler struct {
	usageService *service.UsageService
	validate     *validator.Validate
	logger       zerolog.Logger
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(usageService *service.UsageService, validate *validator.Validate, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{usageService: usageService, validate: validate, logger: logger}
}

// RegisterRoutes mounts usage routes
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, tenantMw func(http.Handler) http.Handler) {
	mux.Handle("POST /tenants/{tenantID}/usage", tenantMw(http.HandlerFunc(h.recordUsage)))
	mux.Handle("GET /tenants/{tenantID}/usage", tenantMw(http.HandlerFunc(h.queryUsage)))
	mux.Handle("GET /tenants/{tenantID}/usage/aggregate", tenantMw(http.HandlerFunc(h.aggregateUsage)))
}

// recordUsage godoc
// @Summary Record a usage event
// @Description Appends one metering event to the tenant's usage ledger.
// @Tags usage
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param event body dto.UsageRecordDTO true "Usage event"
// @Success 201 {object} dto.UsageEventResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Failure 404 {string} string "Tenant not found"
// @Router /tenants/{tenantID}/usage [post]
func (h *UsageHandler) recordUsage(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	var req dto.UsageRecordDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	ev := &model.UsageEvent{
		Metric:         model.Metric(req.Metric),
		Quantity:       req.Quantity,
		UnitPriceCents: req.UnitPriceCents,
		Metadata:       req.Metadata,
	}
	if req.RecordedAt != nil {
		ev.RecordedAt = *req.RecordedAt
	}
	created, err := h.usageService.RecordUsage(r.Context(), tenant.Scope(), ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, usageEventToDTO(created))
}

// queryUsage godoc
// @Summary Query usage events
// @Description Lists the tenant's usage events in [start, end), ordered by recording time.
// @Tags usage
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339, exclusive)"
// @Param metric query string false "Filter by metric"
// @Param limit query int false "Page size (default 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.UsageListResponseDTO
// @Failure 400 {string} string "Invalid query parameters"
// @Router /tenants/{tenantID}/usage [get]
func (h *UsageHandler) queryUsage(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	start, end, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter := model.UsageFilter{
		Start:  start,
		End:    end,
		Metric: model.Metric(r.URL.Query().Get("metric")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	events, err := h.usageService.QueryUsage(r.Context(), tenant.Scope(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := dto.UsageListResponseDTO{
		Events: make([]dto.UsageEventResponseDTO, 0, len(events)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if resp.Limit <= 0 {
		resp.Limit = 100
	}
	for i := range events {
		resp.Events = append(resp.Events, usageEventToDTO(&events[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// aggregateUsage godoc
// @Summary Aggregate usage
// @Description Sums one metric's quantities over [start, end).
// @Tags usage
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param metric query string true "Metric to aggregate"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339, exclusive)"
// @Success 200 {object} dto.UsageAggregateResponseDTO
// @Failure 400 {string} string "Invalid query parameters"
// @Router /tenants/{tenantID}/usage/aggregate [get]
func (h *UsageHandler) aggregateUsage(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	start, end, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	metric := model.Metric(r.URL.Query().Get("metric"))
	total, err := h.usageService.AggregateUsage(r.Context(), tenant.Scope(), metric, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UsageAggregateResponseDTO{
		Metric: string(metric),
		Start:  start,
		End:    end,
		Total:  total,
	})
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, &model.ValidationError{Field: "start", Reason: "must be an RFC3339 timestamp"}
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, &model.ValidationError{Field: "end", Reason: "must be an RFC3339 timestamp"}
	}
	return start, end, nil
}

func usageEventToDTO(ev *model.UsageEvent) dto.UsageEventResponseDTO {
	return dto.UsageEventResponseDTO{
		ID:             ev.ID.String(),
		TenantID:       ev.TenantID.String(),
		Metric:         string(ev.Metric),
		Quantity:       ev.Quantity,
		UnitPriceCents: ev.UnitPriceCents,
		Metadata:       ev.Metadata,
		RecordedAt:     ev.RecordedAt,
		CreatedAt:      ev.CreatedAt,
	}
}
