package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// SubscriptionHandler handles subscription and Connect endpoints
type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
	catalog             *service.PlanCatalog
	validate            *validator.Validate
	logger              zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(
	subscriptionService *service.SubscriptionService,
	catalog *service.PlanCatalog,
	validate *validator.Validate,
	logger zerolog.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		catalog:             catalog,
		validate:            validate,
		logger:              logger,
	}
}

// RegisterRoutes mounts subscription routes
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMw, tenantMw, adminTenantMw func(http.Handler) http.Handler) {
	mux.Handle("GET /plans", authMw(http.HandlerFunc(h.listPlans)))
	mux.Handle("GET /tenants/{tenantID}/subscription", tenantMw(http.HandlerFunc(h.getSubscription)))
	mux.Handle("PUT /tenants/{tenantID}/subscription/plan", tenantMw(http.HandlerFunc(h.changePlan)))
	mux.Handle("POST /tenants/{tenantID}/subscription/cancel", tenantMw(http.HandlerFunc(h.cancelSubscription)))
	mux.Handle("POST /tenants/{tenantID}/subscription/provider-status", adminTenantMw(http.HandlerFunc(h.applyProviderStatus)))
	mux.Handle("POST /tenants/{tenantID}/connect", tenantMw(http.HandlerFunc(h.startConnectOnboarding)))
	mux.Handle("GET /tenants/{tenantID}/connect", tenantMw(http.HandlerFunc(h.connectStatus)))
	mux.Handle("POST /tenants/{tenantID}/connect/login-link", tenantMw(http.HandlerFunc(h.connectLoginLink)))
	mux.Handle("POST /tenants/{tenantID}/payouts", adminTenantMw(http.HandlerFunc(h.payout)))
}

// listPlans godoc
// @Summary List subscription plans
// @Description Returns every tier in the plan catalog.
// @Tags subscriptions
// @Produce json
// @Success 200 {array} dto.PlanResponseDTO
// @Router /plans [get]
func (h *SubscriptionHandler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans := make([]dto.PlanResponseDTO, 0, len(model.Plans()))
	for _, plan := range model.Plans() {
		cfg := h.catalog.Get(plan)
		quota := make(map[string]int64, len(cfg.IncludedQuota))
		for metric, v := range cfg.IncludedQuota {
			quota[string(metric)] = v
		}
		var prices map[string]string
		if len(cfg.OverageUnitPriceCents) > 0 {
			prices = make(map[string]string, len(cfg.OverageUnitPriceCents))
			for metric, p := range cfg.OverageUnitPriceCents {
				prices[string(metric)] = p.String()
			}
		}
		plans = append(plans, dto.PlanResponseDTO{
			Name:                  plan.String(),
			BasePriceCents:        cfg.BasePriceCents,
			IncludedQuota:         quota,
			OverageUnitPriceCents: prices,
			OverageEnabled:        cfg.OverageEnabled,
			Features:              cfg.Features,
		})
	}
	writeJSON(w, http.StatusOK, plans)
}

// getSubscription godoc
// @Summary Get the tenant's subscription
// @Tags subscriptions
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} dto.SubscriptionResponseDTO
// @Failure 404 {string} string "Subscription not found"
// @Router /tenants/{tenantID}/subscription [get]
func (h *SubscriptionHandler) getSubscription(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	sub, err := h.subscriptionService.Get(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionToDTO(sub))
}

// changePlan godoc
// @Summary Change the tenant's plan
// @Description Moves the tenant onto another catalog tier, effective immediately.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param plan body dto.PlanChangeDTO true "Plan change request"
// @Success 200 {object} dto.SubscriptionResponseDTO
// @Failure 400 {string} string "Unknown plan"
// @Router /tenants/{tenantID}/subscription/plan [put]
func (h *SubscriptionHandler) changePlan(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	var req dto.PlanChangeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	sub, err := h.subscriptionService.ChangePlan(r.Context(), tenant.ID, model.Plan(req.Plan))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionToDTO(sub))
}

// cancelSubscription godoc
// @Summary Schedule cancellation at period end
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param cancel body dto.CancelSubscriptionDTO true "Cancellation toggle"
// @Success 200 {object} dto.SubscriptionResponseDTO
// @Failure 404 {string} string "Subscription not found"
// @Router /tenants/{tenantID}/subscription/cancel [post]
func (h *SubscriptionHandler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	var req dto.CancelSubscriptionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	sub, err := h.subscriptionService.CancelAtPeriodEnd(r.Context(), tenant.ID, *req.Cancel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionToDTO(sub))
}

// applyProviderStatus godoc
// @Summary Apply a provider subscription status
// @Description Records a provider-driven subscription transition, e.g. past_due.
// @Tags subscriptions
// @Accept json
// @Param tenantID path string true "Tenant ID"
// @Param status body dto.ProviderStatusDTO true "Provider status"
// @Success 204 {string} string ""
// @Failure 400 {string} string "Unknown status"
// @Failure 403 {string} string "Forbidden"
// @Router /tenants/{tenantID}/subscription/provider-status [post]
func (h *SubscriptionHandler) applyProviderStatus(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	var req dto.ProviderStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	err := h.subscriptionService.ApplyProviderStatus(r.Context(), tenant.ID,
		model.SubscriptionStatus(req.Status), req.ProviderSubscriptionID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startConnectOnboarding godoc
// @Summary Start Connect onboarding
// @Description Opens a Connect sub-account for the tenant if needed and returns a fresh onboarding link.
// @Tags connect
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param onboard body dto.ConnectOnboardDTO true "Onboarding request"
// @Success 201 {object} dto.ConnectLinkResponseDTO
// @Failure 502 {string} string "Provider error"
// @Router /tenants/{tenantID}/connect [post]
func (h *SubscriptionHandler) startConnectOnboarding(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	var req dto.ConnectOnboardDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	link, err := h.subscriptionService.StartConnectOnboarding(r.Context(), tenant.ID, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := dto.ConnectLinkResponseDTO{URL: link.URL}
	if !link.ExpiresAt.IsZero() {
		resp.ExpiresAt = &link.ExpiresAt
	}
	writeJSON(w, http.StatusCreated, resp)
}

// connectStatus godoc
// @Summary Get Connect onboarding status
// @Tags connect
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Success 200 {object} dto.ConnectStatusResponseDTO
// @Failure 404 {string} string "Connect account not found"
// @Router /tenants/{tenantID}/connect [get]
func (h *SubscriptionHandler) connectStatus(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	status, err := h.subscriptionService.ConnectStatus(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ConnectStatusResponseDTO{
		AccountID:        status.AccountID,
		ChargesEnabled:   status.ChargesEnabled,
		PayoutsEnabled:   status.PayoutsEnabled,
		DetailsSubmitted: status.DetailsSubmitted,
		Requirements:     status.Requirements,
	})
}

// connectLoginLink godoc
// @Summary Create a Connect dashboard login link
// @Tags connect
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Success 201 {object} dto.ConnectLinkResponseDTO
// @Failure 404 {string} string "Connect account not found"
// @Router /tenants/{tenantID}/connect/login-link [post]
func (h *SubscriptionHandler) connectLoginLink(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	link, err := h.subscriptionService.ConnectLoginLink(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ConnectLinkResponseDTO{URL: link.URL})
}

// payout godoc
// @Summary Pay out a tenant
// @Description Transfers funds to the tenant's Connect account. Requires payouts to be enabled on the account.
// @Tags connect
// @Accept json
// @Produce json
// @Param tenantID path string true "Tenant ID"
// @Param payout body dto.PayoutDTO true "Payout request"
// @Success 201 {object} dto.PayoutResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Failure 409 {string} string "Payouts not enabled"
// @Router /tenants/{tenantID}/payouts [post]
func (h *SubscriptionHandler) payout(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	var req dto.PayoutDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	transfer, err := h.subscriptionService.PayoutTenant(r.Context(), tenant.ID,
		req.AmountCents, req.Description, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.PayoutResponseDTO{
		TransferID:  transfer.TransferID,
		Status:      string(transfer.Status),
		AmountCents: transfer.AmountCents,
		Currency:    transfer.Currency,
		CreatedAt:   transfer.CreatedAt,
	})
}

func subscriptionToDTO(sub *model.Subscription) dto.SubscriptionResponseDTO {
	return dto.SubscriptionResponseDTO{
		TenantID:           sub.TenantID.String(),
		Plan:               sub.Plan.String(),
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
}
