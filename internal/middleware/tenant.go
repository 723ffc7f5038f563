package middleware

import (
	"context"
	"errors"
	"net/http"

	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const TenantContextKey = contextKey("tenant")

// TenantMiddleware resolves the {tenantID} path segment into a tenant and
// embeds it into the request context. A token may only reach its own tenant
// unless it carries the billing admin role.
func TenantMiddleware(tenantRepo repository.TenantRepository, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := uuid.Parse(r.PathValue("tenantID"))
			if err != nil {
				http.Error(w, "Invalid tenant id", http.StatusBadRequest)
				return
			}

			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.Role != RoleBillingAdmin && claims.TenantID != tenantID.String() {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			tenant, err := tenantRepo.GetByID(r.Context(), tenantID)
			if err != nil {
				var notFound *model.NotFoundError
				if errors.As(err, &notFound) {
					http.Error(w, "Tenant not found", http.StatusNotFound)
					return
				}
				logger.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to resolve tenant")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the resolved tenant, or nil outside the
// tenant-scoped chain.
func TenantFromContext(ctx context.Context) *model.Tenant {
	tenant, _ := ctx.Value(TenantContextKey).(*model.Tenant)
	return tenant
}
