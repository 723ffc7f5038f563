package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated customer account. Each tenant owns a dedicated
// Postgres schema (its namespace); the namespace is assigned at signup and
// never reassigned.
type Tenant struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Plan               Plan      `json:"plan"`
	Namespace          string    `json:"namespace"`
	ProviderCustomerID string    `json:"provider_customer_id,omitempty"`
	ConnectAccountID   string    `json:"connect_account_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// TenantScope is the explicit namespace handle threaded through every
// data-access call. No repository relies on ambient connection state.
type TenantScope struct {
	TenantID  uuid.UUID
	Namespace string
}

// Scope returns the tenant's data-access handle.
func (t Tenant) Scope() TenantScope {
	return TenantScope{TenantID: t.ID, Namespace: t.Namespace}
}
