package service

import (
	"context"
	"time"
)

// ChargeStatus is the terminal-or-not state of a charge.
type ChargeStatus string

const (
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// TransferStatus is the state of a Connect transfer.
type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "pending"
	TransferStatusPaid     TransferStatus = "paid"
	TransferStatusFailed   TransferStatus = "failed"
	TransferStatusCanceled TransferStatus = "canceled"
)

// ChargeRequest asks the provider to collect a payment. The idempotency key is
// caller-supplied and must reach the provider unchanged: two calls with the
// same key have a monetary effect at most once.
type ChargeRequest struct {
	AmountCents    int64
	Currency       string
	CustomerID     string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// ChargeResult reports the provider's view of a charge. Callers must branch on
// Status; a non-nil result never implies success.
type ChargeResult struct {
	ChargeID    string
	Status      ChargeStatus
	AmountCents int64
	Currency    string
	FailureCode string
	DeclineCode string
	CreatedAt   time.Time
}

// TransferRequest moves funds to a Connect sub-account.
type TransferRequest struct {
	AmountCents        int64
	Currency           string
	DestinationAccount string
	Description        string
	IdempotencyKey     string
}

// TransferResult reports the provider's view of a transfer.
type TransferResult struct {
	TransferID  string
	Status      TransferStatus
	AmountCents int64
	Currency    string
	CreatedAt   time.Time
}

// RefundResult reports the outcome of refunding a charge.
type RefundResult struct {
	RefundID    string
	ChargeID    string
	AmountCents int64
	Status      string
	CreatedAt   time.Time
}

// Balance is the provider account balance in the platform currency.
type Balance struct {
	AvailableCents int64
	PendingCents   int64
	Currency       string
}

// ConnectAccountRequest opens a Connect sub-account for a tenant.
type ConnectAccountRequest struct {
	TenantID string
	Email    string
	Country  string
}

// ConnectAccount is a provider-managed sub-ledger for third-party payouts.
type ConnectAccount struct {
	AccountID string
	CreatedAt time.Time
}

// AccountLink is a one-time onboarding URL for a Connect account.
type AccountLink struct {
	URL       string
	ExpiresAt time.Time
}

// LoginLink is a dashboard login URL for a Connect account.
type LoginLink struct {
	URL string
}

// ConnectAccountStatus reports onboarding progress. The three booleans are
// independent; payout-dependent operations must gate on PayoutsEnabled
// specifically, not on DetailsSubmitted.
type ConnectAccountStatus struct {
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Requirements     []string
}

// PaymentProvider is the capability contract any payment backend must satisfy.
// The backend is chosen from configuration at construction time.
type PaymentProvider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	GetBalance(ctx context.Context) (*Balance, error)
	RetrieveCharge(ctx context.Context, chargeID string) (*ChargeResult, error)
	RefundCharge(ctx context.Context, chargeID string, amountCents int64) (*RefundResult, error)

	CreateConnectAccount(ctx context.Context, req ConnectAccountRequest) (*ConnectAccount, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error)
	GetConnectAccountStatus(ctx context.Context, accountID string) (*ConnectAccountStatus, error)
	CreateConnectLoginLink(ctx context.Context, accountID string) (*LoginLink, error)
}
