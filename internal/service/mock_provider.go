package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"app/internal/model"
)

// MockProvider satisfies PaymentProvider without network I/O. Results are
// deterministic: identifiers derive from the idempotency key, timestamps are
// fixed, and repeated calls with the same key return the stored first result.
type MockProvider struct {
	mu          sync.Mutex
	charges     map[string]*ChargeResult // by idempotency key
	chargesByID map[string]*ChargeResult
	transfers   map[string]*TransferResult // by idempotency key
	accounts    map[string]*ConnectAccountStatus

	chargeFailures map[string]*model.ProviderError // by customer id
	chargeTimeouts map[string]bool                 // by customer id

	chargeCalls int
}

var mockEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewMockProvider creates a MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		charges:        make(map[string]*ChargeResult),
		chargesByID:    make(map[string]*ChargeResult),
		transfers:      make(map[string]*TransferResult),
		accounts:       make(map[string]*ConnectAccountStatus),
		chargeFailures: make(map[string]*model.ProviderError),
		chargeTimeouts: make(map[string]bool),
	}
}

func mockID(prefix, key string) string {
	sum := sha256.Sum256([]byte(key))
	return prefix + "_" + hex.EncodeToString(sum[:12])
}

// FailChargesFor makes charges for the customer fail with the given codes.
func (p *MockProvider) FailChargesFor(customerID, code, declineCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chargeFailures[customerID] = &model.ProviderError{Code: code, DeclineCode: declineCode, Message: "mock failure"}
}

// TimeoutChargesFor makes charges for the customer time out.
func (p *MockProvider) TimeoutChargesFor(customerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chargeTimeouts[customerID] = true
}

// ClearChargeOverridesFor removes injected failures and timeouts for the customer.
func (p *MockProvider) ClearChargeOverridesFor(customerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.chargeFailures, customerID)
	delete(p.chargeTimeouts, customerID)
}

// SetAccountStatus seeds a Connect account status.
func (p *MockProvider) SetAccountStatus(status ConnectAccountStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[status.AccountID] = &status
}

// SetChargeResult seeds a retrievable charge, keyed by its charge id.
func (p *MockProvider) SetChargeResult(res ChargeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chargesByID[res.ChargeID] = &res
}

// ChargeCalls reports how many CreateCharge calls reached the provider.
func (p *MockProvider) ChargeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chargeCalls
}

func (p *MockProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chargeCalls++

	if p.chargeTimeouts[req.CustomerID] {
		return nil, &model.TimeoutError{Op: "create charge", Timeout: time.Second}
	}
	if provErr, ok := p.chargeFailures[req.CustomerID]; ok {
		return &ChargeResult{
			ChargeID:    mockID("ch", req.IdempotencyKey),
			Status:      ChargeStatusFailed,
			AmountCents: req.AmountCents,
			Currency:    req.Currency,
			FailureCode: provErr.Code,
			DeclineCode: provErr.DeclineCode,
			CreatedAt:   mockEpoch,
		}, nil
	}
	// Same key, same monetary effect: return the stored result untouched.
	if existing, ok := p.charges[req.IdempotencyKey]; ok {
		return existing, nil
	}
	res := &ChargeResult{
		ChargeID:    mockID("ch", req.IdempotencyKey),
		Status:      ChargeStatusSucceeded,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		CreatedAt:   mockEpoch,
	}
	p.charges[req.IdempotencyKey] = res
	p.chargesByID[res.ChargeID] = res
	return res, nil
}

func (p *MockProvider) CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.transfers[req.IdempotencyKey]; ok {
		return existing, nil
	}
	res := &TransferResult{
		TransferID:  mockID("tr", req.IdempotencyKey),
		Status:      TransferStatusPaid,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		CreatedAt:   mockEpoch,
	}
	p.transfers[req.IdempotencyKey] = res
	return res, nil
}

func (p *MockProvider) GetBalance(ctx context.Context) (*Balance, error) {
	return &Balance{AvailableCents: 1_000_000, PendingCents: 0, Currency: "usd"}, nil
}

func (p *MockProvider) RetrieveCharge(ctx context.Context, chargeID string) (*ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.chargesByID[chargeID]
	if !ok {
		return nil, &model.NotFoundError{Resource: "charge", ID: chargeID}
	}
	out := *res
	return &out, nil
}

func (p *MockProvider) RefundCharge(ctx context.Context, chargeID string, amountCents int64) (*RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.chargesByID[chargeID]; !ok {
		return nil, &model.NotFoundError{Resource: "charge", ID: chargeID}
	}
	return &RefundResult{
		RefundID:    mockID("re", chargeID),
		ChargeID:    chargeID,
		AmountCents: amountCents,
		Status:      "succeeded",
		CreatedAt:   mockEpoch,
	}, nil
}

func (p *MockProvider) CreateConnectAccount(ctx context.Context, req ConnectAccountRequest) (*ConnectAccount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	accountID := mockID("acct", req.TenantID)
	if _, ok := p.accounts[accountID]; !ok {
		p.accounts[accountID] = &ConnectAccountStatus{
			AccountID:    accountID,
			Requirements: []string{"external_account", "tos_acceptance.date"},
		}
	}
	return &ConnectAccount{AccountID: accountID, CreatedAt: mockEpoch}, nil
}

func (p *MockProvider) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error) {
	return &AccountLink{
		URL:       "https://connect.mock.local/onboard/" + accountID,
		ExpiresAt: mockEpoch.Add(24 * time.Hour),
	}, nil
}

func (p *MockProvider) GetConnectAccountStatus(ctx context.Context, accountID string) (*ConnectAccountStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.accounts[accountID]
	if !ok {
		return nil, &model.NotFoundError{Resource: "connect account", ID: accountID}
	}
	out := *status
	return &out, nil
}

func (p *MockProvider) CreateConnectLoginLink(ctx context.Context, accountID string) (*LoginLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return nil, &model.NotFoundError{Resource: "connect account", ID: accountID}
	}
	return &LoginLink{URL: "https://connect.mock.local/login/" + accountID}, nil
}
