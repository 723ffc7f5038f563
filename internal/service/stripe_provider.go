package service

import (
	"context"
	"errors"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/accountlink"
	"github.com/stripe/stripe-go/v82/balance"
	"github.com/stripe/stripe-go/v82/loginlink"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/transfer"
)

// StripeProvider is the production PaymentProvider backend. Every call applies
// the configured timeout; a deadline hit is surfaced as TimeoutError because
// the provider-side effect may still have occurred.
type StripeProvider struct {
	currency string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewStripeProvider sets the global Stripe key and returns the provider with a
// scoped logger.
func NewStripeProvider(secretKey, currency string, timeout time.Duration, logger zerolog.Logger) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{
		currency: currency,
		timeout:  timeout,
		logger:   logger.With().Str("service", "StripeProvider").Logger(),
	}
}

// mapStripeErr converts a Stripe SDK error into the domain taxonomy.
func (p *StripeProvider) mapStripeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &model.TimeoutError{Op: op, Timeout: p.timeout}
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &model.ProviderError{
			Code:        string(stripeErr.Code),
			DeclineCode: string(stripeErr.DeclineCode),
			Message:     stripeErr.Msg,
		}
	}
	return &model.ProviderError{Code: "provider_unreachable", Message: err.Error()}
}

func chargeStatusFromIntent(status stripe.PaymentIntentStatus) ChargeStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return ChargeStatusSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return ChargeStatusFailed
	default:
		return ChargeStatusPending
	}
}

func (p *StripeProvider) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Customer:    stripe.String(req.CustomerID),
		Description: stripe.String(req.Description),
		Confirm:     stripe.Bool(true),
		OffSession:  stripe.Bool(true),
	}
	if len(req.Metadata) > 0 {
		params.Metadata = req.Metadata
	}
	// The caller's key goes through verbatim; Stripe dedupes on it.
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			// A decline is a charge outcome, not a transport failure.
			res := &ChargeResult{
				Status:      ChargeStatusFailed,
				AmountCents: req.AmountCents,
				Currency:    req.Currency,
				FailureCode: string(stripeErr.Code),
				DeclineCode: string(stripeErr.DeclineCode),
			}
			if stripeErr.PaymentIntent != nil {
				res.ChargeID = stripeErr.PaymentIntent.ID
			}
			return res, nil
		}
		p.logger.Error().Err(err).Str("customer_id", req.CustomerID).Msg("Failed to create charge")
		return nil, p.mapStripeErr(ctx, "create charge", err)
	}

	return &ChargeResult{
		ChargeID:    pi.ID,
		Status:      chargeStatusFromIntent(pi.Status),
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		CreatedAt:   time.Unix(pi.Created, 0),
	}, nil
}

func (p *StripeProvider) CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.TransferParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.DestinationAccount),
		Description: stripe.String(req.Description),
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	t, err := transfer.New(params)
	if err != nil {
		p.logger.Error().Err(err).Str("destination", req.DestinationAccount).Msg("Failed to create transfer")
		return nil, p.mapStripeErr(ctx, "create transfer", err)
	}

	status := TransferStatusPaid
	if t.Reversed {
		status = TransferStatusCanceled
	}
	return &TransferResult{
		TransferID:  t.ID,
		Status:      status,
		AmountCents: t.Amount,
		Currency:    string(t.Currency),
		CreatedAt:   time.Unix(t.Created, 0),
	}, nil
}

func (p *StripeProvider) GetBalance(ctx context.Context) (*Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	bal, err := balance.Get(&stripe.BalanceParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, p.mapStripeErr(ctx, "get balance", err)
	}

	out := &Balance{Currency: p.currency}
	for _, a := range bal.Available {
		if string(a.Currency) == p.currency {
			out.AvailableCents += a.Amount
		}
	}
	for _, a := range bal.Pending {
		if string(a.Currency) == p.currency {
			out.PendingCents += a.Amount
		}
	}
	return out, nil
}

func (p *StripeProvider) RetrieveCharge(ctx context.Context, chargeID string) (*ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pi, err := paymentintent.Get(chargeID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, &model.NotFoundError{Resource: "charge", ID: chargeID}
		}
		return nil, p.mapStripeErr(ctx, "retrieve charge", err)
	}

	res := &ChargeResult{
		ChargeID:    pi.ID,
		Status:      chargeStatusFromIntent(pi.Status),
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		CreatedAt:   time.Unix(pi.Created, 0),
	}
	if pi.LastPaymentError != nil {
		res.FailureCode = string(pi.LastPaymentError.Code)
		res.DeclineCode = string(pi.LastPaymentError.DeclineCode)
	}
	return res, nil
}

func (p *StripeProvider) RefundCharge(ctx context.Context, chargeID string, amountCents int64) (*RefundResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(chargeID),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	re, err := refund.New(params)
	if err != nil {
		p.logger.Error().Err(err).Str("charge_id", chargeID).Msg("Failed to refund charge")
		return nil, p.mapStripeErr(ctx, "refund charge", err)
	}

	return &RefundResult{
		RefundID:    re.ID,
		ChargeID:    chargeID,
		AmountCents: re.Amount,
		Status:      string(re.Status),
		CreatedAt:   time.Unix(re.Created, 0),
	}, nil
}

func (p *StripeProvider) CreateConnectAccount(ctx context.Context, req ConnectAccountRequest) (*ConnectAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.AccountParams{
		Params:   stripe.Params{Context: ctx},
		Type:     stripe.String(string(stripe.AccountTypeExpress)),
		Email:    stripe.String(req.Email),
		Metadata: map[string]string{"tenant_id": req.TenantID},
	}
	if req.Country != "" {
		params.Country = stripe.String(req.Country)
	}
	acct, err := account.New(params)
	if err != nil {
		p.logger.Error().Err(err).Str("tenant_id", req.TenantID).Msg("Failed to create connect account")
		return nil, p.mapStripeErr(ctx, "create connect account", err)
	}

	return &ConnectAccount{AccountID: acct.ID, CreatedAt: time.Unix(acct.Created, 0)}, nil
}

func (p *StripeProvider) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	link, err := accountlink.New(&stripe.AccountLinkParams{
		Params:     stripe.Params{Context: ctx},
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	})
	if err != nil {
		return nil, p.mapStripeErr(ctx, "create account link", err)
	}

	return &AccountLink{URL: link.URL, ExpiresAt: time.Unix(link.ExpiresAt, 0)}, nil
}

func (p *StripeProvider) GetConnectAccountStatus(ctx context.Context, accountID string) (*ConnectAccountStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	acct, err := account.GetByID(accountID, &stripe.AccountParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, p.mapStripeErr(ctx, "get connect account status", err)
	}

	status := &ConnectAccountStatus{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		status.Requirements = acct.Requirements.CurrentlyDue
	}
	return status, nil
}

func (p *StripeProvider) CreateConnectLoginLink(ctx context.Context, accountID string) (*LoginLink, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	link, err := loginlink.New(&stripe.LoginLinkParams{
		Params:  stripe.Params{Context: ctx},
		Account: stripe.String(accountID),
	})
	if err != nil {
		return nil, p.mapStripeErr(ctx, "create connect login link", err)
	}

	return &LoginLink{URL: link.URL}, nil
}
