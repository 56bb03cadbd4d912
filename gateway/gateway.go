package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrPaymentGateway wraps any failure from the external processor. Callers
// surface it to the client as a retryable condition; it never masquerades as
// success.
var ErrPaymentGateway = errors.New("gateway: payment gateway error")

// Reference identifies a charge or payout at the external processor.
type Reference string

// Gateway is the external payment processor boundary. Charge collects from a
// client payment method; Payout pushes funds to a freelancer destination.
type Gateway interface {
	Charge(ctx context.Context, paymentMethod string, amount decimal.Decimal) (Reference, error)
	Payout(ctx context.Context, destination string, amount decimal.Decimal) (Reference, error)
}

// Simulated always succeeds with a fresh reference. It stands in for a real
// Stripe/Razorpay integration and keeps the failure path testable through
// Failing below.
type Simulated struct{}

func (Simulated) Charge(ctx context.Context, paymentMethod string, amount decimal.Decimal) (Reference, error) {
	return Reference("sim_" + uuid.NewString()), nil
}

func (Simulated) Payout(ctx context.Context, destination string, amount decimal.Decimal) (Reference, error) {
	return Reference("sim_" + uuid.NewString()), nil
}

// Failing rejects every call; used to exercise the gateway-error path.
type Failing struct{}

func (Failing) Charge(ctx context.Context, paymentMethod string, amount decimal.Decimal) (Reference, error) {
	return "", ErrPaymentGateway
}

func (Failing) Payout(ctx context.Context, destination string, amount decimal.Decimal) (Reference, error) {
	return "", ErrPaymentGateway
}
