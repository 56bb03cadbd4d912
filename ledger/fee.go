package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeePolicy computes the platform's cut on funding and release. A single
// injected policy keeps the rate out of the settlement code paths; the
// default is a flat 10%.
type FeePolicy struct {
	rate decimal.Decimal
}

// NewFeePolicy builds a policy from a fractional rate such as "0.10".
func NewFeePolicy(rate string) (FeePolicy, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return FeePolicy{}, fmt.Errorf("ledger: parse fee rate %q: %w", rate, err)
	}
	if r.Sign() < 0 || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return FeePolicy{}, fmt.Errorf("ledger: fee rate %s out of range [0,1)", r)
	}
	return FeePolicy{rate: r}, nil
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{rate: decimal.RequireFromString("0.10")}
}

// Split returns (fee, net) for a gross amount. Currency rounding is two
// decimals, half-up.
func (p FeePolicy) Split(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	fee := amount.Mul(p.rate).Round(2)
	return fee, amount.Sub(fee)
}
