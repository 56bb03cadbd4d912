package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSimulated(t *testing.T) {
	ctx := context.Background()
	gw := Simulated{}

	charge, err := gw.Charge(ctx, "card_123", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !strings.HasPrefix(string(charge), "sim_") {
		t.Errorf("charge reference = %q, want sim_ prefix", charge)
	}

	payout, err := gw.Payout(ctx, "DE0012345", decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("Payout: %v", err)
	}
	if payout == charge {
		t.Error("references not unique")
	}
}

func TestFailing(t *testing.T) {
	ctx := context.Background()
	gw := Failing{}

	if _, err := gw.Charge(ctx, "card_123", decimal.NewFromInt(1)); !errors.Is(err, ErrPaymentGateway) {
		t.Errorf("Charge err = %v, want ErrPaymentGateway", err)
	}
	if _, err := gw.Payout(ctx, "dest", decimal.NewFromInt(1)); !errors.Is(err, ErrPaymentGateway) {
		t.Errorf("Payout err = %v, want ErrPaymentGateway", err)
	}
}
