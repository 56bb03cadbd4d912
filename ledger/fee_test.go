package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewFeePolicy_RejectsOutOfRange(t *testing.T) {
	for _, rate := range []string{"-0.01", "1", "1.5", "abc"} {
		if _, err := NewFeePolicy(rate); err == nil {
			t.Errorf("NewFeePolicy(%q): expected error, got nil", rate)
		}
	}
}

func TestFeePolicySplit(t *testing.T) {
	cases := []struct {
		rate   string
		amount string
		fee    string
		net    string
	}{
		{"0.10", "1000.00", "100.00", "900.00"},
		{"0.10", "0.01", "0.00", "0.01"},
		{"0.10", "0.05", "0.01", "0.04"},
		{"0.10", "33.33", "3.33", "30.00"},
		{"0.15", "99.99", "15.00", "84.99"},
		{"0", "250.00", "0.00", "250.00"},
	}

	for _, tc := range cases {
		policy, err := NewFeePolicy(tc.rate)
		if err != nil {
			t.Fatalf("NewFeePolicy(%q): %v", tc.rate, err)
		}

		fee, net := policy.Split(decimal.RequireFromString(tc.amount))

		if !fee.Equal(decimal.RequireFromString(tc.fee)) {
			t.Errorf("rate %s amount %s: fee = %s, want %s", tc.rate, tc.amount, fee, tc.fee)
		}
		if !net.Equal(decimal.RequireFromString(tc.net)) {
			t.Errorf("rate %s amount %s: net = %s, want %s", tc.rate, tc.amount, net, tc.net)
		}
		if !fee.Add(net).Equal(decimal.RequireFromString(tc.amount)) {
			t.Errorf("rate %s amount %s: fee + net = %s, want the gross amount", tc.rate, tc.amount, fee.Add(net))
		}
	}
}

func TestFeePolicySplit_RoundsHalfUp(t *testing.T) {
	policy := DefaultFeePolicy()

	fee, net := policy.Split(decimal.RequireFromString("0.25"))
	if got := fee.StringFixed(2); got != "0.03" {
		t.Errorf("fee = %s, want 0.03", got)
	}
	if got := net.StringFixed(2); got != "0.22" {
		t.Errorf("net = %s, want 0.22", got)
	}
}
