package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	xerrors "SolTradeBot/internal/errors"
)

func TestSolToLamports(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1.5", 1500000000},
		{"1", 1000000000},
		{"0.000000001", 1},
		{"0.1", 100000000},
		// Sub-lamport precision is truncated.
		{"0.0000000019", 1},
	}
	for _, tc := range cases {
		got, err := SolToLamports(decimal.RequireFromString(tc.in))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s SOL: expected %d lamports, got %d", tc.in, tc.want, got)
		}
	}
}

func TestSolToLamportsRejectsNonPositive(t *testing.T) {
	for _, raw := range []string{"0", "-0.5", "0.0000000001"} {
		if _, err := SolToLamports(decimal.RequireFromString(raw)); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
			t.Fatalf("%s: expected INVALID_ARGUMENT, got %v", raw, err)
		}
	}
}

func TestFormatMinorUnits(t *testing.T) {
	if got := FormatMinorUnits(1500000000, 9); got != "1.5" {
		t.Fatalf("expected 1.5, got %s", got)
	}
	if got := FormatMinorUnits(123456, 6); got != "0.123456" {
		t.Fatalf("expected 0.123456, got %s", got)
	}
	if got := FormatMinorUnits(42, 0); got != "42" {
		t.Fatalf("expected 42, got %s", got)
	}
}

func TestPercentOf(t *testing.T) {
	if got := percentOf(1000000, 50); got != 500000 {
		t.Fatalf("expected 500000, got %d", got)
	}
	if got := percentOf(3, 33); got != 0 {
		t.Fatalf("expected truncation to 0, got %d", got)
	}
	if got := percentOf(^uint64(0), 100); got != ^uint64(0) {
		t.Fatalf("100%% of max must not overflow, got %d", got)
	}
}
