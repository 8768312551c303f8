package usdmath_test

import (
	"FundLedger/internal/usdmath"
	"math/big"
	"testing"
)

func TestToUsd_ScalesUpLowPrecision(t *testing.T) {
	// 1.000000 units of a 6-decimal currency -> 1e18
	got := usdmath.ToUsd(big.NewInt(1_000000), 6)
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestToUsd_IdentityAt18(t *testing.T) {
	v := big.NewInt(123456789)
	got := usdmath.ToUsd(v, 18)
	if got.Cmp(v) != 0 {
		t.Errorf("got %s, want %s", got, v)
	}
	// Must be a copy, not an alias.
	got.SetInt64(0)
	if v.Int64() != 123456789 {
		t.Error("ToUsd aliased its input")
	}
}

func TestToUsd_TruncatesHighPrecision(t *testing.T) {
	// 20-decimal currency: 150 base units -> 1 USD unit, dust truncated.
	got := usdmath.ToUsd(big.NewInt(150), 20)
	if got.Int64() != 1 {
		t.Errorf("got %s, want 1", got)
	}
}

func TestFromUsd_TruncatesTowardZero(t *testing.T) {
	// 1.5 units of USD dust below 6-decimal precision truncates.
	usd, _ := new(big.Int).SetString("1999999999999", 10) // ~2e-6 USD
	got := usdmath.FromUsd(usd, 6)
	if got.Int64() != 1 {
		t.Errorf("got %s, want 1", got)
	}
}

func TestFromUsd_ScalesUpHighPrecision(t *testing.T) {
	got := usdmath.FromUsd(big.NewInt(7), 20)
	if got.Int64() != 700 {
		t.Errorf("got %s, want 700", got)
	}
}

func TestRoundTrip_BoundedTruncation(t *testing.T) {
	// FromUsd(ToUsd(x)) == x for decimals <= 18 (pure power-of-ten scaling).
	for _, amount := range []int64{1, 999999, 1_000001, 123_456789} {
		usd := usdmath.ToUsd(big.NewInt(amount), 6)
		back := usdmath.FromUsd(usd, 6)
		if back.Int64() != amount {
			t.Errorf("round trip %d -> %s", amount, back)
		}
	}
}

func TestMulDiv_Truncates(t *testing.T) {
	// 7*3/2 = 10 (truncated from 10.5)
	got := usdmath.MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Int64() != 10 {
		t.Errorf("got %s, want 10", got)
	}
}

func TestMulDiv_LargeIntermediate(t *testing.T) {
	// 1e18 * 1e18 / 1e18 = 1e18 — overflows int64 in the intermediate.
	e18 := usdmath.Pow10(18)
	got := usdmath.MulDiv(e18, e18, e18)
	if got.Cmp(e18) != 0 {
		t.Errorf("got %s, want %s", got, e18)
	}
}

func TestApplyRate(t *testing.T) {
	// 100 USD at 10% = 10 USD
	hundred := new(big.Int).Mul(big.NewInt(100), usdmath.Pow10(18))
	tenPct := usdmath.Pow10(17)
	got := usdmath.ApplyRate(hundred, tenPct)
	want := new(big.Int).Mul(big.NewInt(10), usdmath.Pow10(18))
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestApplyRate_NegativeDelta(t *testing.T) {
	// Losses truncate toward zero, not toward negative infinity.
	got := usdmath.ApplyRate(big.NewInt(-15), big.NewInt(100_000_000_000_000_000)) // 10%
	if got.Int64() != -1 {
		t.Errorf("got %s, want -1", got)
	}
}

func TestClampZero(t *testing.T) {
	if usdmath.ClampZero(big.NewInt(-5)).Sign() != 0 {
		t.Error("negative should clamp to zero")
	}
	if usdmath.ClampZero(big.NewInt(5)).Int64() != 5 {
		t.Error("positive should pass through")
	}
}
