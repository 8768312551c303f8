package usdmath

import (
	"math/big"
)

// UsdDecimals is the fixed fractional precision of the USD-normalized
// representation. Every currency amount is scaled to this precision before
// entering fund-level accounting.
const UsdDecimals = 18

// RateScale is the denominator for 1e18-scaled fractions (fee rates, prices).
var RateScale = Pow10(18)

// Pow10 returns 10^n as a big.Int.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ToUsd scales an amount from a currency's native decimal precision to the
// 18-fractional-digit USD representation. Scaling is exact multiplication or
// truncating division by a power of ten — never rounding.
func ToUsd(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if decimals == UsdDecimals {
		return new(big.Int).Set(amount)
	}
	if decimals < UsdDecimals {
		return new(big.Int).Mul(amount, Pow10(UsdDecimals-decimals))
	}
	// Truncation toward zero.
	return new(big.Int).Quo(amount, Pow10(decimals-UsdDecimals))
}

// FromUsd scales an 18-fractional-digit USD amount back to a currency's
// native decimal precision, truncating toward zero.
func FromUsd(amountUsd *big.Int, decimals uint8) *big.Int {
	if amountUsd == nil {
		return new(big.Int)
	}
	if decimals == UsdDecimals {
		return new(big.Int).Set(amountUsd)
	}
	if decimals > UsdDecimals {
		return new(big.Int).Mul(amountUsd, Pow10(decimals-UsdDecimals))
	}
	return new(big.Int).Quo(amountUsd, Pow10(UsdDecimals-decimals))
}

// MulDiv computes a*b/den with an arbitrary-precision intermediate and
// truncation toward zero. den must be non-zero.
func MulDiv(a, b, den *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	return num.Quo(num, den)
}

// ApplyRate computes amount * rate / 1e18, truncating toward zero.
// rate is a 1e18-scaled fraction. amount may be negative (loss deltas).
func ApplyRate(amount, rate *big.Int) *big.Int {
	return MulDiv(amount, rate, RateScale)
}

// ClampZero returns v if v > 0, else zero. The input is not mutated.
func ClampZero(v *big.Int) *big.Int {
	if v.Sign() > 0 {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
