package token

import (
	"math/big"

	"FundLedger/internal/usdmath"
)

// PriceSource quotes the USD price of one whole unit of a currency as a
// 1e18-scaled fraction. It is an explicit collaborator so that an oracle can
// replace the fixed peg without touching accounting code.
type PriceSource interface {
	UsdPrice(code string) (*big.Int, error)
}

// FixedPriceSource prices every currency at exactly 1 USD. This mirrors the
// stablecoin-peg assumption of the deployed system; it is a placeholder, not
// a design decision.
type FixedPriceSource struct{}

func (FixedPriceSource) UsdPrice(string) (*big.Int, error) {
	return new(big.Int).Set(usdmath.RateScale), nil
}
