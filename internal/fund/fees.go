package fund

import (
	"math/big"

	"FundLedger/internal/usdmath"
)

// FeeState is the interest-fee accrual snapshot structure. It supports a
// variable fee rate without replaying history: each rate change folds the
// fees generated so far into FeesGeneratedAtLastRate and re-bases the raw
// interest reference point.
//
// All amounts are 18-decimal USD. Mutated only by a rate change or a fee
// claim; reads derive everything else from the current raw interest.
type FeeState struct {
	// Rate is the 1e18-scaled fraction of new raw interest taken as fees.
	Rate *big.Int

	RawInterestAtLastRate   *big.Int
	FeesGeneratedAtLastRate *big.Int

	// FeesClaimed is cumulative over the engine's lifetime, including fees
	// re-deposited into the fund as shares.
	FeesClaimed *big.Int
}

func newFeeState(rate *big.Int) *FeeState {
	if rate == nil {
		rate = new(big.Int)
	}
	return &FeeState{
		Rate:                    new(big.Int).Set(rate),
		RawInterestAtLastRate:   new(big.Int),
		FeesGeneratedAtLastRate: new(big.Int),
		FeesClaimed:             new(big.Int),
	}
}

// FeesGenerated returns the cumulative fees generated given the current raw
// interest accrued since inception. Negative interest deltas (losses since
// the last rate change) reduce the generated amount at the current rate.
func (fs *FeeState) FeesGenerated(rawInterest *big.Int) *big.Int {
	delta := new(big.Int).Sub(rawInterest, fs.RawInterestAtLastRate)
	gen := usdmath.ApplyRate(delta, fs.Rate)
	return gen.Add(gen, fs.FeesGeneratedAtLastRate)
}

// Unclaimed returns max(0, feesGenerated - feesClaimed).
func (fs *FeeState) Unclaimed(rawInterest *big.Int) *big.Int {
	gen := fs.FeesGenerated(rawInterest)
	return usdmath.ClampZero(gen.Sub(gen, fs.FeesClaimed))
}

// rebase snapshots the accrual state at a rate boundary. Order matters:
// FeesGeneratedAtLastRate is computed against the OLD reference point before
// RawInterestAtLastRate moves.
func (fs *FeeState) rebase(rawInterest, newRate *big.Int) {
	fs.FeesGeneratedAtLastRate = fs.FeesGenerated(rawInterest)
	fs.RawInterestAtLastRate = new(big.Int).Set(rawInterest)
	fs.Rate = new(big.Int).Set(newRate)
}

// markClaimed records a claim of the given USD amount.
func (fs *FeeState) markClaimed(amountUsd *big.Int) {
	fs.FeesClaimed.Add(fs.FeesClaimed, amountUsd)
}
