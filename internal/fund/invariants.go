package fund

import (
	"fmt"
	"math/big"
)

// CheckInvariants verifies the engine's accounting invariants against live
// balances. It is a diagnostic read: nothing is mutated. Each violation is
// returned as its own error.
//
// Checked:
//   - per currency, the queued payout total is covered by on-hand custody
//     plus deployed venue balances;
//   - unclaimed fees are non-negative and never exceed the raw USD balance;
//   - fund balance equals raw balance minus unclaimed fees.
func (e *Engine) CheckInvariants() []error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var violations []error

	for _, code := range e.registry.list() {
		c, _ := e.registry.get(code)
		queued := e.queuedTotalLocked(code)
		if queued.Sign() == 0 {
			continue
		}
		onHand, err := c.Token.BalanceOf(e.address)
		if err != nil {
			violations = append(violations, fmt.Errorf("%s: read on-hand: %w", code, err))
			continue
		}
		deployed, err := e.router.Balance(code, c.Venues)
		if err != nil {
			violations = append(violations, fmt.Errorf("%s: read venues: %w", code, err))
			continue
		}
		redeemable := new(big.Int).Add(onHand, deployed)
		if queued.Cmp(redeemable) > 0 {
			violations = append(violations, fmt.Errorf(
				"%s: queued %s exceeds redeemable %s", code, queued, redeemable))
		}
	}

	v, err := e.usdViewLocked()
	if err != nil {
		violations = append(violations, fmt.Errorf("usd view: %w", err))
		return violations
	}
	if v.unclaimed.Sign() < 0 {
		violations = append(violations, fmt.Errorf("negative unclaimed fees %s", v.unclaimed))
	}
	if v.raw.Sign() >= 0 && v.unclaimed.Cmp(v.raw) > 0 {
		violations = append(violations, fmt.Errorf(
			"unclaimed fees %s exceed raw balance %s", v.unclaimed, v.raw))
	}
	sum := new(big.Int).Add(v.fund, v.unclaimed)
	if sum.Cmp(v.raw) != 0 {
		violations = append(violations, fmt.Errorf(
			"fund %s + unclaimed %s != raw %s", v.fund, v.unclaimed, v.raw))
	}
	return violations
}
