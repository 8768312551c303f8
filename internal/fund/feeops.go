package fund

import (
	"fmt"
	"math/big"
	"time"

	"FundLedger/internal/event"
	"FundLedger/internal/usdmath"
)

// FeeRate returns the current 1e18-scaled interest fee rate.
func (e *Engine) FeeRate() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.fees.Rate)
}

// UnclaimedInterestFees returns the USD amount of generated-but-unclaimed
// interest fees.
func (e *Engine) UnclaimedInterestFees() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.usdViewLocked()
	if err != nil {
		return nil, err
	}
	return v.unclaimed, nil
}

// FeeSnapshot returns a copy of the accrual snapshot state.
func (e *Engine) FeeSnapshot() FeeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return FeeState{
		Rate:                    new(big.Int).Set(e.fees.Rate),
		RawInterestAtLastRate:   new(big.Int).Set(e.fees.RawInterestAtLastRate),
		FeesGeneratedAtLastRate: new(big.Int).Set(e.fees.FeesGeneratedAtLastRate),
		FeesClaimed:             new(big.Int).Set(e.fees.FeesClaimed),
	}
}

// SetInterestFeeRate changes the fee rate. Any fees generated under the old
// rate but not yet claimed are first deposited into the fund as shares for
// the beneficiary; otherwise the snapshot below would fold them into the
// new rate's accounting and silently re-price them.
func (e *Engine) SetInterestFeeRate(caller string, newRate *big.Int) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if newRate == nil {
		newRate = new(big.Int)
	}
	if newRate.Cmp(e.fees.Rate) == 0 {
		e.reject("set_fee_rate", ErrRateUnchanged)
		return ErrRateUnchanged
	}

	v, err := e.usdViewLocked()
	if err != nil {
		return err
	}
	if v.unclaimed.Sign() > 0 {
		if err := e.depositFeesLocked(v); err != nil {
			return err
		}
		// The deposit moved netDeposits and feesClaimed by the same USD
		// amount, so rawInterest is unchanged; fund grew by the deposit.
	}

	oldRate := new(big.Int).Set(e.fees.Rate)
	e.fees.rebase(v.rawInterest, newRate)

	e.emitLocked(event.TypeFeeRateChanged, nil, event.FeeRateChanged{
		OldRate:               oldRate.String(),
		NewRate:               newRate.String(),
		RawInterestAtChange:   e.fees.RawInterestAtLastRate.String(),
		FeesGeneratedAtChange: e.fees.FeesGeneratedAtLastRate.String(),
	})
	e.observe("set_fee_rate", start)
	e.log.Info().Str("old_rate", oldRate.String()).Str("new_rate", newRate.String()).
		Msg("interest fee rate changed")
	return nil
}

// DepositFees converts the full unclaimed-fee amount into shares minted to
// the fee beneficiary at the current share price.
func (e *Engine) DepositFees() error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		e.reject("deposit_fees", ErrFundDisabled)
		return ErrFundDisabled
	}
	v, err := e.usdViewLocked()
	if err != nil {
		return err
	}
	if err := e.depositFeesLocked(v); err != nil {
		e.reject("deposit_fees", err)
		return err
	}
	e.observe("deposit_fees", start)
	return nil
}

// depositFeesLocked mints shares worth v.unclaimed to the beneficiary and
// marks that amount claimed. The share price comes from v.fund, which
// already excludes the unclaimed fees being deposited.
func (e *Engine) depositFeesLocked(v usdView) error {
	if e.beneficiary == "" {
		return ErrBeneficiaryUnset
	}
	if v.unclaimed.Sign() == 0 {
		return ErrNoFeesAvailable
	}

	totalShares, err := e.shares.TotalSupply()
	if err != nil {
		return fmt.Errorf("%w: total shares: %v", ErrExternalCall, err)
	}
	var toMint *big.Int
	if totalShares.Sign() > 0 && v.fund.Sign() > 0 {
		toMint = usdmath.MulDiv(v.unclaimed, totalShares, v.fund)
	} else {
		toMint = new(big.Int).Set(v.unclaimed)
	}
	if toMint.Sign() == 0 {
		return fmt.Errorf("%w: %s USD mints no shares", ErrDustAmount, v.unclaimed)
	}

	e.fees.markClaimed(v.unclaimed)
	e.netDeposits.Add(e.netDeposits, v.unclaimed)
	if err := e.shares.Mint(e.beneficiary, toMint); err != nil {
		e.fees.FeesClaimed.Sub(e.fees.FeesClaimed, v.unclaimed)
		e.netDeposits.Sub(e.netDeposits, v.unclaimed)
		return fmt.Errorf("%w: mint %s fee shares: %v", ErrExternalCall, toMint, err)
	}

	e.emitLocked(event.TypeFeesDeposited, nil, event.FeesDeposited{
		Beneficiary: e.beneficiary,
		AmountUsd:   v.unclaimed.String(),
		Shares:      toMint.String(),
	})
	e.log.Info().Str("beneficiary", e.beneficiary).
		Str("amount_usd", v.unclaimed.String()).Str("shares", toMint.String()).
		Msg("fees deposited as shares")
	return nil
}

// WithdrawFees pays the unclaimed-fee amount to the beneficiary in the given
// currency, directly from custody. The full unclaimed USD amount is marked
// claimed even when the native-unit conversion truncates; the dust stays in
// the fund for shareholders.
func (e *Engine) WithdrawFees(caller, code string) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if !e.enabled {
		e.reject("withdraw_fees", ErrFundDisabled)
		return ErrFundDisabled
	}
	if e.beneficiary == "" {
		return ErrBeneficiaryUnset
	}
	c, ok := e.registry.get(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}

	v, err := e.usdViewLocked()
	if err != nil {
		return err
	}
	if v.unclaimed.Sign() == 0 {
		e.reject("withdraw_fees", ErrNoFeesAvailable)
		return ErrNoFeesAvailable
	}

	price, err := e.prices.UsdPrice(code)
	if err != nil {
		return fmt.Errorf("%w: price of %s: %v", ErrExternalCall, code, err)
	}
	native := usdmath.FromUsd(usdmath.MulDiv(v.unclaimed, usdmath.RateScale, price), c.Decimals)
	if native.Sign() == 0 {
		e.reject("withdraw_fees", ErrNoFeesAvailable)
		return fmt.Errorf("%w: %s USD truncates to zero %s", ErrNoFeesAvailable, v.unclaimed, code)
	}

	e.fees.markClaimed(v.unclaimed)
	if err := c.Token.Transfer(e.beneficiary, native); err != nil {
		e.fees.FeesClaimed.Sub(e.fees.FeesClaimed, v.unclaimed)
		return fmt.Errorf("%w: pay %s %s fees to %s: %v", ErrExternalCall, native, code, e.beneficiary, err)
	}

	e.emitLocked(event.TypeFeesWithdrawn, &code, event.FeesWithdrawn{
		Beneficiary: e.beneficiary,
		Currency:    code,
		Amount:      native.String(),
		AmountUsd:   v.unclaimed.String(),
	})
	e.observe("withdraw_fees", start)
	e.log.Info().Str("beneficiary", e.beneficiary).Str("currency", code).
		Str("amount", native.String()).Msg("fees withdrawn")
	return nil
}
