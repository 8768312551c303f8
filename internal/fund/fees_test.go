package fund_test

import (
	"errors"
	"math/big"
	"testing"

	"FundLedger/internal/fund"
)

// rate scales a percentage to the 1e18 rate representation.
func rate(percent int64) *big.Int {
	v := big.NewInt(percent)
	v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return v.Quo(v, big.NewInt(100))
}

// accrue simulates interest: custody gains tokens with no deposit.
func accrue(h *harness, amount *big.Int) {
	cur, _ := h.token.BalanceOf(fundAddr)
	h.token.SetBalance(fundAddr, cur.Add(cur, amount))
}

func newFeeHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	if err := h.engine.SetInterestFeeRate(ownerAddr, rate(10)); err != nil {
		t.Fatalf("set initial rate: %v", err)
	}
	return h
}

func TestFees_GeneratedAtCurrentRate(t *testing.T) {
	h := newFeeHarness(t)

	accrue(h, dai(100))

	unclaimed, err := h.engine.UnclaimedInterestFees()
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(usd(10)) != 0 {
		t.Errorf("unclaimed = %s, want %s", unclaimed, usd(10))
	}

	// Fund balance excludes the unclaimed fees.
	fundUsd, err := h.engine.FundBalanceUsd()
	if err != nil {
		t.Fatalf("fund balance: %v", err)
	}
	if fundUsd.Cmp(usd(90)) != 0 {
		t.Errorf("fund balance = %s, want %s", fundUsd, usd(90))
	}
}

func TestFees_RateChangeSnapshots(t *testing.T) {
	h := newFeeHarness(t)

	// 100 USD interest at 10%: 10 USD generated.
	accrue(h, dai(100))

	if err := h.engine.SetInterestFeeRate(ownerAddr, rate(20)); err != nil {
		t.Fatalf("rate change: %v", err)
	}
	snap := h.engine.FeeSnapshot()
	if snap.FeesGeneratedAtLastRate.Cmp(usd(10)) != 0 {
		t.Errorf("fees generated at change = %s, want %s", snap.FeesGeneratedAtLastRate, usd(10))
	}
	if snap.RawInterestAtLastRate.Cmp(usd(100)) != 0 {
		t.Errorf("raw interest at change = %s, want %s", snap.RawInterestAtLastRate, usd(100))
	}
	// The unclaimed 10 were auto-deposited as beneficiary shares.
	if snap.FeesClaimed.Cmp(usd(10)) != 0 {
		t.Errorf("fees claimed = %s, want %s", snap.FeesClaimed, usd(10))
	}
	bene, _ := h.shares.BalanceOf(beneAddr)
	if bene.Sign() == 0 {
		t.Error("beneficiary received no shares from auto-deposit")
	}

	// 50 more USD interest at 20%: generated = 10 + 50*0.20 = 20,
	// unclaimed = 20 - 10 already claimed = 10.
	accrue(h, dai(50))
	unclaimed, err := h.engine.UnclaimedInterestFees()
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(usd(10)) != 0 {
		t.Errorf("unclaimed = %s, want %s", unclaimed, usd(10))
	}
}

func TestFees_RateUnchangedRejected(t *testing.T) {
	h := newFeeHarness(t)
	if err := h.engine.SetInterestFeeRate(ownerAddr, rate(10)); !errors.Is(err, fund.ErrRateUnchanged) {
		t.Errorf("got %v, want ErrRateUnchanged", err)
	}
}

func TestDepositFees_MintsToBeneficiary(t *testing.T) {
	h := newFeeHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	accrue(h, dai(100)) // 10 USD of fees at 10%

	ndBefore := h.engine.NetDeposits()
	if err := h.engine.DepositFees(); err != nil {
		t.Fatalf("deposit fees: %v", err)
	}

	unclaimed, _ := h.engine.UnclaimedInterestFees()
	if unclaimed.Sign() != 0 {
		t.Errorf("unclaimed after deposit = %s, want 0", unclaimed)
	}
	bene, _ := h.shares.BalanceOf(beneAddr)
	if bene.Sign() == 0 {
		t.Error("beneficiary received no shares")
	}
	// Fee deposits count into net deposits.
	want := ndBefore.Add(ndBefore, usd(10))
	if nd := h.engine.NetDeposits(); nd.Cmp(want) != 0 {
		t.Errorf("net deposits = %s, want %s", nd, want)
	}
}

func TestDepositFees_RejectsWhenDisabled(t *testing.T) {
	h := newFeeHarness(t)
	accrue(h, dai(100))
	if err := h.engine.SetEnabled(ownerAddr, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if err := h.engine.DepositFees(); !errors.Is(err, fund.ErrFundDisabled) {
		t.Fatalf("got %v, want ErrFundDisabled", err)
	}
	snap := h.engine.FeeSnapshot()
	if snap.FeesClaimed.Sign() != 0 {
		t.Errorf("fees claimed mutated: %s", snap.FeesClaimed)
	}
	if bene, _ := h.shares.BalanceOf(beneAddr); bene.Sign() != 0 {
		t.Error("beneficiary received shares despite rejection")
	}
}

func TestDepositFees_NoFees(t *testing.T) {
	h := newFeeHarness(t)
	if err := h.engine.DepositFees(); !errors.Is(err, fund.ErrNoFeesAvailable) {
		t.Errorf("got %v, want ErrNoFeesAvailable", err)
	}
}

func TestWithdrawFees_PaysBeneficiary(t *testing.T) {
	h := newFeeHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	accrue(h, dai(100))

	if err := h.engine.WithdrawFees(opAddr, "DAI"); err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	bal, _ := h.token.BalanceOf(beneAddr)
	if bal.Cmp(dai(10)) != 0 {
		t.Errorf("beneficiary received %s, want %s", bal, dai(10))
	}
	unclaimed, _ := h.engine.UnclaimedInterestFees()
	if unclaimed.Sign() != 0 {
		t.Errorf("unclaimed after withdraw = %s, want 0", unclaimed)
	}
}

func TestWithdrawFees_RequiresOperator(t *testing.T) {
	h := newFeeHarness(t)
	accrue(h, dai(100))
	if err := h.engine.WithdrawFees(aliceAddr, "DAI"); !errors.Is(err, fund.ErrNotOperator) {
		t.Errorf("got %v, want ErrNotOperator", err)
	}
}

func TestWithdrawFees_RejectsWhenDisabled(t *testing.T) {
	h := newFeeHarness(t)
	accrue(h, dai(100))
	if err := h.engine.SetEnabled(ownerAddr, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if err := h.engine.WithdrawFees(opAddr, "DAI"); !errors.Is(err, fund.ErrFundDisabled) {
		t.Fatalf("got %v, want ErrFundDisabled", err)
	}
	snap := h.engine.FeeSnapshot()
	if snap.FeesClaimed.Sign() != 0 {
		t.Errorf("fees claimed mutated: %s", snap.FeesClaimed)
	}
	if bene, _ := h.token.BalanceOf(beneAddr); bene.Sign() != 0 {
		t.Error("beneficiary paid despite rejection")
	}
}

func TestWithdrawFees_NoFees(t *testing.T) {
	h := newFeeHarness(t)
	if err := h.engine.WithdrawFees(opAddr, "DAI"); !errors.Is(err, fund.ErrNoFeesAvailable) {
		t.Errorf("got %v, want ErrNoFeesAvailable", err)
	}
}

func TestFees_LossAfterRateChangeReducesGenerated(t *testing.T) {
	h := newFeeHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	accrue(h, dai(100))
	if err := h.engine.SetInterestFeeRate(ownerAddr, rate(20)); err != nil {
		t.Fatalf("rate change: %v", err)
	}

	// A 20 USD loss: generated = 10 + (-20)*0.20 = 6, claimed = 10,
	// unclaimed clamps to 0.
	cur, _ := h.token.BalanceOf(fundAddr)
	h.token.SetBalance(fundAddr, cur.Sub(cur, dai(20)))

	unclaimed, err := h.engine.UnclaimedInterestFees()
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Sign() != 0 {
		t.Errorf("unclaimed = %s, want 0", unclaimed)
	}
}
