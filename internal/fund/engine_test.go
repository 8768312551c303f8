package fund_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"

	"FundLedger/internal/exchange"
	"FundLedger/internal/fund"
	"FundLedger/internal/testutil"
	"FundLedger/internal/venue"
)

const (
	fundAddr  = "fund"
	ownerAddr = "owner"
	opAddr    = "operator"
	beneAddr  = "beneficiary"
	aliceAddr = "alice"
	bobAddr   = "bob"
)

// usd scales a whole-dollar amount to 18-decimal fixed point.
func usd(dollars int64) *big.Int {
	v := big.NewInt(dollars)
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// dai scales a whole-dollar amount to 6-decimal native units.
func dai(dollars int64) *big.Int {
	v := big.NewInt(dollars)
	return v.Mul(v, big.NewInt(1_000000))
}

type harness struct {
	engine *fund.Engine
	token  *testutil.FakeToken
	shares *testutil.FakeShares
	venue  *testutil.FakeVenue
}

// newHarness builds an engine with one 6-decimal currency "DAI" eligible
// for venue 0, and alice holding 1000 DAI.
func newHarness(t *testing.T) *harness {
	t.Helper()

	token := testutil.NewFakeToken()
	token.SetSelf(fundAddr)
	token.SetBalance(aliceAddr, dai(1000))
	token.SetBalance(bobAddr, dai(1000))

	shares := testutil.NewFakeShares()
	fv := testutil.NewFakeVenue()
	fv.Token = token
	fv.Custody = fundAddr

	router := venue.NewRouter([]venue.Adapter{fv}, zerolog.Nop())

	eng, err := fund.New(fund.Config{
		Address:        fundAddr,
		Owner:          ownerAddr,
		Operator:       opAddr,
		FeeBeneficiary: beneAddr,
		Shares:         shares,
		Minter:         shares,
		Router:         router,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.RegisterCurrency(ownerAddr, "DAI", 6, token, []int{0}, true); err != nil {
		t.Fatalf("register DAI: %v", err)
	}
	return &harness{engine: eng, token: token, shares: shares, venue: fv}
}

// ============================================================================
// Test: Deposit
// ============================================================================

func TestDeposit_BootstrapPegsSharesToUsd(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.Deposit(aliceAddr, "DAI", dai(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	supply, _ := h.shares.TotalSupply()
	if supply.Cmp(usd(1)) != 0 {
		t.Errorf("total shares = %s, want %s", supply, usd(1))
	}
	held, _ := h.shares.BalanceOf(aliceAddr)
	if held.Cmp(usd(1)) != 0 {
		t.Errorf("alice shares = %s, want %s", held, usd(1))
	}
	if nd := h.engine.NetDeposits(); nd.Cmp(usd(1)) != 0 {
		t.Errorf("net deposits = %s, want %s", nd, usd(1))
	}
}

func TestDeposit_ProRataAfterInterest(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.Deposit(aliceAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("alice deposit: %v", err)
	}
	// Interest doubles the fund: custody gains 100 DAI with no deposit.
	cur, _ := h.token.BalanceOf(fundAddr)
	h.token.SetBalance(fundAddr, cur.Add(cur, dai(100)))

	// Bob's 100 now buys half as many shares as alice's did.
	if err := h.engine.Deposit(bobAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("bob deposit: %v", err)
	}
	aliceShares, _ := h.shares.BalanceOf(aliceAddr)
	bobShares, _ := h.shares.BalanceOf(bobAddr)
	if want := new(big.Int).Quo(aliceShares, big.NewInt(2)); bobShares.Cmp(want) != 0 {
		t.Errorf("bob shares = %s, want %s", bobShares, want)
	}
}

func TestDeposit_Preconditions(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.Deposit(aliceAddr, "USDC", dai(1)); !errors.Is(err, fund.ErrUnknownCurrency) {
		t.Errorf("unknown currency: got %v", err)
	}
	if err := h.engine.Deposit(aliceAddr, "DAI", big.NewInt(0)); !errors.Is(err, fund.ErrZeroAmount) {
		t.Errorf("zero amount: got %v", err)
	}

	if err := h.engine.SetCurrencyAccepted(ownerAddr, "DAI", false); err != nil {
		t.Fatalf("set accepted: %v", err)
	}
	if err := h.engine.Deposit(aliceAddr, "DAI", dai(1)); !errors.Is(err, fund.ErrCurrencyNotAccepted) {
		t.Errorf("not accepted: got %v", err)
	}
	if err := h.engine.SetCurrencyAccepted(ownerAddr, "DAI", true); err != nil {
		t.Fatalf("set accepted: %v", err)
	}

	if err := h.engine.SetEnabled(ownerAddr, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := h.engine.Deposit(aliceAddr, "DAI", dai(1)); !errors.Is(err, fund.ErrFundDisabled) {
		t.Errorf("disabled: got %v", err)
	}
}

func TestDeposit_DustDoesNotMutate(t *testing.T) {
	h := newHarness(t)

	// A 20-decimal currency: anything under 100 native units scales to 0 USD.
	hi := testutil.NewFakeToken()
	hi.SetSelf(fundAddr)
	hi.SetBalance(aliceAddr, big.NewInt(1000))
	if err := h.engine.RegisterCurrency(ownerAddr, "HI20", 20, hi, nil, true); err != nil {
		t.Fatalf("register HI20: %v", err)
	}

	err := h.engine.Deposit(aliceAddr, "HI20", big.NewInt(50))
	if !errors.Is(err, fund.ErrDustAmount) {
		t.Fatalf("got %v, want ErrDustAmount", err)
	}
	if nd := h.engine.NetDeposits(); nd.Sign() != 0 {
		t.Errorf("net deposits mutated: %s", nd)
	}
	supply, _ := h.shares.TotalSupply()
	if supply.Sign() != 0 {
		t.Errorf("shares minted on dust: %s", supply)
	}
	bal, _ := hi.BalanceOf(aliceAddr)
	if bal.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("tokens pulled on dust: alice has %s", bal)
	}
}

func TestDeposit_BalanceCap(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.SetBalanceCap(ownerAddr, usd(150)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	if err := h.engine.Deposit(aliceAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if err := h.engine.Deposit(aliceAddr, "DAI", dai(100)); !errors.Is(err, fund.ErrBalanceCapExceeded) {
		t.Errorf("over cap: got %v", err)
	}

	// The fee beneficiary is exempt.
	h.token.SetBalance(beneAddr, dai(500))
	if err := h.engine.Deposit(beneAddr, "DAI", dai(400)); err != nil {
		t.Errorf("beneficiary capped: %v", err)
	}

	// Cap of zero means uncapped.
	if err := h.engine.SetBalanceCap(ownerAddr, nil); err != nil {
		t.Fatalf("clear cap: %v", err)
	}
	if err := h.engine.Deposit(aliceAddr, "DAI", dai(100)); err != nil {
		t.Errorf("uncapped deposit: %v", err)
	}
}

func TestDeposit_MintFailureRefunds(t *testing.T) {
	h := newHarness(t)
	h.shares.FailMint = true

	err := h.engine.Deposit(aliceAddr, "DAI", dai(10))
	if !errors.Is(err, fund.ErrExternalCall) {
		t.Fatalf("got %v, want ErrExternalCall", err)
	}
	if nd := h.engine.NetDeposits(); nd.Sign() != 0 {
		t.Errorf("net deposits not rolled back: %s", nd)
	}
	bal, _ := h.token.BalanceOf(aliceAddr)
	if bal.Cmp(dai(1000)) != 0 {
		t.Errorf("tokens not refunded: alice has %s", bal)
	}
}

// ============================================================================
// Test: Withdraw
// ============================================================================

func TestWithdraw_RoundTrip(t *testing.T) {
	h := newHarness(t)

	before, _ := h.token.BalanceOf(aliceAddr)
	if err := h.engine.Deposit(aliceAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.Withdraw(aliceAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	after, _ := h.token.BalanceOf(aliceAddr)
	if after.Cmp(before) != 0 {
		t.Errorf("round trip: before %s, after %s", before, after)
	}
	if nd := h.engine.NetDeposits(); nd.Sign() != 0 {
		t.Errorf("net deposits after round trip: %s", nd)
	}
	supply, _ := h.shares.TotalSupply()
	if supply.Sign() != 0 {
		t.Errorf("shares after round trip: %s", supply)
	}
}

func TestWithdraw_NetDepositsRunningSum(t *testing.T) {
	h := newHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	h.engine.Deposit(bobAddr, "DAI", dai(50))
	h.engine.Withdraw(aliceAddr, "DAI", dai(30))
	h.engine.Deposit(aliceAddr, "DAI", dai(10))

	want := usd(100 + 50 - 30 + 10)
	if nd := h.engine.NetDeposits(); nd.Cmp(want) != 0 {
		t.Errorf("net deposits = %s, want %s", nd, want)
	}
}

func TestWithdraw_RejectsWhenDisabled(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Deposit(aliceAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := h.engine.SetEnabled(ownerAddr, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if err := h.engine.Withdraw(aliceAddr, "DAI", dai(10)); !errors.Is(err, fund.ErrFundDisabled) {
		t.Fatalf("got %v, want ErrFundDisabled", err)
	}
	if nd := h.engine.NetDeposits(); nd.Cmp(usd(100)) != 0 {
		t.Errorf("net deposits mutated: %s", nd)
	}
	if bal, _ := h.shares.BalanceOf(aliceAddr); bal.Sign() == 0 {
		t.Error("shares burned despite rejection")
	}
}

func TestWithdraw_InsufficientShares(t *testing.T) {
	h := newHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	h.engine.Deposit(bobAddr, "DAI", dai(100))

	err := h.engine.Withdraw(aliceAddr, "DAI", dai(150))
	if !errors.Is(err, fund.ErrInsufficientShares) {
		t.Errorf("got %v, want ErrInsufficientShares", err)
	}
}

func TestWithdraw_ExceedsFundBalance(t *testing.T) {
	h := newHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))

	err := h.engine.Withdraw(aliceAddr, "DAI", dai(200))
	if !errors.Is(err, fund.ErrInsufficientFundBalance) {
		t.Errorf("got %v, want ErrInsufficientFundBalance", err)
	}
}

func TestWithdraw_EmptyFund(t *testing.T) {
	h := newHarness(t)

	err := h.engine.Withdraw(aliceAddr, "DAI", dai(1))
	if !errors.Is(err, fund.ErrZeroFundBalance) {
		t.Errorf("got %v, want ErrZeroFundBalance", err)
	}
}

func TestWithdraw_QueuesWhenIlliquid(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.Deposit(aliceAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Deploy 60 to the venue: on-hand drops to 40.
	if err := h.engine.DepositToVenue(opAddr, "DAI", 0, dai(60)); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	if err := h.engine.Withdraw(aliceAddr, "DAI", dai(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// Full accounting committed: shares burned, netDeposits decremented.
	supply, _ := h.shares.TotalSupply()
	if supply.Sign() != 0 {
		t.Errorf("shares not fully burned: %s", supply)
	}
	if nd := h.engine.NetDeposits(); nd.Sign() != 0 {
		t.Errorf("net deposits = %s, want 0", nd)
	}
	// Nothing paid out; the full amount is queued.
	bal, _ := h.token.BalanceOf(aliceAddr)
	if bal.Cmp(dai(900)) != 0 {
		t.Errorf("alice paid partially: %s", bal)
	}
	q, err := h.engine.PendingWithdrawals("DAI")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(q) != 1 || q[0].Payee != aliceAddr || q[0].Amount.Cmp(dai(100)) != 0 {
		t.Errorf("queue = %+v, want [{alice %s}]", q, dai(100))
	}
}

// ============================================================================
// Test: balance views
// ============================================================================

func TestRawFundBalance_SubtractsQueued(t *testing.T) {
	h := newHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	h.engine.DepositToVenue(opAddr, "DAI", 0, dai(60))
	h.engine.Withdraw(aliceAddr, "DAI", dai(100))

	raw, err := h.engine.RawFundBalance("DAI")
	if err != nil {
		t.Fatalf("raw balance: %v", err)
	}
	// 40 on-hand + 60 deployed - 100 queued.
	if raw.Sign() != 0 {
		t.Errorf("raw balance = %s, want 0", raw)
	}
}

func TestAccountBalanceUsd(t *testing.T) {
	h := newHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	h.engine.Deposit(bobAddr, "DAI", dai(300))

	got, err := h.engine.AccountBalanceUsd(aliceAddr)
	if err != nil {
		t.Fatalf("account balance: %v", err)
	}
	if got.Cmp(usd(100)) != 0 {
		t.Errorf("alice balance = %s, want %s", got, usd(100))
	}

	got, err = h.engine.AccountBalanceUsd("stranger")
	if err != nil {
		t.Fatalf("stranger balance: %v", err)
	}
	if got.Sign() != 0 {
		t.Errorf("stranger balance = %s, want 0", got)
	}
}

// ============================================================================
// Test: authorization & venue ops
// ============================================================================

func TestAdminOps_RequireOwner(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.SetEnabled(aliceAddr, false); !errors.Is(err, fund.ErrNotOwner) {
		t.Errorf("SetEnabled: got %v", err)
	}
	if err := h.engine.SetBalanceCap(aliceAddr, usd(1)); !errors.Is(err, fund.ErrNotOwner) {
		t.Errorf("SetBalanceCap: got %v", err)
	}
	if err := h.engine.RegisterCurrency(aliceAddr, "X", 6, h.token, nil, true); !errors.Is(err, fund.ErrNotOwner) {
		t.Errorf("RegisterCurrency: got %v", err)
	}
}

func TestVenueOps_RequireOperator(t *testing.T) {
	h := newHarness(t)
	h.engine.Deposit(aliceAddr, "DAI", dai(100))

	if err := h.engine.DepositToVenue(aliceAddr, "DAI", 0, dai(10)); !errors.Is(err, fund.ErrNotOperator) {
		t.Errorf("deposit: got %v", err)
	}
	if err := h.engine.WithdrawAllFromVenue(aliceAddr, "DAI", 0); !errors.Is(err, fund.ErrNotOperator) {
		t.Errorf("withdraw all: got %v", err)
	}
}

func TestVenueOps_RejectIneligibleIndex(t *testing.T) {
	h := newHarness(t)
	h.engine.Deposit(aliceAddr, "DAI", dai(100))

	err := h.engine.DepositToVenue(opAddr, "DAI", 3, dai(10))
	if !errors.Is(err, venue.ErrInvalidVenueIndex) {
		t.Errorf("got %v, want ErrInvalidVenueIndex", err)
	}
}

func TestVenueRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.engine.Deposit(aliceAddr, "DAI", dai(100))

	if err := h.engine.DepositToVenue(opAddr, "DAI", 0, dai(70)); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	raw, _ := h.engine.RawFundBalance("DAI")
	if raw.Cmp(dai(100)) != 0 {
		t.Errorf("raw balance after deploy = %s, want %s", raw, dai(100))
	}

	if err := h.engine.WithdrawFromVenue(opAddr, "DAI", 0, dai(30)); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if err := h.engine.WithdrawAllFromVenue(opAddr, "DAI", 0); err != nil {
		t.Fatalf("recall all: %v", err)
	}
	onHand, _ := h.token.BalanceOf(fundAddr)
	if onHand.Cmp(dai(100)) != 0 {
		t.Errorf("on-hand after full recall = %s, want %s", onHand, dai(100))
	}
}

// ============================================================================
// Test: currency exchange
// ============================================================================

func TestExchangeCurrencies(t *testing.T) {
	h := newHarness(t)

	usdc := testutil.NewFakeToken()
	usdc.SetSelf(fundAddr)
	if err := h.engine.RegisterCurrency(ownerAddr, "USDC", 6, usdc, []int{0}, true); err != nil {
		t.Fatalf("register USDC: %v", err)
	}
	h.engine.Deposit(aliceAddr, "DAI", dai(100))

	// The harness engine has no exchange wired.
	orders := []exchange.LimitOrder{
		{Maker: "mm1", MakerAsset: "USDC", TakerAsset: "DAI", MakerAmount: dai(50), TakerAmount: dai(50)},
		{Maker: "mm2", MakerAsset: "USDC", TakerAsset: "DAI", MakerAmount: dai(50), TakerAmount: dai(60)},
	}
	err := h.engine.ExchangeCurrencies(opAddr, "DAI", "USDC", orders, nil, dai(80), nil)
	if !errors.Is(err, fund.ErrExchangeUnset) {
		t.Fatalf("unset exchange: got %v", err)
	}

	// Rebuild with a fake exchange wired in.
	h = newHarness(t)
	ex := &testutil.FakeExchange{}
	eng, errNew := fund.New(fund.Config{
		Address:  fundAddr,
		Owner:    ownerAddr,
		Operator: opAddr,
		Shares:   h.shares,
		Router:   venue.NewRouter([]venue.Adapter{h.venue}, zerolog.Nop()),
		Exchange: ex,
		Logger:   zerolog.Nop(),
	})
	if errNew != nil {
		t.Fatalf("new engine: %v", errNew)
	}
	if err := eng.RegisterCurrency(ownerAddr, "DAI", 6, h.token, []int{0}, true); err != nil {
		t.Fatalf("register DAI: %v", err)
	}
	if err := eng.RegisterCurrency(ownerAddr, "USDC", 6, usdc, []int{0}, true); err != nil {
		t.Fatalf("register USDC: %v", err)
	}

	if err := eng.ExchangeCurrencies(opAddr, "DAI", "USDC", orders, nil, dai(80), nil); err != nil {
		t.Fatalf("exchange: %v", err)
	}

	// Unsorted orders are the caller's bug, not the exchange's.
	reversed := []exchange.LimitOrder{orders[1], orders[0]}
	if err := eng.ExchangeCurrencies(opAddr, "DAI", "USDC", reversed, nil, dai(80), nil); !errors.Is(err, exchange.ErrOrdersNotSorted) {
		t.Errorf("unsorted: got %v", err)
	}

	// Orders quoting a different pair never reach the exchange.
	wrongPair := []exchange.LimitOrder{
		{Maker: "mm3", MakerAsset: "DAI", TakerAsset: "USDC", MakerAmount: dai(50), TakerAmount: dai(50)},
	}
	if err := eng.ExchangeCurrencies(opAddr, "DAI", "USDC", wrongPair, nil, dai(80), nil); !errors.Is(err, exchange.ErrOrderAssetMismatch) {
		t.Errorf("wrong pair: got %v", err)
	}

	if err := eng.ExchangeCurrencies(aliceAddr, "DAI", "USDC", orders, nil, dai(80), nil); !errors.Is(err, fund.ErrNotOperator) {
		t.Errorf("non-operator: got %v", err)
	}
}

// ============================================================================
// Test: invariants
// ============================================================================

func TestCheckInvariants_CleanAfterActivity(t *testing.T) {
	h := newHarness(t)

	h.engine.Deposit(aliceAddr, "DAI", dai(100))
	h.engine.DepositToVenue(opAddr, "DAI", 0, dai(60))
	h.engine.Withdraw(aliceAddr, "DAI", dai(50))

	if violations := h.engine.CheckInvariants(); len(violations) != 0 {
		t.Errorf("violations: %v", violations)
	}
}
