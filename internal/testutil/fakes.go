package testutil

import (
	"errors"
	"fmt"
	"math/big"

	"FundLedger/internal/exchange"
)

// FakeToken is an in-memory token keyed by holder address. Not safe for
// concurrent use; engine tests run single-threaded.
type FakeToken struct {
	Balances   map[string]*big.Int
	Allowances map[string]*big.Int // spender -> allowance (single owner model)

	// FailTransfers makes every Transfer/TransferFrom fail.
	FailTransfers bool

	// self is the holder debited by plain Transfer calls; see SetSelf.
	self string
}

func NewFakeToken() *FakeToken {
	return &FakeToken{
		Balances:   make(map[string]*big.Int),
		Allowances: make(map[string]*big.Int),
	}
}

// SetBalance overwrites a holder's balance.
func (ft *FakeToken) SetBalance(holder string, amount *big.Int) {
	ft.Balances[holder] = new(big.Int).Set(amount)
}

func (ft *FakeToken) BalanceOf(holder string) (*big.Int, error) {
	if b, ok := ft.Balances[holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (ft *FakeToken) Transfer(to string, amount *big.Int) error {
	return ft.move("", to, amount)
}

func (ft *FakeToken) TransferFrom(from, to string, amount *big.Int) error {
	return ft.move(from, to, amount)
}

// move transfers between holders. An empty from means "the caller", which
// for engine tests is always the engine's custody address set via SetSelf.
func (ft *FakeToken) move(from, to string, amount *big.Int) error {
	if ft.FailTransfers {
		return errors.New("transfer failed")
	}
	if from == "" {
		from = ft.self
	}
	have := ft.Balances[from]
	if have == nil || have.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s has %s, needs %s", from, have, amount)
	}
	have.Sub(have, amount)
	dst := ft.Balances[to]
	if dst == nil {
		dst = new(big.Int)
		ft.Balances[to] = dst
	}
	dst.Add(dst, amount)
	return nil
}

func (ft *FakeToken) Approve(spender string, amount *big.Int) error {
	ft.Allowances[spender] = new(big.Int).Set(amount)
	return nil
}

// SetSelf sets the holder debited by plain Transfer calls (the engine's own
// custody address).
func (ft *FakeToken) SetSelf(addr string) { ft.self = addr }

// FakeShares is an in-memory share ledger with a minter allow-list.
type FakeShares struct {
	Supply   *big.Int
	Holdings map[string]*big.Int
	Minters  map[string]bool

	FailMint bool
}

func NewFakeShares() *FakeShares {
	return &FakeShares{
		Supply:   new(big.Int),
		Holdings: make(map[string]*big.Int),
		Minters:  make(map[string]bool),
	}
}

func (fs *FakeShares) TotalSupply() (*big.Int, error) {
	return new(big.Int).Set(fs.Supply), nil
}

func (fs *FakeShares) BalanceOf(holder string) (*big.Int, error) {
	if b, ok := fs.Holdings[holder]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (fs *FakeShares) Mint(holder string, amount *big.Int) error {
	if fs.FailMint {
		return errors.New("mint failed")
	}
	b := fs.Holdings[holder]
	if b == nil {
		b = new(big.Int)
		fs.Holdings[holder] = b
	}
	b.Add(b, amount)
	fs.Supply.Add(fs.Supply, amount)
	return nil
}

func (fs *FakeShares) BurnFrom(holder string, amount *big.Int) error {
	b := fs.Holdings[holder]
	if b == nil || b.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient shares: %s has %s, burns %s", holder, b, amount)
	}
	b.Sub(b, amount)
	fs.Supply.Sub(fs.Supply, amount)
	return nil
}

func (fs *FakeShares) GrantMinter(addr string) error {
	fs.Minters[addr] = true
	return nil
}

func (fs *FakeShares) RevokeMinter(addr string) error {
	delete(fs.Minters, addr)
	return nil
}

// FakeVenue is an in-memory venue adapter holding one balance per asset.
type FakeVenue struct {
	Holdings map[string]*big.Int
	Token    *FakeToken // custody token to move value against, optional

	// Custody is the engine address value moves to and from when Token is
	// set.
	Custody string

	FailOps bool
}

func NewFakeVenue() *FakeVenue {
	return &FakeVenue{Holdings: make(map[string]*big.Int)}
}

func (fv *FakeVenue) SetHolding(asset string, amount *big.Int) {
	fv.Holdings[asset] = new(big.Int).Set(amount)
}

func (fv *FakeVenue) Balance(asset string) (*big.Int, error) {
	if fv.FailOps {
		return nil, errors.New("venue unavailable")
	}
	if b, ok := fv.Holdings[asset]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (fv *FakeVenue) Approve(asset string, amount *big.Int) error {
	if fv.FailOps {
		return errors.New("venue unavailable")
	}
	return nil
}

func (fv *FakeVenue) Deposit(asset string, amount *big.Int) error {
	if fv.FailOps {
		return errors.New("venue unavailable")
	}
	if fv.Token != nil {
		if err := fv.Token.TransferFrom(fv.Custody, "venue", amount); err != nil {
			return err
		}
	}
	b := fv.Holdings[asset]
	if b == nil {
		b = new(big.Int)
		fv.Holdings[asset] = b
	}
	b.Add(b, amount)
	return nil
}

func (fv *FakeVenue) Withdraw(asset string, amount *big.Int) error {
	if fv.FailOps {
		return errors.New("venue unavailable")
	}
	b := fv.Holdings[asset]
	if b == nil || b.Cmp(amount) < 0 {
		return fmt.Errorf("venue holds %s %s, withdrawing %s", b, asset, amount)
	}
	b.Sub(b, amount)
	if fv.Token != nil {
		return fv.Token.TransferFrom("venue", fv.Custody, amount)
	}
	return nil
}

func (fv *FakeVenue) WithdrawAll(asset string) error {
	if fv.FailOps {
		return errors.New("venue unavailable")
	}
	b := fv.Holdings[asset]
	if b == nil || b.Sign() == 0 {
		return nil
	}
	amount := new(big.Int).Set(b)
	b.SetInt64(0)
	if fv.Token != nil {
		return fv.Token.TransferFrom("venue", fv.Custody, amount)
	}
	return nil
}

// FakeExchange fills orders greedily at each order's stated price until
// maxInput is consumed.
type FakeExchange struct {
	Fee *big.Int // flat protocol fee reported per call
}

func (fe *FakeExchange) FillOrdersUpTo(
	orders []exchange.LimitOrder,
	signatures [][]byte,
	maxInput, minMarginalOutput *big.Int,
) (*big.Int, *big.Int, *big.Int, error) {
	consumed := new(big.Int)
	received := new(big.Int)
	remaining := new(big.Int).Set(maxInput)

	for _, o := range orders {
		if remaining.Sign() == 0 {
			break
		}
		take := new(big.Int).Set(o.TakerAmount)
		if take.Cmp(remaining) > 0 {
			take = new(big.Int).Set(remaining)
		}
		// output = take * makerAmount / takerAmount
		out := new(big.Int).Mul(take, o.MakerAmount)
		out.Quo(out, o.TakerAmount)
		consumed.Add(consumed, take)
		received.Add(received, out)
		remaining.Sub(remaining, take)
	}

	fee := new(big.Int)
	if fe.Fee != nil {
		fee.Set(fe.Fee)
	}
	return consumed, fee, received, nil
}
