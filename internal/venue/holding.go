package venue

import (
	"fmt"
	"math/big"

	"FundLedger/internal/token"
)

// HoldingAdapter is an Adapter over in-process account books. Deploying to
// the venue moves custody from the engine's address to the venue's address
// on the currency's book; the venue itself holds passively.
//
// It exists so single-node deployments have a working allocation target
// without an external integration. Yield shows up when something credits
// the venue address out of band.
type HoldingAdapter struct {
	engineAddr string
	venueAddr  string
	books      map[string]*token.AccountBook
}

func NewHoldingAdapter(engineAddr, venueAddr string, books map[string]*token.AccountBook) *HoldingAdapter {
	return &HoldingAdapter{
		engineAddr: engineAddr,
		venueAddr:  venueAddr,
		books:      books,
	}
}

func (a *HoldingAdapter) book(asset string) (*token.AccountBook, error) {
	b, ok := a.books[asset]
	if !ok {
		return nil, fmt.Errorf("no book for asset %s", asset)
	}
	return b, nil
}

func (a *HoldingAdapter) Balance(asset string) (*big.Int, error) {
	b, err := a.book(asset)
	if err != nil {
		return nil, err
	}
	return b.BalanceOf(a.venueAddr)
}

func (a *HoldingAdapter) Approve(asset string, amount *big.Int) error {
	b, err := a.book(asset)
	if err != nil {
		return err
	}
	return b.Approve(a.venueAddr, amount)
}

func (a *HoldingAdapter) Deposit(asset string, amount *big.Int) error {
	b, err := a.book(asset)
	if err != nil {
		return err
	}
	return b.TransferFrom(a.engineAddr, a.venueAddr, amount)
}

func (a *HoldingAdapter) Withdraw(asset string, amount *big.Int) error {
	b, err := a.book(asset)
	if err != nil {
		return err
	}
	return b.TransferFrom(a.venueAddr, a.engineAddr, amount)
}

func (a *HoldingAdapter) WithdrawAll(asset string) error {
	b, err := a.book(asset)
	if err != nil {
		return err
	}
	bal, err := b.BalanceOf(a.venueAddr)
	if err != nil {
		return err
	}
	if bal.Sign() == 0 {
		return nil
	}
	return b.TransferFrom(a.venueAddr, a.engineAddr, bal)
}
