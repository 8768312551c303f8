package venue

import (
	"math/big"
)

// Adapter is the interface a yield venue must expose to the allocation
// router. An adapter owns the mechanics of moving the engine's custody into
// and out of one venue; the router never looks inside.
//
// Balance may have side effects on the venue (some venues settle accrued
// yield on read) and must be treated as non-pure. A non-nil error from any
// method is an operation failure — the router never swallows it.
type Adapter interface {
	Balance(asset string) (*big.Int, error)
	Approve(asset string, amount *big.Int) error
	Deposit(asset string, amount *big.Int) error
	Withdraw(asset string, amount *big.Int) error
	WithdrawAll(asset string) error
}
