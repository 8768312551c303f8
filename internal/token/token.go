package token

import (
	"math/big"
)

// Token is the external asset-token interface the engine needs: custody
// queries and transfers. Implementations are untrusted — any call may fail
// or re-enter the engine before returning.
type Token interface {
	// BalanceOf returns the holder's balance in native token units.
	BalanceOf(holder string) (*big.Int, error)

	// Transfer moves amount from the engine's custody to the payee.
	Transfer(to string, amount *big.Int) error

	// TransferFrom pulls amount from a holder into the engine's custody.
	// The holder must have authorized the engine beforehand.
	TransferFrom(from, to string, amount *big.Int) error

	// Approve authorizes a spender to pull up to amount from the engine.
	Approve(spender string, amount *big.Int) error
}

// ShareLedger is the external fungible-claim ledger. The engine is its sole
// minter while active; mint rights move to a successor during migration.
type ShareLedger interface {
	TotalSupply() (*big.Int, error)
	BalanceOf(holder string) (*big.Int, error)
	Mint(holder string, amount *big.Int) error
	BurnFrom(holder string, amount *big.Int) error
}

// MinterAdmin is the administrative face of a share ledger that supports
// transferring mint rights. Required for engine migration.
type MinterAdmin interface {
	GrantMinter(addr string) error
	RevokeMinter(addr string) error
}
