package token

import (
	"fmt"
	"math/big"
	"sync"
)

// AccountBook is an in-process Token backed by a balance map. It stands in
// for an external custody ledger in single-node deployments; every method is
// safe for concurrent use.
//
// Approve is bookkeeping only. The book runs in the same trust domain as its
// callers, so allowances are recorded for audit but not enforced.
type AccountBook struct {
	mu         sync.Mutex
	code       string
	self       string
	balances   map[string]*big.Int
	allowances map[string]*big.Int
}

// NewAccountBook creates a book for one currency. self is the custody
// address debited by Transfer.
func NewAccountBook(code, self string) *AccountBook {
	return &AccountBook{
		code:       code,
		self:       self,
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func (b *AccountBook) Code() string { return b.code }

// Credit adds amount to a holder's balance. It is the book's issuance
// primitive, used at deployment seeding and by settlement tooling.
func (b *AccountBook) Credit(holder string, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[holder]
	if !ok {
		bal = new(big.Int)
		b.balances[holder] = bal
	}
	bal.Add(bal, amount)
}

func (b *AccountBook) BalanceOf(holder string) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[holder]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (b *AccountBook) Transfer(to string, amount *big.Int) error {
	return b.move(b.self, to, amount)
}

func (b *AccountBook) TransferFrom(from, to string, amount *big.Int) error {
	return b.move(from, to, amount)
}

func (b *AccountBook) Approve(spender string, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[spender] = new(big.Int).Set(amount)
	return nil
}

func (b *AccountBook) move(from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%s: bad transfer amount", b.code)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: insufficient balance for %s", b.code, from)
	}
	bal.Sub(bal, amount)
	dst, ok := b.balances[to]
	if !ok {
		dst = new(big.Int)
		b.balances[to] = dst
	}
	dst.Add(dst, amount)
	return nil
}

// ShareBook is an in-process ShareLedger with minter administration. The
// minter set is tracked for migration handoff; within a single process the
// engine is the only caller of Mint and BurnFrom.
type ShareBook struct {
	mu       sync.Mutex
	supply   *big.Int
	holdings map[string]*big.Int
	minters  map[string]bool
}

// NewShareBook creates a share ledger with the given initial minter.
func NewShareBook(minter string) *ShareBook {
	return &ShareBook{
		supply:   new(big.Int),
		holdings: make(map[string]*big.Int),
		minters:  map[string]bool{minter: true},
	}
}

func (s *ShareBook) TotalSupply() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.supply), nil
}

func (s *ShareBook) BalanceOf(holder string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal, ok := s.holdings[holder]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (s *ShareBook) Mint(holder string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bad mint amount")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.holdings[holder]
	if !ok {
		bal = new(big.Int)
		s.holdings[holder] = bal
	}
	bal.Add(bal, amount)
	s.supply.Add(s.supply, amount)
	return nil
}

func (s *ShareBook) BurnFrom(holder string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bad burn amount")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.holdings[holder]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient shares for %s", holder)
	}
	bal.Sub(bal, amount)
	s.supply.Sub(s.supply, amount)
	return nil
}

func (s *ShareBook) GrantMinter(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minters[addr] = true
	return nil
}

func (s *ShareBook) RevokeMinter(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.minters, addr)
	return nil
}

// IsMinter reports whether addr currently holds mint rights.
func (s *ShareBook) IsMinter(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minters[addr]
}
