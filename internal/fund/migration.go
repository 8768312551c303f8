package fund

import (
	"fmt"
	"math/big"
	"time"

	"FundLedger/internal/event"
)

// FundManagerData is the accounting snapshot handed from a retiring engine
// to its successor. Balances move as tokens; this carries only the counters
// that cannot be rederived from balances.
type FundManagerData struct {
	NetDeposits             *big.Int
	RawInterestAtLastRate   *big.Int
	FeesGeneratedAtLastRate *big.Int
	FeesClaimed             *big.Int
}

// Successor is the receiving side of a migration.
type Successor interface {
	Address() string
	SetFundManagerData(sender string, data FundManagerData) error
}

// SetAuthorizedPredecessor designates the single identity allowed to hand
// this engine its accounting snapshot via SetFundManagerData.
func (e *Engine) SetAuthorizedPredecessor(caller, predecessor string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.predecessor = predecessor
	return nil
}

// SetFundManagerData installs the predecessor's accounting snapshot. It is
// one-shot: a second call fails even from the authorized sender, so a
// completed migration can never be silently re-based.
func (e *Engine) SetFundManagerData(sender string, data FundManagerData) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.predecessor == "" || sender != e.predecessor {
		return fmt.Errorf("%w: %s", ErrUnauthorizedPredecessor, sender)
	}
	if e.dataReceived {
		return ErrDataAlreadySet
	}
	if data.NetDeposits == nil || data.RawInterestAtLastRate == nil ||
		data.FeesGeneratedAtLastRate == nil || data.FeesClaimed == nil {
		return fmt.Errorf("incomplete fund manager data from %s", sender)
	}

	e.netDeposits.Set(data.NetDeposits)
	e.fees.RawInterestAtLastRate = new(big.Int).Set(data.RawInterestAtLastRate)
	e.fees.FeesGeneratedAtLastRate = new(big.Int).Set(data.FeesGeneratedAtLastRate)
	e.fees.FeesClaimed = new(big.Int).Set(data.FeesClaimed)
	e.dataReceived = true

	e.log.Info().Str("predecessor", sender).
		Str("net_deposits", data.NetDeposits.String()).
		Msg("fund manager data installed")
	return nil
}

// UpgradeTo migrates this engine's state and holdings to a successor:
// venue positions are recalled, pending queues drained, the accounting
// snapshot handed over, share-mint authority transferred, and every
// currency's on-hand balance moved. The engine is left disabled with
// zeroed counters.
func (e *Engine) UpgradeTo(caller string, successor Successor) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if successor == nil {
		return fmt.Errorf("nil successor")
	}
	if e.minter == nil {
		return ErrMinterAdminUnset
	}

	// Disable first so nothing interleaves between snapshot and hand-off
	// through any path that checks the flag.
	e.enabled = false

	// Recall deployed capital so on-hand covers the queues and the final
	// balance sweep.
	for _, code := range e.registry.list() {
		c, _ := e.registry.get(code)
		for _, idx := range c.Venues {
			if err := e.router.WithdrawAll(idx, code); err != nil {
				return err
			}
		}
	}

	// Settle every queued payout before balances leave. Empty queues are
	// no-ops inside the drain.
	for _, code := range e.registry.list() {
		if err := e.processPendingLocked(code); err != nil {
			return err
		}
	}

	data := FundManagerData{
		NetDeposits:             new(big.Int).Set(e.netDeposits),
		RawInterestAtLastRate:   new(big.Int).Set(e.fees.RawInterestAtLastRate),
		FeesGeneratedAtLastRate: new(big.Int).Set(e.fees.FeesGeneratedAtLastRate),
		FeesClaimed:             new(big.Int).Set(e.fees.FeesClaimed),
	}
	if err := successor.SetFundManagerData(e.address, data); err != nil {
		return fmt.Errorf("%w: hand off to %s: %v", ErrExternalCall, successor.Address(), err)
	}

	if err := e.minter.GrantMinter(successor.Address()); err != nil {
		return fmt.Errorf("%w: grant minter to %s: %v", ErrExternalCall, successor.Address(), err)
	}
	if err := e.minter.RevokeMinter(e.address); err != nil {
		return fmt.Errorf("%w: revoke own minter: %v", ErrExternalCall, err)
	}

	for _, code := range e.registry.list() {
		c, _ := e.registry.get(code)
		onHand, err := c.Token.BalanceOf(e.address)
		if err != nil {
			return fmt.Errorf("%w: balance of %s: %v", ErrExternalCall, code, err)
		}
		if onHand.Sign() == 0 {
			continue
		}
		if err := c.Token.Transfer(successor.Address(), onHand); err != nil {
			return fmt.Errorf("%w: move %s %s to %s: %v", ErrExternalCall, onHand, code, successor.Address(), err)
		}
	}

	netDeposits := e.netDeposits.String()
	e.netDeposits = new(big.Int)
	e.fees = newFeeState(e.fees.Rate)

	e.emitLocked(event.TypeEngineUpgraded, nil, event.EngineUpgraded{
		Successor:   successor.Address(),
		NetDeposits: netDeposits,
	})
	e.observe("upgrade", start)
	e.log.Info().Str("successor", successor.Address()).
		Str("net_deposits", netDeposits).Msg("engine migrated to successor")
	return nil
}

// processPendingLocked is the drain body of ProcessPendingWithdrawals with
// the lock already held; an empty queue succeeds immediately.
func (e *Engine) processPendingLocked(code string) error {
	c, ok := e.registry.get(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	q := e.queues[code]
	if len(q) == 0 {
		return nil
	}
	total := e.queuedTotalLocked(code)
	onHand, err := c.Token.BalanceOf(e.address)
	if err != nil {
		return fmt.Errorf("%w: balance of %s: %v", ErrExternalCall, code, err)
	}
	if onHand.Cmp(total) < 0 {
		return fmt.Errorf("%w: queue holds %s %s, custody has %s", ErrInsufficientLiquidity, total, code, onHand)
	}
	e.queues[code] = nil
	for i, p := range q {
		if err := c.Token.Transfer(p.Payee, p.Amount); err != nil {
			// Entries before i are paid and stay paid; only the unpaid
			// tail is re-queued, so a retry resumes where this attempt
			// stopped. The liquidity check above means this path is
			// reachable only when the token itself misbehaves.
			e.queues[code] = q[i:]
			e.updateQueueGauges(code)
			return fmt.Errorf("%w: pay queued %s %s to %s (entry %d): %v",
				ErrExternalCall, p.Amount, code, p.Payee, i, err)
		}
	}
	e.emitLocked(event.TypePendingWithdrawalsProcessed, &code, event.PendingWithdrawalsProcessed{
		Currency: code,
		Count:    len(q),
		Total:    total.String(),
	})
	e.updateQueueGauges(code)
	return nil
}
