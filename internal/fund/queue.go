package fund

import (
	"fmt"
	"math/big"
	"time"
)

// PendingWithdrawal is a deferred payout: the shares were already burned and
// the accounting committed when it was enqueued, only the token transfer is
// outstanding.
type PendingWithdrawal struct {
	Payee  string
	Amount *big.Int
}

func (e *Engine) queuedTotalLocked(code string) *big.Int {
	total := new(big.Int)
	for _, p := range e.queues[code] {
		total.Add(total, p.Amount)
	}
	return total
}

// PendingWithdrawals returns a copy of one currency's queue in FIFO order.
func (e *Engine) PendingWithdrawals(code string) ([]PendingWithdrawal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.registry.get(code); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	q := e.queues[code]
	out := make([]PendingWithdrawal, len(q))
	for i, p := range q {
		out[i] = PendingWithdrawal{Payee: p.Payee, Amount: new(big.Int).Set(p.Amount)}
	}
	return out, nil
}

// QueuedTotal returns the sum of one currency's pending withdrawal amounts.
func (e *Engine) QueuedTotal(code string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.registry.get(code); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return e.queuedTotalLocked(code), nil
}

// ProcessPendingWithdrawals drains one currency's pending queue in FIFO
// order. The drain is all-or-nothing: unless on-hand custody covers the
// whole queue, nothing is paid. Any caller may trigger it; an empty queue
// is a no-op.
func (e *Engine) ProcessPendingWithdrawals(code string) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.queues[code])
	if err := e.processPendingLocked(code); err != nil {
		e.reject("process_withdrawals", err)
		return err
	}
	if n > 0 {
		e.observe("process_withdrawals", start)
		e.log.Info().Str("currency", code).Int("entries", n).
			Msg("pending withdrawals processed")
	}
	return nil
}
