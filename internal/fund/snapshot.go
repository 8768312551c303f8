package fund

import (
	"fmt"
	"math/big"
)

// StateSnapshot is the engine's full persisted state, JSON-serializable for
// the snapshot store. Amounts are decimal strings; registry membership and
// collaborator wiring are configuration, not state, so only per-currency
// flags and queues appear here.
type StateSnapshot struct {
	Sequence int64 `json:"sequence"`

	Enabled     bool   `json:"enabled"`
	BalanceCap  string `json:"balance_cap"`
	Operator    string `json:"operator"`
	Beneficiary string `json:"beneficiary"`
	Predecessor string `json:"predecessor"`

	NetDeposits string `json:"net_deposits"`

	FeeRate                 string `json:"fee_rate"`
	RawInterestAtLastRate   string `json:"raw_interest_at_last_rate"`
	FeesGeneratedAtLastRate string `json:"fees_generated_at_last_rate"`
	FeesClaimed             string `json:"fees_claimed"`

	Currencies []CurrencySnapshot `json:"currencies"`
}

// CurrencySnapshot carries one currency's mutable state.
type CurrencySnapshot struct {
	Code     string                 `json:"code"`
	Accepted bool                   `json:"accepted"`
	Queue    []PendingEntrySnapshot `json:"queue,omitempty"`
}

// PendingEntrySnapshot is a serializable queue entry.
type PendingEntrySnapshot struct {
	Payee  string `json:"payee"`
	Amount string `json:"amount"`
}

// Snapshot captures the engine's current state.
func (e *Engine) Snapshot() StateSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := StateSnapshot{
		Sequence:                e.sequence,
		Enabled:                 e.enabled,
		BalanceCap:              e.balanceCap.String(),
		Operator:                e.operator,
		Beneficiary:             e.beneficiary,
		Predecessor:             e.predecessor,
		NetDeposits:             e.netDeposits.String(),
		FeeRate:                 e.fees.Rate.String(),
		RawInterestAtLastRate:   e.fees.RawInterestAtLastRate.String(),
		FeesGeneratedAtLastRate: e.fees.FeesGeneratedAtLastRate.String(),
		FeesClaimed:             e.fees.FeesClaimed.String(),
	}
	for _, code := range e.registry.list() {
		c, _ := e.registry.get(code)
		cs := CurrencySnapshot{Code: code, Accepted: c.Accepted}
		for _, p := range e.queues[code] {
			cs.Queue = append(cs.Queue, PendingEntrySnapshot{
				Payee:  p.Payee,
				Amount: p.Amount.String(),
			})
		}
		snap.Currencies = append(snap.Currencies, cs)
	}
	return snap
}

// RestoreState replaces the engine's mutable state from a snapshot. The
// currency registry and collaborators must already be wired the same way
// they were when the snapshot was taken; unknown currencies in the snapshot
// are an error.
func (e *Engine) RestoreState(snap StateSnapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cap, err := parseAmount(snap.BalanceCap, "balance_cap")
	if err != nil {
		return err
	}
	netDeposits, err := parseAmount(snap.NetDeposits, "net_deposits")
	if err != nil {
		return err
	}
	rate, err := parseAmount(snap.FeeRate, "fee_rate")
	if err != nil {
		return err
	}
	rawAt, err := parseAmount(snap.RawInterestAtLastRate, "raw_interest_at_last_rate")
	if err != nil {
		return err
	}
	genAt, err := parseAmount(snap.FeesGeneratedAtLastRate, "fees_generated_at_last_rate")
	if err != nil {
		return err
	}
	claimed, err := parseAmount(snap.FeesClaimed, "fees_claimed")
	if err != nil {
		return err
	}

	queues := make(map[string][]PendingWithdrawal)
	for _, cs := range snap.Currencies {
		c, ok := e.registry.get(cs.Code)
		if !ok {
			return fmt.Errorf("%w: snapshot currency %s", ErrUnknownCurrency, cs.Code)
		}
		c.Accepted = cs.Accepted
		for _, p := range cs.Queue {
			amt, err := parseAmount(p.Amount, "queue amount")
			if err != nil {
				return err
			}
			queues[cs.Code] = append(queues[cs.Code], PendingWithdrawal{Payee: p.Payee, Amount: amt})
		}
	}

	e.sequence = snap.Sequence
	e.enabled = snap.Enabled
	e.balanceCap = cap
	e.operator = snap.Operator
	e.beneficiary = snap.Beneficiary
	e.predecessor = snap.Predecessor
	e.netDeposits = netDeposits
	e.fees = &FeeState{
		Rate:                    rate,
		RawInterestAtLastRate:   rawAt,
		FeesGeneratedAtLastRate: genAt,
		FeesClaimed:             claimed,
	}
	e.queues = queues
	for code := range queues {
		e.updateQueueGauges(code)
	}
	return nil
}

func parseAmount(s, field string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("snapshot field %s: bad amount %q", field, s)
	}
	return v, nil
}
