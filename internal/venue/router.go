package venue

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidVenueIndex is returned for a venue index outside the
	// registered adapter set.
	ErrInvalidVenueIndex = errors.New("invalid venue index")

	// ErrVenueOperationFailed wraps any failure reported by a venue adapter.
	// Adapter failures always abort the enclosing operation.
	ErrVenueOperationFailed = errors.New("venue operation failed")
)

// Router dispatches capital movements to venue adapters by index and
// aggregates balances across the venues a currency is eligible for.
// The adapter set is fixed at construction; indices are globally ordered.
type Router struct {
	adapters []Adapter
	log      zerolog.Logger
}

func NewRouter(adapters []Adapter, log zerolog.Logger) *Router {
	return &Router{
		adapters: adapters,
		log:      log,
	}
}

// VenueCount returns the number of registered adapters.
func (r *Router) VenueCount() int {
	return len(r.adapters)
}

// ValidIndex reports whether index addresses a registered adapter.
func (r *Router) ValidIndex(index int) bool {
	return index >= 0 && index < len(r.adapters)
}

func (r *Router) adapter(index int) (Adapter, error) {
	if !r.ValidIndex(index) {
		return nil, fmt.Errorf("%w: %d (have %d venues)", ErrInvalidVenueIndex, index, len(r.adapters))
	}
	return r.adapters[index], nil
}

// Balance sums the asset's balance across the given venue indices, in order.
// Adapter balance calls are non-pure; a failure aborts the whole aggregation.
func (r *Router) Balance(asset string, indices []int) (*big.Int, error) {
	total := new(big.Int)
	for _, idx := range indices {
		a, err := r.adapter(idx)
		if err != nil {
			return nil, err
		}
		bal, err := a.Balance(asset)
		if err != nil {
			return nil, fmt.Errorf("%w: balance venue=%d asset=%s: %v", ErrVenueOperationFailed, idx, asset, err)
		}
		total.Add(total, bal)
	}
	return total, nil
}

// Approve authorizes the venue at index to pull up to amount of asset.
func (r *Router) Approve(index int, asset string, amount *big.Int) error {
	a, err := r.adapter(index)
	if err != nil {
		return err
	}
	if err := a.Approve(asset, amount); err != nil {
		return fmt.Errorf("%w: approve venue=%d asset=%s: %v", ErrVenueOperationFailed, index, asset, err)
	}
	return nil
}

// Deposit moves amount of asset from the engine's custody into the venue.
func (r *Router) Deposit(index int, asset string, amount *big.Int) error {
	a, err := r.adapter(index)
	if err != nil {
		return err
	}
	if err := a.Deposit(asset, amount); err != nil {
		return fmt.Errorf("%w: deposit venue=%d asset=%s: %v", ErrVenueOperationFailed, index, asset, err)
	}
	r.log.Debug().Int("venue", index).Str("asset", asset).Str("amount", amount.String()).Msg("venue deposit")
	return nil
}

// Withdraw pulls amount of asset out of the venue back into custody.
func (r *Router) Withdraw(index int, asset string, amount *big.Int) error {
	a, err := r.adapter(index)
	if err != nil {
		return err
	}
	if err := a.Withdraw(asset, amount); err != nil {
		return fmt.Errorf("%w: withdraw venue=%d asset=%s: %v", ErrVenueOperationFailed, index, asset, err)
	}
	r.log.Debug().Int("venue", index).Str("asset", asset).Str("amount", amount.String()).Msg("venue withdraw")
	return nil
}

// WithdrawAll pulls the venue's entire position in asset back into custody.
func (r *Router) WithdrawAll(index int, asset string) error {
	a, err := r.adapter(index)
	if err != nil {
		return err
	}
	if err := a.WithdrawAll(asset); err != nil {
		return fmt.Errorf("%w: withdraw-all venue=%d asset=%s: %v", ErrVenueOperationFailed, index, asset, err)
	}
	r.log.Debug().Int("venue", index).Str("asset", asset).Msg("venue withdraw-all")
	return nil
}
