package fund

import (
	"fmt"

	"FundLedger/internal/token"
)

// Currency is one supported asset. Currencies are never removed once
// registered; deposits are gated by the Accepted flag instead.
type Currency struct {
	Code     string
	Decimals uint8
	Token    token.Token

	// Venues lists the venue indices this currency may be deployed to,
	// in a fixed order. Balance aggregation iterates this list.
	Venues []int

	Accepted bool
}

// registry holds the currency set in registration order. Iteration order is
// deterministic so USD aggregation and migration sweep currencies the same
// way every time.
type registry struct {
	codes  []string
	byCode map[string]*Currency
}

func newRegistry() *registry {
	return &registry{
		byCode: make(map[string]*Currency),
	}
}

func (r *registry) add(c *Currency) error {
	if _, ok := r.byCode[c.Code]; ok {
		return fmt.Errorf("%w: %s", ErrCurrencyExists, c.Code)
	}
	r.codes = append(r.codes, c.Code)
	r.byCode[c.Code] = c
	return nil
}

func (r *registry) get(code string) (*Currency, bool) {
	c, ok := r.byCode[code]
	return c, ok
}

func (r *registry) list() []string {
	out := make([]string, len(r.codes))
	copy(out, r.codes)
	return out
}
