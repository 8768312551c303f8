package exchange

import (
	"errors"
	"math/big"
)

var (
	// ErrOrdersNotSorted is returned when a fill is attempted with orders
	// not in ascending price order. The exchange does not sort; the caller
	// must.
	ErrOrdersNotSorted = errors.New("orders not sorted by ascending price")

	// ErrOrderAssetMismatch is returned when an order's maker or taker
	// asset does not match the requested conversion pair.
	ErrOrderAssetMismatch = errors.New("order assets do not match requested pair")
)

// LimitOrder is one maker order on the external exchange. Price is
// TakerAmount/MakerAmount: input units paid per output unit received.
type LimitOrder struct {
	Maker       string
	MakerAsset  string
	TakerAsset  string
	MakerAmount *big.Int // output offered by the maker
	TakerAmount *big.Int // input demanded from the taker
}

// Exchange is the external order-matching venue used to convert one currency
// into another. Orders must already be sorted by ascending price.
// It consumes input up to maxInput, stopping early once the marginal price
// would yield less than minMarginalOutput output per unit of input.
type Exchange interface {
	FillOrdersUpTo(
		orders []LimitOrder,
		signatures [][]byte,
		maxInput *big.Int,
		minMarginalOutput *big.Int,
	) (inputConsumed, protocolFee, outputReceived *big.Int, err error)
}

// SortedByPrice reports whether orders are in ascending price order.
// Prices are compared by cross-multiplication, never floating point:
// t1/m1 <= t2/m2  <=>  t1*m2 <= t2*m1.
func SortedByPrice(orders []LimitOrder) bool {
	for i := 1; i < len(orders); i++ {
		prev, cur := orders[i-1], orders[i]
		lhs := new(big.Int).Mul(prev.TakerAmount, cur.MakerAmount)
		rhs := new(big.Int).Mul(cur.TakerAmount, prev.MakerAmount)
		if lhs.Cmp(rhs) > 0 {
			return false
		}
	}
	return true
}
