package exchange_test

import (
	"FundLedger/internal/exchange"
	"math/big"
	"testing"
)

func order(takerAmount, makerAmount int64) exchange.LimitOrder {
	return exchange.LimitOrder{
		MakerAmount: big.NewInt(makerAmount),
		TakerAmount: big.NewInt(takerAmount),
	}
}

func TestSortedByPrice_Ascending(t *testing.T) {
	// Prices 0.5, 1.0, 2.0 input per output.
	orders := []exchange.LimitOrder{order(1, 2), order(1, 1), order(2, 1)}
	if !exchange.SortedByPrice(orders) {
		t.Error("ascending orders should be sorted")
	}
}

func TestSortedByPrice_EqualPricesAllowed(t *testing.T) {
	// 2/4 and 1/2 are the same price expressed differently.
	orders := []exchange.LimitOrder{order(2, 4), order(1, 2)}
	if !exchange.SortedByPrice(orders) {
		t.Error("equal prices should count as sorted")
	}
}

func TestSortedByPrice_Descending(t *testing.T) {
	orders := []exchange.LimitOrder{order(2, 1), order(1, 1)}
	if exchange.SortedByPrice(orders) {
		t.Error("descending orders should not be sorted")
	}
}

func TestSortedByPrice_SingleAndEmpty(t *testing.T) {
	if !exchange.SortedByPrice(nil) {
		t.Error("empty order set is trivially sorted")
	}
	if !exchange.SortedByPrice([]exchange.LimitOrder{order(1, 1)}) {
		t.Error("single order is trivially sorted")
	}
}
