package observability

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func usd(n int64) *big.Int {
	v := big.NewInt(n)
	return v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestSetFundGauges(t *testing.T) {
	m := NewMetrics()

	m.SetFundGauges(usd(90), usd(100), usd(80), usd(10), 42)

	if got := testutil.ToFloat64(m.FundBalanceUsd); got != 90 {
		t.Errorf("fund balance gauge = %v, want 90", got)
	}
	if got := testutil.ToFloat64(m.RawFundBalanceUsd); got != 100 {
		t.Errorf("raw fund balance gauge = %v, want 100", got)
	}
	if got := testutil.ToFloat64(m.NetDepositsUsd); got != 80 {
		t.Errorf("net deposits gauge = %v, want 80", got)
	}
	if got := testutil.ToFloat64(m.UnclaimedFeesUsd); got != 10 {
		t.Errorf("unclaimed fees gauge = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.Sequence); got != 42 {
		t.Errorf("sequence gauge = %v, want 42", got)
	}

	// Nil amounts zero the gauge instead of panicking.
	m.SetFundGauges(nil, nil, nil, nil, 0)
	if got := testutil.ToFloat64(m.FundBalanceUsd); got != 0 {
		t.Errorf("fund balance gauge after nil = %v, want 0", got)
	}

	m.SetChannelMetrics("persist", 512, 1024)
	if got := testutil.ToFloat64(m.ChannelUtilization.WithLabelValues("persist")); got != 0.5 {
		t.Errorf("channel utilization = %v, want 0.5", got)
	}
}
