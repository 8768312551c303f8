package observability

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fund ledger. Register once
// per process; components that run without metrics (tests, tools) pass nil
// and every call site guards on that.
type Metrics struct {
	// Engine operations
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	Sequence    prometheus.Gauge

	// Fund-level gauges, refreshed by the balance poller
	FundBalanceUsd    prometheus.Gauge
	RawFundBalanceUsd prometheus.Gauge
	NetDepositsUsd    prometheus.Gauge
	UnclaimedFeesUsd  prometheus.Gauge

	// Withdrawal queues
	QueueLength *prometheus.GaugeVec
	QueuedTotal *prometheus.GaugeVec

	// Channels & backpressure
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	PublishDrops       prometheus.Counter

	// Persistence
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// Snapshots
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge

	// Query API
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00001, 0.00005, 0.0001, 0.00025, 0.0005,
		0.001, 0.0025, 0.005, 0.01, 0.05, 0.1,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_ops_applied_total",
			Help: "State-changing operations committed",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_ops_rejected_total",
			Help: "Operations rejected before committing",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fund_op_duration_seconds",
			Help:    "Operation latency under the engine lock",
			Buckets: opBuckets,
		}, []string{"op"}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_sequence",
			Help: "Current operation-log sequence",
		}),

		FundBalanceUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_balance_usd",
			Help: "USD value backing outstanding shares",
		}),

		RawFundBalanceUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_raw_balance_usd",
			Help: "Raw fund balance before unclaimed fees",
		}),

		NetDepositsUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_net_deposits_usd",
			Help: "Signed running total of USD deposits minus withdrawals",
		}),

		UnclaimedFeesUsd: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_unclaimed_fees_usd",
			Help: "Generated but unclaimed interest fees",
		}),

		QueueLength: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fund_pending_withdrawals",
			Help: "Queued withdrawal entries",
		}, []string{"currency"}),

		QueuedTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fund_pending_withdrawal_total",
			Help: "Sum of queued withdrawal amounts (native units)",
		}, []string{"currency"}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fund_channel_size",
			Help: "Current channel occupancy",
		}, []string{"channel"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fund_channel_capacity",
			Help: "Channel capacity",
		}, []string{"channel"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fund_channel_utilization",
			Help: "Occupancy / capacity",
		}, []string{"channel"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fund_publish_drops_total",
			Help: "Outbound events dropped because the publish channel was full",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fund_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fund_persist_batch_size",
			Help:    "Events per write batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fund_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fund_snapshot_taken_total",
			Help: "State snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fund_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fund_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fund_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fund_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetFundGauges refreshes the fund-level gauges from one coherent engine
// reading. Called by the balance poller.
func (m *Metrics) SetFundGauges(fundUsd, rawUsd, netDeposits, unclaimed *big.Int, sequence int64) {
	m.FundBalanceUsd.Set(usdToFloat(fundUsd))
	m.RawFundBalanceUsd.Set(usdToFloat(rawUsd))
	m.NetDepositsUsd.Set(usdToFloat(netDeposits))
	m.UnclaimedFeesUsd.Set(usdToFloat(unclaimed))
	m.Sequence.Set(float64(sequence))
}

// usdToFloat converts an 18-decimal USD amount to whole dollars for gauge
// export. Lossy by nature; exact amounts stay in the API, not in Prometheus.
func usdToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(1e18)).Float64()
	return f
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
