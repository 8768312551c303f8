package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"FundLedger/internal/event"
	"FundLedger/internal/observability"
)

// Worker drains the persist channel and batch-writes the operation log to
// Postgres. The engine sends with a BLOCKING send, so if this worker falls
// behind, operations stall rather than lose a log entry.
type Worker struct {
	writer       *EventLogWriter
	inputChan    <-chan event.Envelope
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan event.Envelope,
	batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// Run starts the worker loop. It batches incoming envelopes and flushes
// either when the batch is full or the flush timeout expires. Blocks until
// ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case env, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			row, err := toRow(env)
			if err != nil {
				w.log.Error().Err(err).Int64("sequence", env.Sequence).Msg("drop unmarshalable event")
				continue
			}
			batch = append(batch, row)

			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

func toRow(env event.Envelope) (EventRow, error) {
	payload, err := MarshalEventPayload(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload seq=%d: %w", env.Sequence, err)
	}
	return EventRow{
		Sequence:  env.Sequence,
		EventID:   env.EventID,
		EventType: env.EventType.String(),
		Currency:  env.Currency,
		Payload:   payload,
		Timestamp: env.Timestamp,
	}, nil
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops a batch: it retries until the write succeeds or the context
// is cancelled, at which point one final flush runs with a background
// context so shutdown does not lose the tail.
func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("events", len(batch)).Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("flush").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []EventRow) error {
	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, batch); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchSize.Observe(float64(len(batch)))
		w.metrics.PersistEventsWritten.Add(float64(len(batch)))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Sequence))
	}
	return nil
}

// Writer returns the underlying writer for recovery queries.
func (w *Worker) Writer() *EventLogWriter {
	return w.writer
}
