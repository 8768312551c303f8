// Package notify publishes committed fund operations to NATS JetStream for
// downstream consumers (reporting, reconciliation, alerting). Publishing is
// best-effort: the Postgres operation log is the source of truth, and a
// consumer that missed a message can query it directly.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"FundLedger/internal/event"
)

const streamName = "FUND_LEDGER_EVENTS"

// Publisher drains the publish channel and sends each envelope to NATS.
// Subjects follow the pattern: fund.ledger.events.{event_type}[.{currency}]
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Envelope
	log       zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan event.Envelope, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the
// channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				// Non-fatal: the operation log already has the event.
				p.log.Warn().Err(err).Int64("sequence", env.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("fund.ledger.events.%s", env.EventType)
	if env.Currency != nil {
		subject = fmt.Sprintf("%s.%s", subject, *env.Currency)
	}

	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"fund.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}

// Connect dials NATS with unlimited reconnects and opens a JetStream
// context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
