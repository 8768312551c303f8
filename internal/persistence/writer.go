package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventLogWriter writes operation-log events to Postgres using multi-row
// INSERT. Writes are idempotent on sequence, so a retried batch never
// duplicates rows.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in fund_log.events.
type EventRow struct {
	Sequence  int64
	EventID   uuid.UUID
	EventType string
	Currency  *string
	Payload   []byte // JSON-encoded event payload
	Timestamp time.Time
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events inside the given transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO fund_log.events
		(sequence, event_id, event_type, currency, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*6)

	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			e.Sequence, e.EventID, e.EventType, e.Currency, e.Payload, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted sequence, or 0 on an empty log.
func (w *EventLogWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM fund_log.events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last sequence: %w", err)
	}
	return seq.Int64, nil
}

// MarshalEventPayload serializes an event payload to JSON for storage.
func MarshalEventPayload(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
