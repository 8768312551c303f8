package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FundLedger/internal/observability"
)

const defaultLimit = 100
const maxLimit = 1000

// Service provides read-only access to the persisted operation log and
// snapshot metadata. Live balances come from the engine itself; these
// queries serve audit and history reads.
type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

// ListEvents returns operation-log entries matching the filter, in
// ascending sequence order.
func (s *Service) ListEvents(ctx context.Context, f EventFilter) ([]EventRecord, error) {
	defer s.observe("list_events", time.Now())

	query := `
		SELECT sequence, event_id, event_type, currency, payload, timestamp
		FROM fund_log.events
		WHERE sequence >= $1
	`
	args := []interface{}{f.FromSequence}
	argIdx := 2

	if f.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, f.EventType)
		argIdx++
	}
	if f.Currency != "" {
		query += fmt.Sprintf(" AND currency = $%d", argIdx)
		args = append(args, f.Currency)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query += fmt.Sprintf(" ORDER BY sequence ASC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.EventType, &e.Currency, &e.Payload, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns a single entry by sequence, or nil when absent.
func (s *Service) GetEvent(ctx context.Context, sequence int64) (*EventRecord, error) {
	defer s.observe("get_event", time.Now())

	var e EventRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence, event_id, event_type, currency, payload, timestamp
		FROM fund_log.events
		WHERE sequence = $1
	`, sequence).Scan(
		&e.Sequence, &e.EventID, &e.EventType, &e.Currency, &e.Payload, &e.Timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LatestSnapshot returns metadata for the most recent engine snapshot, or
// nil when none has been taken.
func (s *Service) LatestSnapshot(ctx context.Context) (*SnapshotInfo, error) {
	defer s.observe("latest_snapshot", time.Now())

	var info SnapshotInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, sequence, format_version, size_bytes, created_at
		FROM fund_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(
		&info.SnapshotID, &info.Sequence, &info.FormatVersion, &info.SizeBytes, &info.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Service) observe(endpoint string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
