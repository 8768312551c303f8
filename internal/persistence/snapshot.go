package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FundLedger/internal/fund"
)

// SnapshotManager persists and loads engine state snapshots for recovery.
// On restart the engine restores the latest snapshot; the operation log
// remains the audit trail.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists an engine snapshot to Postgres and returns the
// encoded size in bytes.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap fund.StateSnapshot) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded fund.StateSnapshot

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO fund_log.snapshots
			(snapshot_id, sequence, data, format_version, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence) DO NOTHING
	`, snapshotID, snap.Sequence, data, formatVersion, len(data), time.Now())
	return len(data), err
}

// LoadLatestSnapshot loads the most recent snapshot, or nil on a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*fund.StateSnapshot, error) {
	var data []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM fund_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap fund.StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LoadEventsFrom loads persisted events from a given sequence, for audit
// reads and reconciliation tooling.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, currency, payload, timestamp
		FROM fund_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.EventType, &e.Currency, &e.Payload, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
