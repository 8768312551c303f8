package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventRecord is a persisted operation-log entry for API queries. Payload
// is passed through verbatim; its shape depends on the event type.
type EventRecord struct {
	Sequence  int64           `json:"sequence"`
	EventID   uuid.UUID       `json:"event_id"`
	EventType string          `json:"event_type"`
	Currency  *string         `json:"currency,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventFilter narrows a ListEvents query. Zero values mean "no filter".
type EventFilter struct {
	EventType    string
	Currency     string
	FromSequence int64
	Limit        int
}

// SnapshotInfo describes the latest stored engine snapshot.
type SnapshotInfo struct {
	SnapshotID    uuid.UUID `json:"snapshot_id"`
	Sequence      int64     `json:"sequence"`
	FormatVersion int32     `json:"format_version"`
	SizeBytes     int       `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}
