package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type discriminator for fund notification payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeDepositReceived
	TypeWithdrawalCompleted
	TypeWithdrawalQueued
	TypePendingWithdrawalsProcessed
	TypeFeesDeposited
	TypeFeesWithdrawn
	TypeFeeRateChanged
	TypeCurrencyExchanged
	TypeVenueTransfer
	TypeEngineUpgraded
)

// Envelope wraps every notification the engine emits. Sequence is the
// engine's own monotonic operation counter; EventID is the stable dedup key
// for downstream consumers.
type Envelope struct {
	Sequence  int64     `json:"sequence"`
	EventID   uuid.UUID `json:"event_id"`
	EventType Type      `json:"event_type"`
	Currency  *string   `json:"currency,omitempty"` // nil for fund-global events
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

func (t Type) String() string {
	switch t {
	case TypeDepositReceived:
		return "DepositReceived"
	case TypeWithdrawalCompleted:
		return "WithdrawalCompleted"
	case TypeWithdrawalQueued:
		return "WithdrawalQueued"
	case TypePendingWithdrawalsProcessed:
		return "PendingWithdrawalsProcessed"
	case TypeFeesDeposited:
		return "FeesDeposited"
	case TypeFeesWithdrawn:
		return "FeesWithdrawn"
	case TypeFeeRateChanged:
		return "FeeRateChanged"
	case TypeCurrencyExchanged:
		return "CurrencyExchanged"
	case TypeVenueTransfer:
		return "VenueTransfer"
	case TypeEngineUpgraded:
		return "EngineUpgraded"
	default:
		return "Unknown"
	}
}

// MarshalJSON emits the type name; the numeric value is an internal detail.
func (t Type) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses a type name back into its discriminator.
func (t *Type) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)
	for v := TypeDepositReceived; v <= TypeEngineUpgraded; v++ {
		if v.String() == name {
			*t = v
			return nil
		}
	}
	*t = TypeUnknown
	return nil
}
