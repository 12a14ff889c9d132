package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PostbackStatus string

const (
	PostbackStatusPending    PostbackStatus = "pending"
	PostbackStatusDispatched PostbackStatus = "dispatched"
	PostbackStatusFailed     PostbackStatus = "failed"
)

type PostbackType string

const (
	PostbackTypeFTD     PostbackType = "ftd"
	PostbackTypeDeposit PostbackType = "deposit"
)

// PostbackEvent is a fire-and-forget marketing notification. It is written
// after the deposit transaction commits and dispatched by a background
// poller; a dispatch failure can never touch ledger state.
type PostbackEvent struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	EventType   PostbackType
	Payload     json.RawMessage
	Status      PostbackStatus
	Attempts    int
	LastAttempt *time.Time
	CreatedAt   time.Time
}
