package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookSource string

const (
	WebhookSourceDeposit WebhookSource = "deposit"
	WebhookSourcePayout  WebhookSource = "payout"
)

// WebhookEvent is the audit trail of every inbound gateway notification,
// stored with the raw payload before any processing. Idempotency of the
// processing itself lives in the deposit/withdrawal status guards, not here.
type WebhookEvent struct {
	ID        uuid.UUID
	Source    WebhookSource
	Payload   json.RawMessage
	Outcome   *string
	CreatedAt time.Time
}
