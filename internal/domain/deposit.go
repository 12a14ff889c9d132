package domain

import (
	"time"

	"github.com/google/uuid"
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusCompleted DepositStatus = "COMPLETED"
	DepositStatusFailed    DepositStatus = "FAILED"
)

// Deposit is a PIX charge. Identifier is the external correlation key the
// gateway echoes back in its webhook; the PENDING -> COMPLETED transition
// is status-guarded so redelivered webhooks credit at most once.
type Deposit struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Identifier  string
	Amount      int64
	Status      DepositStatus
	GatewayTxID *string
	PixCode     *string
	CreatedAt   time.Time
	PaidAt      *time.Time
}
