package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Commission records one affiliate credit for one confirmed deposit at one
// upline level. The (AffiliateID, DepositID, Level) triple is unique in the
// schema; that key, not an existence query, is what makes crediting safe
// under concurrent duplicate webhook delivery. A zero-rate level still gets
// a record with CommissionEarned = 0 so the chain stays auditable.
type Commission struct {
	ID                uuid.UUID
	AffiliateID       uuid.UUID
	ReferredAccountID uuid.UUID
	DepositID         uuid.UUID
	Level             int
	DepositAmount     int64
	CommissionRate    decimal.Decimal
	CommissionEarned  int64
	CreatedAt         time.Time
}
