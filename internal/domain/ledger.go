package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntryTypeDeposit            EntryType = "DEPOSIT"
	EntryTypeWithdrawalRequest  EntryType = "WITHDRAWAL_REQUEST"
	EntryTypeWithdrawalRefund   EntryType = "WITHDRAWAL_REFUND"
	EntryTypeWithdrawalComplete EntryType = "WITHDRAWAL_COMPLETE"
	EntryTypeCommissionClaim    EntryType = "COMMISSION_CLAIM"
)

// LedgerEntry is an immutable, append-only fact. Amount is signed; the
// invariant BalanceAfter = BalanceBefore + Amount is also enforced by a
// check constraint in the schema. WITHDRAWAL_COMPLETE entries carry a zero
// amount: the debit already happened at request time and the entry only
// marks the payout confirmation.
type LedgerEntry struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	EntryType     EntryType
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	RefID         *uuid.UUID
	CreatedAt     time.Time
}
