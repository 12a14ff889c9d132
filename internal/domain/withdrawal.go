package domain

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved  WithdrawalStatus = "APPROVED"
	WithdrawalStatusCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalStatusRejected  WithdrawalStatus = "REJECTED"
	WithdrawalStatusFailed    WithdrawalStatus = "FAILED"
	WithdrawalStatusCancelled WithdrawalStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed. APPROVED is
// not terminal: the payout webhook still decides COMPLETED or FAILED.
func (s WithdrawalStatus) IsTerminal() bool {
	switch s {
	case WithdrawalStatusCompleted, WithdrawalStatusRejected,
		WithdrawalStatusFailed, WithdrawalStatusCancelled:
		return true
	}
	return false
}

type PixKeyType string

const (
	PixKeyTypeCPF    PixKeyType = "CPF"
	PixKeyTypeEmail  PixKeyType = "EMAIL"
	PixKeyTypePhone  PixKeyType = "PHONE"
	PixKeyTypeRandom PixKeyType = "RANDOM"
)

func (t PixKeyType) IsValid() bool {
	switch t {
	case PixKeyTypeCPF, PixKeyTypeEmail, PixKeyTypePhone, PixKeyTypeRandom:
		return true
	}
	return false
}

// Withdrawal debits the account at request time. OwnerName/OwnerDocument
// snapshot the payout destination identity as it was when the user asked,
// so later profile edits cannot redirect an in-flight payout.
type Withdrawal struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	Amount            int64
	PixKey            string
	PixKeyType        PixKeyType
	Status            WithdrawalStatus
	OwnerName         string
	OwnerDocument     string
	GatewayTransferID *string
	GatewayStatus     *string
	FailureReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}
