package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrAccountSuspended      = errors.New("account suspended")
	ErrAccountClosed         = errors.New("account closed")
	ErrEmailTaken            = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrAmountBelowMinimum    = errors.New("amount below configured minimum")
	ErrInvalidPixKey         = errors.New("pix key does not match key type")
	ErrRolloverNotMet        = errors.New("rollover requirement not met")
	ErrDepositCompleted      = errors.New("deposit already completed")
	ErrDepositNotPending     = errors.New("deposit not pending")
	ErrWithdrawalNotPending  = errors.New("withdrawal not pending")
	ErrWithdrawalTerminal    = errors.New("withdrawal already in terminal state")
	ErrNothingToClaim        = errors.New("no commission balance to claim")
	ErrReferralCodeNotFound  = errors.New("referral code not found")
	ErrVersionConflict       = errors.New("optimistic lock conflict")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrDuplicateIdempotency  = errors.New("duplicate idempotency key")
	ErrForbidden             = errors.New("forbidden")
)
