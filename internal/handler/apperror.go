package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrForbiddenAccess    = &AppError{http.StatusForbidden, "FORBIDDEN", "Insufficient permissions"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrEmailTaken           = &AppError{http.StatusConflict, "EMAIL_TAKEN", "Email already registered"}
	ErrInsufficientFunds    = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrAccountSuspended     = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_SUSPENDED", "Account is suspended"}
	ErrAccountClosed        = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_CLOSED", "Account is closed"}
	ErrInvalidAmount        = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrAmountBelowMinimum   = &AppError{http.StatusUnprocessableEntity, "AMOUNT_BELOW_MINIMUM", "Amount is below the configured minimum"}
	ErrInvalidPixKey        = &AppError{http.StatusBadRequest, "INVALID_PIX_KEY", "PIX key does not match key type"}
	ErrRolloverNotMet       = &AppError{http.StatusUnprocessableEntity, "ROLLOVER_NOT_MET", "Rollover requirement not met"}
	ErrWithdrawalNotPending = &AppError{http.StatusConflict, "WITHDRAWAL_NOT_PENDING", "Withdrawal is not pending"}
	ErrWithdrawalTerminal   = &AppError{http.StatusConflict, "WITHDRAWAL_FINALIZED", "Withdrawal already finalized"}
	ErrNothingToClaim       = &AppError{http.StatusUnprocessableEntity, "NOTHING_TO_CLAIM", "No commission balance to claim"}
	ErrReferralCodeNotFound = &AppError{http.StatusUnprocessableEntity, "REFERRAL_CODE_NOT_FOUND", "Referral code not found"}
	ErrVersionConflict      = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
