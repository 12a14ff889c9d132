package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/auth"
	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/service/withdrawal"
)

type withdrawalService interface {
	Create(ctx context.Context, req withdrawal.CreateRequest) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, withdrawalID, accountID uuid.UUID) (*domain.Withdrawal, error)
	List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, error)
}

type WithdrawalHandler struct {
	withdrawals withdrawalService
}

func NewWithdrawalHandler(withdrawals withdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

type createWithdrawalRequest struct {
	Amount     int64  `json:"amount"`
	PixKey     string `json:"pix_key"`
	PixKeyType string `json:"pix_key_type"`
}

func (r createWithdrawalRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than zero"})
	}
	if r.PixKey == "" {
		errs = append(errs, FieldError{Field: "pix_key", Message: "required"})
	}
	if !domain.PixKeyType(r.PixKeyType).IsValid() {
		errs = append(errs, FieldError{Field: "pix_key_type", Message: "must be CPF, EMAIL, PHONE or RANDOM"})
	}
	return errs
}

type withdrawalDTO struct {
	ID            uuid.UUID  `json:"id"`
	Amount        int64      `json:"amount"`
	PixKey        string     `json:"pix_key"`
	PixKeyType    string     `json:"pix_key_type"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toWithdrawalDTO(w *domain.Withdrawal) withdrawalDTO {
	return withdrawalDTO{
		ID:            w.ID,
		Amount:        w.Amount,
		PixKey:        w.PixKey,
		PixKeyType:    string(w.PixKeyType),
		Status:        string(w.Status),
		FailureReason: w.FailureReason,
		CreatedAt:     w.CreatedAt,
		CompletedAt:   w.CompletedAt,
	}
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wd, err := h.withdrawals.Create(r.Context(), withdrawal.CreateRequest{
		AccountID:  accountID,
		Amount:     req.Amount,
		PixKey:     req.PixKey,
		PixKeyType: domain.PixKeyType(req.PixKeyType),
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toWithdrawalDTO(wd))
}

func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	withdrawalID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	wd, err := h.withdrawals.Cancel(r.Context(), withdrawalID, accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wd))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	items, err := h.withdrawals.List(r.Context(), accountID, 50, 0)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]withdrawalDTO, 0, len(items))
	for i := range items {
		dtos = append(dtos, toWithdrawalDTO(&items[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}
