package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/auth"
	"github.com/raspaplay/wallet-api/internal/domain"
)

type depositCreator interface {
	Create(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.Deposit, error)
}

type DepositHandler struct {
	deposits depositCreator
}

func NewDepositHandler(deposits depositCreator) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

type createDepositRequest struct {
	Amount int64 `json:"amount"`
}

type depositDTO struct {
	ID         uuid.UUID  `json:"id"`
	Identifier string     `json:"identifier"`
	Amount     int64      `json:"amount"`
	Status     string     `json:"status"`
	PixCode    *string    `json:"pix_code,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

func (h *DepositHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	d, err := h.deposits.Create(r.Context(), accountID, req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, depositDTO{
		ID:         d.ID,
		Identifier: d.Identifier,
		Amount:     d.Amount,
		Status:     string(d.Status),
		PixCode:    d.PixCode,
		CreatedAt:  d.CreatedAt,
		PaidAt:     d.PaidAt,
	})
}
