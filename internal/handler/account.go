package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/auth"
	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/service/affiliate"
)

type accountReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Ledger(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
	ClaimCommission(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type affiliateReporter interface {
	Build(ctx context.Context, affiliateID uuid.UUID) (*affiliate.Report, error)
}

type AccountHandler struct {
	accounts  accountReader
	affiliate affiliateReporter
}

func NewAccountHandler(accounts accountReader, reporter affiliateReporter) *AccountHandler {
	return &AccountHandler{accounts: accounts, affiliate: reporter}
}

type balancesDTO struct {
	Balance             int64 `json:"balance"`
	PrizeBalance        int64 `json:"prize_balance"`
	CommissionBalance   int64 `json:"commission_balance"`
	RolloverRequirement int64 `json:"rollover_requirement"`
	RolloverProgress    int64 `json:"rollover_progress"`
}

type profileDTO struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	ReferralCode string      `json:"referral_code"`
	Status       string      `json:"status"`
	Balances     balancesDTO `json:"balances"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	acc, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, profileDTO{
		ID:           acc.ID,
		Email:        acc.Email,
		Name:         acc.Name,
		ReferralCode: acc.ReferralCode,
		Status:       string(acc.Status),
		Balances: balancesDTO{
			Balance:             acc.Balance,
			PrizeBalance:        acc.PrizeBalance,
			CommissionBalance:   acc.CommissionBalance,
			RolloverRequirement: acc.RolloverRequirement,
			RolloverProgress:    acc.RolloverProgress,
		},
		CreatedAt: acc.CreatedAt,
	})
}

type ledgerEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	EntryType     string     `json:"entry_type"`
	Amount        int64      `json:"amount"`
	BalanceBefore int64      `json:"balance_before"`
	BalanceAfter  int64      `json:"balance_after"`
	RefID         *uuid.UUID `json:"ref_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ledgerPageDTO struct {
	Entries []ledgerEntryDTO `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.accounts.Ledger(r.Context(), accountID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	page := ledgerPageDTO{Entries: make([]ledgerEntryDTO, 0, len(entries)), Total: total, Limit: limit, Offset: offset}
	for i := range entries {
		e := &entries[i]
		page.Entries = append(page.Entries, ledgerEntryDTO{
			ID:            e.ID,
			EntryType:     string(e.EntryType),
			Amount:        e.Amount,
			BalanceBefore: e.BalanceBefore,
			BalanceAfter:  e.BalanceAfter,
			RefID:         e.RefID,
			CreatedAt:     e.CreatedAt,
		})
	}

	RespondSuccess(w, http.StatusOK, page)
}

func (h *AccountHandler) ClaimCommission(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	amount, err := h.accounts.ClaimCommission(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]int64{"claimed": amount})
}

func (h *AccountHandler) AffiliateReport(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	report, err := h.affiliate.Build(r.Context(), accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, report)
}
