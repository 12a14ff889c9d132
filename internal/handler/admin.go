package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/service/rollover"
)

type withdrawalAdmin interface {
	Approve(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	Reject(ctx context.Context, withdrawalID uuid.UUID, reason string) (*domain.Withdrawal, error)
}

type rolloverRecomputer interface {
	Recompute(ctx context.Context) (*rollover.Result, error)
}

type settingsStore interface {
	Get(ctx context.Context) (*domain.Settings, error)
	Update(ctx context.Context, s *domain.Settings) error
}

type cacheInvalidator interface {
	Invalidate()
}

// AdminHandler bundles the operator endpoints: the withdrawal review queue,
// the rollover repair sweep, settings management and arbitrary affiliate
// reports.
type AdminHandler struct {
	withdrawals withdrawalAdmin
	rollover    rolloverRecomputer
	affiliate   affiliateReporter
	settings    settingsStore
	cache       cacheInvalidator
}

func NewAdminHandler(
	withdrawals withdrawalAdmin,
	recomputer rolloverRecomputer,
	reporter affiliateReporter,
	store settingsStore,
	cache cacheInvalidator,
) *AdminHandler {
	return &AdminHandler{
		withdrawals: withdrawals,
		rollover:    recomputer,
		affiliate:   reporter,
		settings:    store,
		cache:       cache,
	}
}

func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	wd, err := h.withdrawals.Approve(r.Context(), withdrawalID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wd))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	wd, err := h.withdrawals.Reject(r.Context(), withdrawalID, req.Reason)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wd))
}

func (h *AdminHandler) RecomputeRollover(w http.ResponseWriter, r *http.Request) {
	result, err := h.rollover.Recompute(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, result)
}

func (h *AdminHandler) AffiliateReport(w http.ResponseWriter, r *http.Request) {
	affiliateID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	report, err := h.affiliate.Build(r.Context(), affiliateID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, report)
}

type settingsDTO struct {
	Level1Rate         decimal.Decimal `json:"level1_rate"`
	Level2Rate         decimal.Decimal `json:"level2_rate"`
	Level3Rate         decimal.Decimal `json:"level3_rate"`
	RolloverMultiplier decimal.Decimal `json:"rollover_multiplier"`
	MinDeposit         int64           `json:"min_deposit"`
	MinWithdrawal      int64           `json:"min_withdrawal"`
	WebhookAllowedIPs  []string        `json:"webhook_allowed_ips"`
	PostbackURL        string          `json:"postback_url"`
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, settingsDTO{
		Level1Rate:         s.Level1Rate,
		Level2Rate:         s.Level2Rate,
		Level3Rate:         s.Level3Rate,
		RolloverMultiplier: s.RolloverMultiplier,
		MinDeposit:         s.MinDeposit,
		MinWithdrawal:      s.MinWithdrawal,
		WebhookAllowedIPs:  s.WebhookAllowedIPs,
		PostbackURL:        s.PostbackURL,
	})
}

func (r settingsDTO) Validate() []FieldError {
	var errs []FieldError
	one := decimal.NewFromInt(1)
	for field, rate := range map[string]decimal.Decimal{
		"level1_rate":         r.Level1Rate,
		"level2_rate":         r.Level2Rate,
		"level3_rate":         r.Level3Rate,
		"rollover_multiplier": r.RolloverMultiplier,
	} {
		if rate.IsNegative() {
			errs = append(errs, FieldError{Field: field, Message: "must not be negative"})
		}
		if field != "rollover_multiplier" && rate.GreaterThan(one) {
			errs = append(errs, FieldError{Field: field, Message: "must not exceed 1"})
		}
	}
	if r.MinDeposit < 0 {
		errs = append(errs, FieldError{Field: "min_deposit", Message: "must not be negative"})
	}
	if r.MinWithdrawal < 0 {
		errs = append(errs, FieldError{Field: "min_withdrawal", Message: "must not be negative"})
	}
	return errs
}

// UpdateSettings overwrites the mutable rates and invalidates the provider
// cache, so the change applies to the next operation rather than after the
// TTL runs out. Gateway credentials are deliberately not writable here.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	current, err := h.settings.Get(r.Context())
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	current.Level1Rate = req.Level1Rate
	current.Level2Rate = req.Level2Rate
	current.Level3Rate = req.Level3Rate
	current.RolloverMultiplier = req.RolloverMultiplier
	current.MinDeposit = req.MinDeposit
	current.MinWithdrawal = req.MinWithdrawal
	current.WebhookAllowedIPs = req.WebhookAllowedIPs
	current.PostbackURL = req.PostbackURL

	if err := h.settings.Update(r.Context(), current); err != nil {
		RespondDomainError(w, err)
		return
	}
	h.cache.Invalidate()

	RespondSuccess(w, http.StatusOK, req)
}
