package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/service/deposit"
	"github.com/raspaplay/wallet-api/internal/service/withdrawal"
	"github.com/raspaplay/wallet-api/internal/settings"
)

type depositConfirmer interface {
	Confirm(ctx context.Context, identifier string, paidAt time.Time) (*deposit.ConfirmResult, error)
}

type commissionCrediter interface {
	Credit(ctx context.Context, deposit *domain.Deposit) error
}

type postbackEnqueuer interface {
	EnqueueDeposit(ctx context.Context, deposit *domain.Deposit, paidAt time.Time) error
}

type payoutApplier interface {
	HandlePayoutEvent(ctx context.Context, withdrawalID uuid.UUID, event string) (withdrawal.PayoutOutcome, error)
}

type webhookEventRepo interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	SetOutcome(ctx context.Context, id uuid.UUID, outcome string) error
}

type auditSink interface {
	RecordBestEffort(ctx context.Context, scope, refID, message string, payload any)
}

// WebhookHandler receives gateway callbacks. Except for allowlist
// rejections everything answers 200: the gateway treats non-2xx as
// undelivered and retries, and a permanently failing payload would retry
// forever. Errors are reported in the body and the audit trail instead.
type WebhookHandler struct {
	deposits    depositConfirmer
	commissions commissionCrediter
	postbacks   postbackEnqueuer
	withdrawals payoutApplier
	webhooks    webhookEventRepo
	audit       auditSink
	settings    settings.Provider
}

func NewWebhookHandler(
	deposits depositConfirmer,
	commissions commissionCrediter,
	postbacks postbackEnqueuer,
	withdrawals payoutApplier,
	webhooks webhookEventRepo,
	audit auditSink,
	provider settings.Provider,
) *WebhookHandler {
	return &WebhookHandler{
		deposits:    deposits,
		commissions: commissions,
		postbacks:   postbacks,
		withdrawals: withdrawals,
		webhooks:    webhooks,
		audit:       audit,
		settings:    provider,
	}
}

var ErrSourceNotAllowed = &AppError{http.StatusForbidden, "SOURCE_NOT_ALLOWED", "Source address not allowed"}

type depositWebhookPayload struct {
	Event       string `json:"event"`
	Transaction struct {
		Identifier string `json:"identifier"`
		PaidAt     string `json:"paidAt"`
		PayedAt    string `json:"payedAt"`
	} `json:"transaction"`
}

// paidAt tolerates both spellings the gateway has shipped and falls back to
// the receive time when neither parses.
func (p depositWebhookPayload) paidAt() time.Time {
	for _, raw := range []string{p.Transaction.PaidAt, p.Transaction.PayedAt} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func (h *WebhookHandler) ReceiveDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	if !h.sourceAllowed(ctx, r) {
		log.Warn("deposit webhook from disallowed source", "remote_addr", r.RemoteAddr)
		RespondAppError(w, ErrSourceNotAllowed, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		respondWebhookError(w, "unreadable body")
		return
	}

	event := &domain.WebhookEvent{
		ID:        uuid.New(),
		Source:    domain.WebhookSourceDeposit,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.webhooks.Create(ctx, event); err != nil {
		log.Error("failed to store webhook event", "error", err)
	}

	var payload depositWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.audit.RecordBestEffort(ctx, "webhook.deposit", event.ID.String(),
			"unparseable deposit webhook", map[string]any{"body": string(body)})
		h.setOutcome(ctx, event.ID, "error: unparseable")
		respondWebhookError(w, "invalid payload")
		return
	}

	if payload.Event != "TRANSACTION_PAID" {
		log.Info("deposit webhook ignored", "event", payload.Event)
		h.setOutcome(ctx, event.ID, "ignored: "+payload.Event)
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	identifier := payload.Transaction.Identifier
	if identifier == "" {
		h.audit.RecordBestEffort(ctx, "webhook.deposit", event.ID.String(),
			"deposit webhook missing identifier", map[string]any{"body": string(body)})
		h.setOutcome(ctx, event.ID, "error: missing identifier")
		respondWebhookError(w, "missing identifier")
		return
	}

	result, err := h.deposits.Confirm(ctx, identifier, payload.paidAt())
	if err != nil {
		if deposit.IsNotFound(err) {
			h.audit.RecordBestEffort(ctx, "webhook.deposit", identifier,
				"deposit webhook for unknown identifier", map[string]any{"body": string(body)})
			h.setOutcome(ctx, event.ID, "error: unknown identifier")
			respondWebhookError(w, "unknown identifier")
			return
		}
		log.Error("deposit confirmation failed", "identifier", identifier, "error", err)
		h.audit.RecordBestEffort(ctx, "webhook.deposit", identifier,
			"deposit confirmation failed", map[string]any{"error": err.Error()})
		h.setOutcome(ctx, event.ID, "error: "+err.Error())
		respondWebhookError(w, "processing failed")
		return
	}

	// Crediting is idempotent on its own unique key, so it runs on
	// redeliveries too: a replay is the retry mechanism for a commission
	// run that died halfway through the chain.
	if err := h.commissions.Credit(ctx, result.Deposit); err != nil {
		log.Error("commission crediting failed", "deposit_id", result.Deposit.ID, "error", err)
		h.audit.RecordBestEffort(ctx, "webhook.deposit", identifier,
			"commission crediting failed", map[string]any{"error": err.Error()})
	}

	if !result.AlreadyCompleted {
		if err := h.postbacks.EnqueueDeposit(ctx, result.Deposit, payload.paidAt()); err != nil {
			log.Error("postback enqueue failed", "deposit_id", result.Deposit.ID, "error", err)
		}
	}

	outcome := "success"
	if result.AlreadyCompleted {
		outcome = "success: already completed"
	}
	h.setOutcome(ctx, event.ID, outcome)
	RespondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type payoutWebhookPayload struct {
	Event    string `json:"event"`
	Withdraw struct {
		ClientIdentifier string `json:"clientIdentifier"`
		Status           string `json:"status"`
	} `json:"withdraw"`
}

func (h *WebhookHandler) ReceivePayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	if !h.sourceAllowed(ctx, r) {
		log.Warn("payout webhook from disallowed source", "remote_addr", r.RemoteAddr)
		RespondAppError(w, ErrSourceNotAllowed, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		respondWebhookError(w, "unreadable body")
		return
	}

	event := &domain.WebhookEvent{
		ID:        uuid.New(),
		Source:    domain.WebhookSourcePayout,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.webhooks.Create(ctx, event); err != nil {
		log.Error("failed to store webhook event", "error", err)
	}

	var payload payoutWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.audit.RecordBestEffort(ctx, "webhook.payout", event.ID.String(),
			"unparseable payout webhook", map[string]any{"body": string(body)})
		h.setOutcome(ctx, event.ID, "error: unparseable")
		respondWebhookError(w, "invalid payload")
		return
	}

	withdrawalID, err := uuid.Parse(payload.Withdraw.ClientIdentifier)
	if err != nil {
		h.audit.RecordBestEffort(ctx, "webhook.payout", event.ID.String(),
			"payout webhook with invalid client identifier", map[string]any{"body": string(body)})
		h.setOutcome(ctx, event.ID, "error: invalid identifier")
		respondWebhookError(w, "invalid client identifier")
		return
	}

	outcome, err := h.withdrawals.HandlePayoutEvent(ctx, withdrawalID, payload.Event)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.audit.RecordBestEffort(ctx, "webhook.payout", payload.Withdraw.ClientIdentifier,
				"payout webhook for unknown withdrawal", map[string]any{"body": string(body)})
			h.setOutcome(ctx, event.ID, "error: unknown withdrawal")
			respondWebhookError(w, "unknown withdrawal")
			return
		}
		log.Error("payout event failed", "withdrawal_id", withdrawalID, "error", err)
		h.audit.RecordBestEffort(ctx, "webhook.payout", payload.Withdraw.ClientIdentifier,
			"payout event processing failed", map[string]any{"error": err.Error()})
		h.setOutcome(ctx, event.ID, "error: "+err.Error())
		respondWebhookError(w, "processing failed")
		return
	}

	h.setOutcome(ctx, event.ID, string(outcome))
	status := "success"
	if outcome == withdrawal.PayoutOutcomeIgnored {
		status = "ignored"
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": status})
}

// sourceAllowed checks the caller against the configured allowlist. An
// empty allowlist admits everyone; settings lookup failures fail open so a
// database blip cannot bounce real payment notifications.
func (h *WebhookHandler) sourceAllowed(ctx context.Context, r *http.Request) bool {
	cfg, err := h.settings.Get(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("settings unavailable for allowlist check", "error", err)
		return true
	}
	if len(cfg.WebhookAllowedIPs) == 0 {
		return true
	}

	ip := clientIP(r)
	for _, allowed := range cfg.WebhookAllowedIPs {
		if ip == allowed {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respondWebhookError(w http.ResponseWriter, message string) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "error", "message": message})
}

func (h *WebhookHandler) setOutcome(ctx context.Context, id uuid.UUID, outcome string) {
	if err := h.webhooks.SetOutcome(ctx, id, outcome); err != nil {
		logging.FromContext(ctx).Error("failed to record webhook outcome", "event_id", id, "error", err)
	}
}
