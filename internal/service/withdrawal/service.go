package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/gateway"
	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/settings"
)

type withdrawalRepo interface {
	Create(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, failureReason *string, completedAt *time.Time) error
	SetGatewayTransferID(ctx context.Context, tx *sql.Tx, id uuid.UUID, transferID string) error
	AnnotateGatewayStatus(ctx context.Context, id uuid.UUID, gatewayStatus string) error
}

type accountRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.Account, newVersion int64) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type auditSink interface {
	RecordBestEffort(ctx context.Context, scope, refID, message string, payload any)
}

type transferGateway interface {
	CreateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResponse, error)
	PublicIP(ctx context.Context) (string, error)
}

type Service struct {
	withdrawals withdrawalRepo
	accounts    accountRepo
	ledger      ledgerRepo
	audit       auditSink
	gateway     transferGateway
	settings    settings.Provider
	db          *sql.DB
}

func NewService(
	withdrawals withdrawalRepo,
	accounts accountRepo,
	ledger ledgerRepo,
	audit auditSink,
	gw transferGateway,
	provider settings.Provider,
	db *sql.DB,
) *Service {
	return &Service{
		withdrawals: withdrawals,
		accounts:    accounts,
		ledger:      ledger,
		audit:       audit,
		gateway:     gw,
		settings:    provider,
		db:          db,
	}
}

type CreateRequest struct {
	AccountID  uuid.UUID
	Amount     int64
	PixKey     string
	PixKeyType domain.PixKeyType
}

// Create debits the balance at request time, inside the same transaction
// that writes the withdrawal and its ledger entry. Two concurrent requests
// serialize on the account row lock, so neither can spend the same funds.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Withdrawal, error) {
	log := logging.FromContext(ctx)

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if err := validateRequest(req, cfg.MinWithdrawal); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Create: begin tx: %w", err)
	}
	defer tx.Rollback()

	account, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Create: lock account: %w", err)
	}
	if account.Status != domain.AccountStatusActive {
		return nil, fmt.Errorf("Create: %w", domain.ErrAccountSuspended)
	}
	if account.Balance < req.Amount {
		return nil, fmt.Errorf("Create: %w", domain.ErrInsufficientFunds)
	}
	if account.RolloverProgress < account.RolloverRequirement {
		return nil, fmt.Errorf("Create: %w", domain.ErrRolloverNotMet)
	}

	now := time.Now().UTC()
	w := &domain.Withdrawal{
		ID:            uuid.New(),
		AccountID:     account.ID,
		Amount:        req.Amount,
		PixKey:        req.PixKey,
		PixKeyType:    req.PixKeyType,
		Status:        domain.WithdrawalStatusPending,
		OwnerName:     account.Name,
		OwnerDocument: account.CPF,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.withdrawals.Create(ctx, tx, w); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     account.ID,
		EntryType:     domain.EntryTypeWithdrawalRequest,
		Amount:        -req.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance - req.Amount,
		RefID:         &w.ID,
		CreatedAt:     now,
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("Create: ledger: %w", err)
	}

	account.Balance -= req.Amount
	if err := s.accounts.UpdateBalances(ctx, tx, account, account.Version+1); err != nil {
		return nil, fmt.Errorf("Create: update account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Create: commit: %w", err)
	}

	log.Info("withdrawal requested", "withdrawal_id", w.ID, "account_id", account.ID, "amount", req.Amount)
	return w, nil
}

// List returns the account's withdrawals, newest first.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.withdrawals.GetByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return items, nil
}

// Cancel refunds a PENDING withdrawal at the owner's request. Anything past
// PENDING is already with the gateway and can only be resolved by the admin
// flow or the payout webhook.
func (s *Service) Cancel(ctx context.Context, withdrawalID, accountID uuid.UUID) (*domain.Withdrawal, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Cancel: begin tx: %w", err)
	}
	defer tx.Rollback()

	w, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if w.AccountID != accountID {
		return nil, fmt.Errorf("Cancel: %w", domain.ErrNotFound)
	}
	if w.Status != domain.WithdrawalStatusPending {
		return nil, fmt.Errorf("Cancel: status %s: %w", w.Status, domain.ErrWithdrawalNotPending)
	}

	if err := s.refund(ctx, tx, w, domain.WithdrawalStatusCancelled, nil); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Cancel: commit: %w", err)
	}

	w.Status = domain.WithdrawalStatusCancelled
	log.Info("withdrawal cancelled", "withdrawal_id", w.ID)
	return w, nil
}

// Reject is the admin path for refusing a PENDING withdrawal.
func (s *Service) Reject(ctx context.Context, withdrawalID uuid.UUID, reason string) (*domain.Withdrawal, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Reject: begin tx: %w", err)
	}
	defer tx.Rollback()

	w, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}
	if w.Status != domain.WithdrawalStatusPending {
		return nil, fmt.Errorf("Reject: status %s: %w", w.Status, domain.ErrWithdrawalNotPending)
	}

	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}
	if err := s.refund(ctx, tx, w, domain.WithdrawalStatusRejected, failureReason); err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Reject: commit: %w", err)
	}

	w.Status = domain.WithdrawalStatusRejected
	log.Info("withdrawal rejected", "withdrawal_id", w.ID, "reason", reason)
	return w, nil
}

// Approve submits the payout to the gateway. On acceptance the withdrawal
// moves to APPROVED and waits for the payout webhook; on rejection the
// funds go back immediately and the gateway's response lands in the audit
// sink. The refund and the FAILED transition share one transaction, so the
// money moves back exactly once no matter how the gateway call died.
func (s *Service) Approve(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	log := logging.FromContext(ctx)

	w, err := s.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	if w.Status != domain.WithdrawalStatusPending {
		return nil, fmt.Errorf("Approve: status %s: %w", w.Status, domain.ErrWithdrawalNotPending)
	}

	senderIP, err := s.gateway.PublicIP(ctx)
	if err != nil {
		return nil, fmt.Errorf("Approve: resolve sender ip: %w", err)
	}

	transferReq := gateway.TransferRequest{
		ClientIdentifier: w.ID.String(),
		Amount:           w.Amount,
		PixKey:           w.PixKey,
		PixKeyType:       string(w.PixKeyType),
		OwnerName:        w.OwnerName,
		OwnerDocument:    w.OwnerDocument,
		SenderIP:         senderIP,
	}

	transfer, gwErr := s.gateway.CreateTransfer(ctx, transferReq)
	if gwErr != nil {
		s.audit.RecordBestEffort(ctx, "withdrawal.transfer", w.ID.String(),
			"gateway transfer rejected", map[string]any{
				"request": transferReq,
				"error":   gwErr.Error(),
			})
		if err := s.failWithRefund(ctx, w.ID, gwErr.Error()); err != nil {
			return nil, fmt.Errorf("Approve: %w", err)
		}
		w.Status = domain.WithdrawalStatusFailed
		log.Warn("withdrawal failed at gateway", "withdrawal_id", w.ID, "error", gwErr)
		return w, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Approve: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := s.withdrawals.GetForUpdate(ctx, tx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	if locked.Status != domain.WithdrawalStatusPending {
		return nil, fmt.Errorf("Approve: status %s: %w", locked.Status, domain.ErrWithdrawalNotPending)
	}

	if err := s.withdrawals.UpdateStatus(ctx, tx, w.ID, domain.WithdrawalStatusApproved, nil, nil); err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	if err := s.withdrawals.SetGatewayTransferID(ctx, tx, w.ID, transfer.TransferID); err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Approve: commit: %w", err)
	}

	w.Status = domain.WithdrawalStatusApproved
	w.GatewayTransferID = &transfer.TransferID
	log.Info("withdrawal approved", "withdrawal_id", w.ID, "transfer_id", transfer.TransferID)
	return w, nil
}

// PayoutOutcome classifies a payout webhook event.
type PayoutOutcome string

const (
	PayoutOutcomeCompleted PayoutOutcome = "completed"
	PayoutOutcomeFailed    PayoutOutcome = "failed"
	PayoutOutcomeAnnotated PayoutOutcome = "annotated"
	PayoutOutcomeIgnored   PayoutOutcome = "ignored"
)

// HandlePayoutEvent applies an asynchronous gateway payout notification.
// Terminal withdrawals ignore everything; unknown events are stored as an
// annotation with no transition.
func (s *Service) HandlePayoutEvent(ctx context.Context, withdrawalID uuid.UUID, event string) (PayoutOutcome, error) {
	log := logging.FromContext(ctx)

	switch event {
	case "TRANSFER_COMPLETED":
		if err := s.complete(ctx, withdrawalID); err != nil {
			if errors.Is(err, domain.ErrWithdrawalTerminal) {
				return PayoutOutcomeIgnored, nil
			}
			return "", fmt.Errorf("HandlePayoutEvent: %w", err)
		}
		return PayoutOutcomeCompleted, nil

	case "TRANSFER_FAILED", "TRANSFER_CANCELLED", "TRANSFER_RETURNED":
		if err := s.failWithRefund(ctx, withdrawalID, "gateway event "+event); err != nil {
			if errors.Is(err, domain.ErrWithdrawalTerminal) {
				return PayoutOutcomeIgnored, nil
			}
			return "", fmt.Errorf("HandlePayoutEvent: %w", err)
		}
		return PayoutOutcomeFailed, nil

	default:
		w, err := s.withdrawals.GetByID(ctx, withdrawalID)
		if err != nil {
			return "", fmt.Errorf("HandlePayoutEvent: %w", err)
		}
		if w.Status.IsTerminal() {
			return PayoutOutcomeIgnored, nil
		}
		if err := s.withdrawals.AnnotateGatewayStatus(ctx, withdrawalID, event); err != nil {
			return "", fmt.Errorf("HandlePayoutEvent: %w", err)
		}
		log.Info("payout event annotated", "withdrawal_id", withdrawalID, "event", event)
		return PayoutOutcomeAnnotated, nil
	}
}

// complete moves APPROVED to COMPLETED. No balance change: the debit
// happened at request time. A zero-amount marker entry keeps the payout
// confirmation visible in the ledger without disturbing the sums.
func (s *Service) complete(ctx context.Context, withdrawalID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("complete: begin tx: %w", err)
	}
	defer tx.Rollback()

	w, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	if w.Status.IsTerminal() {
		return fmt.Errorf("complete: %w", domain.ErrWithdrawalTerminal)
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, w.AccountID)
	if err != nil {
		return fmt.Errorf("complete: lock account: %w", err)
	}

	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     w.AccountID,
		EntryType:     domain.EntryTypeWithdrawalComplete,
		Amount:        0,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance,
		RefID:         &w.ID,
		CreatedAt:     now,
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("complete: ledger: %w", err)
	}

	if err := s.withdrawals.UpdateStatus(ctx, tx, w.ID, domain.WithdrawalStatusCompleted, nil, &now); err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("complete: commit: %w", err)
	}

	logging.FromContext(ctx).Info("withdrawal completed", "withdrawal_id", w.ID)
	return nil
}

// failWithRefund is the single refund path for every non-COMPLETED terminal
// outcome reached after the request debit: gateway rejection at approval
// and failure/cancel/return events from the payout webhook.
func (s *Service) failWithRefund(ctx context.Context, withdrawalID uuid.UUID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failWithRefund: begin tx: %w", err)
	}
	defer tx.Rollback()

	w, err := s.withdrawals.GetForUpdate(ctx, tx, withdrawalID)
	if err != nil {
		return fmt.Errorf("failWithRefund: %w", err)
	}
	if w.Status.IsTerminal() {
		return fmt.Errorf("failWithRefund: %w", domain.ErrWithdrawalTerminal)
	}

	failureReason := &reason
	if err := s.refund(ctx, tx, w, domain.WithdrawalStatusFailed, failureReason); err != nil {
		return fmt.Errorf("failWithRefund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failWithRefund: commit: %w", err)
	}

	logging.FromContext(ctx).Info("withdrawal failed, funds refunded", "withdrawal_id", w.ID, "reason", reason)
	return nil
}

// refund credits the debited amount back and moves the withdrawal to its
// terminal status, all inside the caller's transaction.
func (s *Service) refund(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal, status domain.WithdrawalStatus, failureReason *string) error {
	account, err := s.accounts.GetForUpdate(ctx, tx, w.AccountID)
	if err != nil {
		return fmt.Errorf("refund: lock account: %w", err)
	}

	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     account.ID,
		EntryType:     domain.EntryTypeWithdrawalRefund,
		Amount:        w.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + w.Amount,
		RefID:         &w.ID,
		CreatedAt:     now,
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("refund: ledger: %w", err)
	}

	account.Balance += w.Amount
	if err := s.accounts.UpdateBalances(ctx, tx, account, account.Version+1); err != nil {
		return fmt.Errorf("refund: update account: %w", err)
	}

	if err := s.withdrawals.UpdateStatus(ctx, tx, w.ID, status, failureReason, nil); err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	return nil
}

var (
	cpfDigits   = regexp.MustCompile(`^\d{11}$`)
	phoneDigits = regexp.MustCompile(`^\+?\d{10,13}$`)
)

func validateRequest(req CreateRequest, minWithdrawal int64) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if req.Amount < minWithdrawal {
		return domain.ErrAmountBelowMinimum
	}
	if !req.PixKeyType.IsValid() {
		return domain.ErrInvalidPixKey
	}

	switch req.PixKeyType {
	case domain.PixKeyTypeCPF:
		if !cpfDigits.MatchString(req.PixKey) {
			return domain.ErrInvalidPixKey
		}
	case domain.PixKeyTypeEmail:
		if _, err := mail.ParseAddress(req.PixKey); err != nil {
			return domain.ErrInvalidPixKey
		}
	case domain.PixKeyTypePhone:
		if !phoneDigits.MatchString(req.PixKey) {
			return domain.ErrInvalidPixKey
		}
	case domain.PixKeyTypeRandom:
		if _, err := uuid.Parse(req.PixKey); err != nil {
			return domain.ErrInvalidPixKey
		}
	}
	return nil
}

