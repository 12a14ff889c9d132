package deposit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/gateway"
	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/settings"
)

type depositRepo interface {
	Create(ctx context.Context, deposit *domain.Deposit) error
	GetByIdentifierForUpdate(ctx context.Context, tx *sql.Tx, identifier string) (*domain.Deposit, error)
	MarkCompleted(ctx context.Context, tx *sql.Tx, id uuid.UUID, paidAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	SetGatewayData(ctx context.Context, id uuid.UUID, gatewayTxID, pixCode string) error
}

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.Account, newVersion int64) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type auditSink interface {
	RecordBestEffort(ctx context.Context, scope, refID, message string, payload any)
}

type chargeGateway interface {
	CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResponse, error)
}

type Service struct {
	deposits depositRepo
	accounts accountRepo
	ledger   ledgerRepo
	audit    auditSink
	gateway  chargeGateway
	settings settings.Provider
	db       *sql.DB
}

func NewService(
	deposits depositRepo,
	accounts accountRepo,
	ledger ledgerRepo,
	audit auditSink,
	gw chargeGateway,
	provider settings.Provider,
	db *sql.DB,
) *Service {
	return &Service{
		deposits: deposits,
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
		gateway:  gw,
		settings: provider,
		db:       db,
	}
}

// Create opens a PENDING deposit and requests a PIX charge from the
// gateway. The deposit row is written before the outbound call so a crash
// mid-call leaves a PENDING record the webhook can still resolve; a gateway
// rejection marks it FAILED and surfaces the error.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.Deposit, error) {
	log := logging.FromContext(ctx)

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("Create: %w", domain.ErrInvalidAmount)
	}
	if amount < cfg.MinDeposit {
		return nil, fmt.Errorf("Create: %w", domain.ErrAmountBelowMinimum)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if account.Status != domain.AccountStatusActive {
		return nil, fmt.Errorf("Create: %w", domain.ErrAccountSuspended)
	}

	d := &domain.Deposit{
		ID:         uuid.New(),
		AccountID:  account.ID,
		Identifier: uuid.NewString(),
		Amount:     amount,
		Status:     domain.DepositStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.deposits.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	charge, err := s.gateway.CreateCharge(ctx, gateway.ChargeRequest{
		Identifier: d.Identifier,
		Amount:     amount,
		ClientName: account.Name,
		ClientCPF:  account.CPF,
		ClientMail: account.Email,
	})
	if err != nil {
		s.audit.RecordBestEffort(ctx, "deposit.charge", d.ID.String(),
			"gateway charge creation failed", map[string]any{
				"identifier": d.Identifier,
				"amount":     amount,
				"error":      err.Error(),
			})
		if markErr := s.deposits.MarkFailed(ctx, d.ID); markErr != nil {
			log.Error("failed to mark deposit failed", "deposit_id", d.ID, "error", markErr)
		}
		return nil, fmt.Errorf("Create: %w", err)
	}

	if err := s.deposits.SetGatewayData(ctx, d.ID, charge.TransactionID, charge.PixCode); err != nil {
		log.Error("failed to store gateway charge data", "deposit_id", d.ID, "error", err)
	}
	d.GatewayTxID = &charge.TransactionID
	d.PixCode = &charge.PixCode

	log.Info("deposit created", "deposit_id", d.ID, "identifier", d.Identifier, "amount", amount)
	return d, nil
}

// ConfirmResult reports what the confirmation did. AlreadyCompleted means
// the webhook was a redelivery: the balance was untouched, but downstream
// crediting (which is independently idempotent) should still run.
type ConfirmResult struct {
	Deposit          *domain.Deposit
	AlreadyCompleted bool
}

// Confirm applies a gateway payment confirmation. The whole read-check-write
// runs under the deposit row lock: redelivered webhooks serialize here, the
// status guard makes the credit exactly-once, and the rollover requirement
// moves in the same transaction so it can never double-apply either.
func (s *Service) Confirm(ctx context.Context, identifier string, paidAt time.Time) (*ConfirmResult, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Confirm: begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := s.deposits.GetByIdentifierForUpdate(ctx, tx, identifier)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	if d.Status == domain.DepositStatusCompleted {
		log.Info("deposit already completed, skipping credit", "deposit_id", d.ID, "identifier", identifier)
		return &ConfirmResult{Deposit: d, AlreadyCompleted: true}, nil
	}
	if d.Status != domain.DepositStatusPending {
		return nil, fmt.Errorf("Confirm: status %s: %w", d.Status, domain.ErrDepositNotPending)
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, d.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Confirm: lock account: %w", err)
	}

	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     account.ID,
		EntryType:     domain.EntryTypeDeposit,
		Amount:        d.Amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance + d.Amount,
		RefID:         &d.ID,
		CreatedAt:     now,
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("Confirm: ledger: %w", err)
	}

	rolloverDelta := decimal.NewFromInt(d.Amount).Mul(cfg.RolloverMultiplier).IntPart()
	account.Balance += d.Amount
	account.RolloverRequirement += rolloverDelta
	if err := s.accounts.UpdateBalances(ctx, tx, account, account.Version+1); err != nil {
		return nil, fmt.Errorf("Confirm: update account: %w", err)
	}

	if err := s.deposits.MarkCompleted(ctx, tx, d.ID, paidAt); err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Confirm: commit: %w", err)
	}

	d.Status = domain.DepositStatusCompleted
	d.PaidAt = &paidAt

	log.Info("deposit confirmed",
		"deposit_id", d.ID,
		"account_id", account.ID,
		"amount", d.Amount,
		"rollover_delta", rolloverDelta,
	)
	return &ConfirmResult{Deposit: d}, nil
}

// IsNotFound lets the webhook handler translate a missing identifier into
// its diagnostic-then-200 path without importing repository internals.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
