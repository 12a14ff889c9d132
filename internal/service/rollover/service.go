package rollover

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/settings"
)

type accountRepo interface {
	GetAll(ctx context.Context) ([]domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.Account, newVersion int64) error
}

type ledgerRepo interface {
	SumByType(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType) (int64, error)
}

// Service recomputes rollover requirements from the ledger. It exists to
// repair drift left behind by older releases that credited deposits without
// raising the requirement.
type Service struct {
	accounts accountRepo
	ledger   ledgerRepo
	settings settings.Provider
	db       *sql.DB
}

func NewService(accounts accountRepo, ledger ledgerRepo, provider settings.Provider, db *sql.DB) *Service {
	return &Service{accounts: accounts, ledger: ledger, settings: provider, db: db}
}

// Result summarizes a recompute run.
type Result struct {
	Scanned   int   `json:"scanned"`
	Corrected int   `json:"corrected"`
	Failed    int   `json:"failed"`
	TotalDiff int64 `json:"totalDiff"`
}

// Recompute derives each account's requirement as the sum of its DEPOSIT
// ledger entries times the current multiplier and overwrites the stored
// value. Only deposit entries count: refunds, commissions and payout markers
// never contribute. The operation is idempotent, a second run over an
// unchanged ledger rewrites the same values. Each account commits in its own
// transaction so one failure does not poison the rest of the sweep.
func (s *Service) Recompute(ctx context.Context) (*Result, error) {
	log := logging.FromContext(ctx)

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Recompute: %w", err)
	}

	accounts, err := s.accounts.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("Recompute: %w", err)
	}

	res := &Result{Scanned: len(accounts)}
	for i := range accounts {
		diff, err := s.recomputeAccount(ctx, accounts[i].ID, cfg.RolloverMultiplier)
		if err != nil {
			res.Failed++
			log.Error("rollover recompute failed for account", "account_id", accounts[i].ID, "error", err)
			continue
		}
		if diff != 0 {
			res.Corrected++
			res.TotalDiff += diff
			log.Info("rollover requirement corrected", "account_id", accounts[i].ID, "diff", diff)
		}
	}

	log.Info("rollover recompute finished",
		"scanned", res.Scanned,
		"corrected", res.Corrected,
		"failed", res.Failed,
		"total_diff", res.TotalDiff,
	)
	return res, nil
}

func (s *Service) recomputeAccount(ctx context.Context, accountID uuid.UUID, multiplier decimal.Decimal) (int64, error) {
	deposited, err := s.ledger.SumByType(ctx, accountID, domain.EntryTypeDeposit)
	if err != nil {
		return 0, fmt.Errorf("recomputeAccount: sum deposits: %w", err)
	}
	required := decimal.NewFromInt(deposited).Mul(multiplier).IntPart()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("recomputeAccount: begin tx: %w", err)
	}
	defer tx.Rollback()

	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return 0, fmt.Errorf("recomputeAccount: lock account: %w", err)
	}

	diff := required - account.RolloverRequirement
	if diff == 0 {
		return 0, nil
	}

	account.RolloverRequirement = required
	if err := s.accounts.UpdateBalances(ctx, tx, account, account.Version+1); err != nil {
		return 0, fmt.Errorf("recomputeAccount: update account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("recomputeAccount: commit: %w", err)
	}
	return diff, nil
}
