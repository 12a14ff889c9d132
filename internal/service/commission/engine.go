package commission

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/settings"
)

const maxLevels = 3

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.Account, newVersion int64) error
}

type commissionRepo interface {
	Insert(ctx context.Context, tx *sql.Tx, c *domain.Commission) (bool, error)
}

// Engine credits up to three upline levels for a confirmed deposit. It is
// invoked after the deposit-confirmation transaction commits and may be
// re-invoked any number of times: the (affiliate, deposit, level) unique key
// makes every credit at-most-once, including under concurrent duplicates.
type Engine struct {
	accounts    accountRepo
	commissions commissionRepo
	settings    settings.Provider
	db          *sql.DB
}

func NewEngine(accounts accountRepo, commissions commissionRepo, provider settings.Provider, db *sql.DB) *Engine {
	return &Engine{
		accounts:    accounts,
		commissions: commissions,
		settings:    provider,
		db:          db,
	}
}

// Credit resolves the depositor's referral chain and credits each level.
// Rates come from the current commission plan, resolved at crediting time,
// not from when the referral was established. A level with no referrer
// stops the chain; a level with a zero rate still gets a commission record.
func (e *Engine) Credit(ctx context.Context, deposit *domain.Deposit) error {
	log := logging.FromContext(ctx)

	plan, err := e.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("Credit: %w", err)
	}

	depositor, err := e.accounts.GetByID(ctx, deposit.AccountID)
	if err != nil {
		return fmt.Errorf("Credit: depositor: %w", err)
	}

	next := depositor.ReferredBy
	for level := 1; level <= maxLevels && next != nil; level++ {
		affiliate, err := e.accounts.GetByID(ctx, *next)
		if err != nil {
			return fmt.Errorf("Credit: level %d affiliate: %w", level, err)
		}

		rate := plan.CommissionRate(level)
		earned := decimal.NewFromInt(deposit.Amount).Mul(rate).IntPart()

		credited, err := e.creditLevel(ctx, deposit, affiliate.ID, level, rate, earned)
		if err != nil {
			return fmt.Errorf("Credit: level %d: %w", level, err)
		}

		if credited {
			log.Info("commission credited",
				"deposit_id", deposit.ID,
				"affiliate_id", affiliate.ID,
				"level", level,
				"earned", earned,
			)
		}

		next = affiliate.ReferredBy
	}

	return nil
}

// creditLevel writes the commission record and the balance increment in one
// transaction. The insert reports whether it landed; when it did not, a
// previous (or concurrent) invocation already credited this level and the
// balance must stay untouched.
func (e *Engine) creditLevel(ctx context.Context, deposit *domain.Deposit, affiliateID uuid.UUID, level int, rate decimal.Decimal, earned int64) (bool, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("creditLevel: begin tx: %w", err)
	}
	defer tx.Rollback()

	record := &domain.Commission{
		ID:                uuid.New(),
		AffiliateID:       affiliateID,
		ReferredAccountID: deposit.AccountID,
		DepositID:         deposit.ID,
		Level:             level,
		DepositAmount:     deposit.Amount,
		CommissionRate:    rate,
		CommissionEarned:  earned,
		CreatedAt:         time.Now().UTC(),
	}

	inserted, err := e.commissions.Insert(ctx, tx, record)
	if err != nil {
		return false, fmt.Errorf("creditLevel: %w", err)
	}
	if !inserted {
		return false, nil
	}

	if earned > 0 {
		affiliate, err := e.accounts.GetForUpdate(ctx, tx, affiliateID)
		if err != nil {
			return false, fmt.Errorf("creditLevel: lock affiliate: %w", err)
		}
		affiliate.CommissionBalance += earned
		if err := e.accounts.UpdateBalances(ctx, tx, affiliate, affiliate.Version+1); err != nil {
			return false, fmt.Errorf("creditLevel: update affiliate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("creditLevel: commit: %w", err)
	}
	return true, nil
}
