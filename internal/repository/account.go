package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/raspaplay/wallet-api/internal/domain"
)

const accountColumns = `id, email, name, password_hash, cpf, phone, role, status,
	referral_code, referred_by, balance, prize_balance, commission_balance,
	rollover_requirement, rollover_progress, version, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, email, name, password_hash, cpf, phone, role, status,
			referral_code, referred_by, balance, prize_balance, commission_balance,
			rollover_requirement, rollover_progress, version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		account.ID, account.Email, account.Name, account.PasswordHash,
		account.CPF, account.Phone, account.Role, account.Status,
		account.ReferralCode, account.ReferredBy,
		account.Balance, account.PrizeBalance, account.CommissionBalance,
		account.RolloverRequirement, account.RolloverProgress,
		account.Version, account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrEmailTaken)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByEmail: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByEmail: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReferralCode: %w", domain.ErrReferralCodeNotFound)
		}
		return nil, fmt.Errorf("GetByReferralCode: %w", err)
	}
	return a, nil
}

// GetAll streams every account; used only by the admin rollover recompute
// and the affiliate report, both low-QPS full-scan paths.
func (r *AccountRepository) GetAll(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("GetAll: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetAll: rows: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// UpdateBalances writes all four derived balance fields in one statement,
// guarded by the optimistic version. Callers compute the new values from a
// row locked in the same transaction.
func (r *AccountRepository) UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.Account, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts
		SET balance = $1, prize_balance = $2, commission_balance = $3,
			rollover_requirement = $4, rollover_progress = $5, version = $6
		WHERE id = $7 AND version = $8`,
		a.Balance, a.PrizeBalance, a.CommissionBalance,
		a.RolloverRequirement, a.RolloverProgress,
		newVersion, a.ID, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalances: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalances: %w", domain.ErrVersionConflict)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var referredBy uuid.NullUUID
	err := s.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CPF, &a.Phone,
		&a.Role, &a.Status, &a.ReferralCode, &referredBy,
		&a.Balance, &a.PrizeBalance, &a.CommissionBalance,
		&a.RolloverRequirement, &a.RolloverProgress,
		&a.Version, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if referredBy.Valid {
		a.ReferredBy = &referredBy.UUID
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
