package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
)

const ledgerColumns = `id, account_id, entry_type, amount, balance_before,
	balance_after, ref_id, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, account_id, entry_type, amount, balance_before, balance_after, ref_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AccountID, entry.EntryType, entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.RefID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("GetByAccountID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: rows: %w", err)
	}
	return entries, total, nil
}

// SumByType returns the signed sum of an account's entries of one type.
// The rollover recompute treats this as the authoritative deposit total.
func (r *LedgerRepository) SumByType(ctx context.Context, accountID uuid.UUID, entryType domain.EntryType) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE account_id = $1 AND entry_type = $2`,
		accountID, entryType,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumByType: %w", err)
	}
	return sum, nil
}

// SumByAccount reconstructs the balance from scratch. Test and audit helper:
// the accounts.balance cache must always equal this value.
func (r *LedgerRepository) SumByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
		accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumByAccount: %w", err)
	}
	return sum, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var refID uuid.NullUUID
	err := s.Scan(
		&e.ID, &e.AccountID, &e.EntryType, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &refID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if refID.Valid {
		e.RefID = &refID.UUID
	}
	return &e, nil
}
