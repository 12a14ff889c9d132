package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
)

const depositColumns = `id, account_id, identifier, amount, status,
	gateway_tx_id, pix_code, created_at, paid_at`

type DepositRepository struct {
	db *sql.DB
}

func NewDepositRepository(db *sql.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Create(ctx context.Context, deposit *domain.Deposit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deposits (
			id, account_id, identifier, amount, status, gateway_tx_id, pix_code, created_at, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		deposit.ID, deposit.AccountID, deposit.Identifier, deposit.Amount,
		deposit.Status, deposit.GatewayTxID, deposit.PixCode,
		deposit.CreatedAt, deposit.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *DepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deposit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return d, nil
}

// GetByIdentifierForUpdate locks the deposit row keyed by the gateway
// correlation identifier. The webhook confirmation path runs entirely under
// this lock so redelivered events serialize on the row.
func (r *DepositRepository) GetByIdentifierForUpdate(ctx context.Context, tx *sql.Tx, identifier string) (*domain.Deposit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE identifier = $1 FOR UPDATE`, identifier,
	)
	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdentifierForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdentifierForUpdate: %w", err)
	}
	return d, nil
}

func (r *DepositRepository) MarkCompleted(ctx context.Context, tx *sql.Tx, id uuid.UUID, paidAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE deposits SET status = $1, paid_at = $2 WHERE id = $3 AND status = $4`,
		domain.DepositStatusCompleted, paidAt, id, domain.DepositStatusPending,
	)
	if err != nil {
		return fmt.Errorf("MarkCompleted: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkCompleted: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkCompleted: %w", domain.ErrDepositNotPending)
	}
	return nil
}

func (r *DepositRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE deposits SET status = $1 WHERE id = $2 AND status = $3`,
		domain.DepositStatusFailed, id, domain.DepositStatusPending,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

func (r *DepositRepository) SetGatewayData(ctx context.Context, id uuid.UUID, gatewayTxID, pixCode string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE deposits SET gateway_tx_id = $1, pix_code = $2 WHERE id = $3`,
		gatewayTxID, pixCode, id,
	)
	if err != nil {
		return fmt.Errorf("SetGatewayData: %w", err)
	}
	return nil
}

// CountCompleted is used for first-time-deposit detection after a
// confirmation commits.
func (r *DepositRepository) CountCompleted(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deposits WHERE account_id = $1 AND status = $2`,
		accountID, domain.DepositStatusCompleted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountCompleted: %w", err)
	}
	return n, nil
}

// CompletedTotals returns the summed completed deposit amount per account,
// feeding the affiliate report join.
func (r *DepositRepository) CompletedTotals(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account_id, COALESCE(SUM(amount), 0) FROM deposits
		WHERE status = $1 GROUP BY account_id`,
		domain.DepositStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("CompletedTotals: %w", err)
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var sum int64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("CompletedTotals: scan: %w", err)
		}
		totals[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CompletedTotals: rows: %w", err)
	}
	return totals, nil
}

func scanDeposit(s scanner) (*domain.Deposit, error) {
	var d domain.Deposit
	err := s.Scan(
		&d.ID, &d.AccountID, &d.Identifier, &d.Amount, &d.Status,
		&d.GatewayTxID, &d.PixCode, &d.CreatedAt, &d.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
