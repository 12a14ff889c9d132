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

const withdrawalColumns = `id, account_id, amount, pix_key, pix_key_type, status,
	owner_name, owner_document, gateway_transfer_id, gateway_status,
	failure_reason, created_at, updated_at, completed_at`

type WithdrawalRepository struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawals (
			id, account_id, amount, pix_key, pix_key_type, status,
			owner_name, owner_document, gateway_transfer_id, gateway_status,
			failure_reason, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		w.ID, w.AccountID, w.Amount, w.PixKey, w.PixKeyType, w.Status,
		w.OwnerName, w.OwnerDocument, w.GatewayTransferID, w.GatewayStatus,
		w.FailureReason, w.CreatedAt, w.UpdatedAt, w.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByAccountID: %w", err)
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByAccountID: scan: %w", err)
		}
		withdrawals = append(withdrawals, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByAccountID: rows: %w", err)
	}
	return withdrawals, nil
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, failureReason *string, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawals
		SET status = $1, failure_reason = $2, completed_at = $3, updated_at = now()
		WHERE id = $4`,
		status, failureReason, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WithdrawalRepository) SetGatewayTransferID(ctx context.Context, tx *sql.Tx, id uuid.UUID, transferID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE withdrawals SET gateway_transfer_id = $1, updated_at = now() WHERE id = $2`,
		transferID, id,
	)
	if err != nil {
		return fmt.Errorf("SetGatewayTransferID: %w", err)
	}
	return nil
}

// AnnotateGatewayStatus records an intermediate payout event without a state
// transition.
func (r *WithdrawalRepository) AnnotateGatewayStatus(ctx context.Context, id uuid.UUID, gatewayStatus string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE withdrawals SET gateway_status = $1, updated_at = now() WHERE id = $2`,
		gatewayStatus, id,
	)
	if err != nil {
		return fmt.Errorf("AnnotateGatewayStatus: %w", err)
	}
	return nil
}

func scanWithdrawal(s scanner) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := s.Scan(
		&w.ID, &w.AccountID, &w.Amount, &w.PixKey, &w.PixKeyType, &w.Status,
		&w.OwnerName, &w.OwnerDocument, &w.GatewayTransferID, &w.GatewayStatus,
		&w.FailureReason, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
