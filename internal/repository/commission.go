package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
)

const commissionColumns = `id, affiliate_id, referred_account_id, deposit_id,
	level, deposit_amount, commission_rate, commission_earned, created_at`

type CommissionRepository struct {
	db *sql.DB
}

func NewCommissionRepository(db *sql.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// Insert writes the commission record and reports whether it actually
// landed. ON CONFLICT DO NOTHING against the (affiliate, deposit, level)
// unique key is the idempotency guard: a concurrent duplicate invocation
// sees inserted == false and must not touch the affiliate balance.
func (r *CommissionRepository) Insert(ctx context.Context, tx *sql.Tx, c *domain.Commission) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO commissions (
			id, affiliate_id, referred_account_id, deposit_id,
			level, deposit_amount, commission_rate, commission_earned, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (affiliate_id, deposit_id, level) DO NOTHING`,
		c.ID, c.AffiliateID, c.ReferredAccountID, c.DepositID,
		c.Level, c.DepositAmount, c.CommissionRate, c.CommissionEarned, c.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("Insert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Insert: rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *CommissionRepository) GetByDepositID(ctx context.Context, depositID uuid.UUID) ([]domain.Commission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commissionColumns+` FROM commissions
		WHERE deposit_id = $1 ORDER BY level`, depositID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByDepositID: %w", err)
	}
	defer rows.Close()

	var commissions []domain.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByDepositID: scan: %w", err)
		}
		commissions = append(commissions, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByDepositID: rows: %w", err)
	}
	return commissions, nil
}

func (r *CommissionRepository) GetByAffiliateID(ctx context.Context, affiliateID uuid.UUID, limit, offset int) ([]domain.Commission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commissionColumns+` FROM commissions
		WHERE affiliate_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		affiliateID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByAffiliateID: %w", err)
	}
	defer rows.Close()

	var commissions []domain.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByAffiliateID: scan: %w", err)
		}
		commissions = append(commissions, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByAffiliateID: rows: %w", err)
	}
	return commissions, nil
}

// EarnedTotals returns commission earned per referred account for one
// affiliate, feeding the report join.
func (r *CommissionRepository) EarnedTotals(ctx context.Context, affiliateID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT referred_account_id, COALESCE(SUM(commission_earned), 0)
		FROM commissions WHERE affiliate_id = $1 GROUP BY referred_account_id`,
		affiliateID,
	)
	if err != nil {
		return nil, fmt.Errorf("EarnedTotals: %w", err)
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var sum int64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("EarnedTotals: scan: %w", err)
		}
		totals[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EarnedTotals: rows: %w", err)
	}
	return totals, nil
}

func scanCommission(s scanner) (*domain.Commission, error) {
	var c domain.Commission
	err := s.Scan(
		&c.ID, &c.AffiliateID, &c.ReferredAccountID, &c.DepositID,
		&c.Level, &c.DepositAmount, &c.CommissionRate, &c.CommissionEarned,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
