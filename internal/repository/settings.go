package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/raspaplay/wallet-api/internal/domain"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context) (*domain.Settings, error) {
	var s domain.Settings
	var allowedIPs pq.StringArray
	err := r.db.QueryRowContext(ctx,
		`SELECT level1_rate, level2_rate, level3_rate, rollover_multiplier,
			min_deposit, min_withdrawal, webhook_allowed_ips,
			gateway_public_key, gateway_secret_key, postback_url, updated_at
		FROM platform_settings WHERE id = 1`,
	).Scan(
		&s.Level1Rate, &s.Level2Rate, &s.Level3Rate, &s.RolloverMultiplier,
		&s.MinDeposit, &s.MinWithdrawal, &allowedIPs,
		&s.GatewayPublicKey, &s.GatewaySecretKey, &s.PostbackURL, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	s.WebhookAllowedIPs = allowedIPs
	return &s, nil
}

func (r *SettingsRepository) Update(ctx context.Context, s *domain.Settings) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE platform_settings
		SET level1_rate = $1, level2_rate = $2, level3_rate = $3,
			rollover_multiplier = $4, min_deposit = $5, min_withdrawal = $6,
			webhook_allowed_ips = $7, gateway_public_key = $8,
			gateway_secret_key = $9, postback_url = $10, updated_at = now()
		WHERE id = 1`,
		s.Level1Rate, s.Level2Rate, s.Level3Rate,
		s.RolloverMultiplier, s.MinDeposit, s.MinWithdrawal,
		pq.StringArray(s.WebhookAllowedIPs), s.GatewayPublicKey,
		s.GatewaySecretKey, s.PostbackURL,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}
