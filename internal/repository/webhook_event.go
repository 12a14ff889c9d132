package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
)

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, source, payload, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.Source, event.Payload, event.Outcome, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WebhookEventRepository) SetOutcome(ctx context.Context, id uuid.UUID, outcome string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET outcome = $1 WHERE id = $2`,
		outcome, id,
	)
	if err != nil {
		return fmt.Errorf("SetOutcome: %w", err)
	}
	return nil
}
