package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
)

const postbackColumns = `id, account_id, event_type, payload, status,
	attempts, last_attempt, created_at`

type PostbackRepository struct {
	db *sql.DB
}

func NewPostbackRepository(db *sql.DB) *PostbackRepository {
	return &PostbackRepository{db: db}
}

func (r *PostbackRepository) Create(ctx context.Context, event *domain.PostbackEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO postback_events (
			id, account_id, event_type, payload, status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.AccountID, event.EventType, event.Payload,
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PostbackRepository) GetPending(ctx context.Context, limit int) ([]domain.PostbackEvent, error) {
	// FOR UPDATE SKIP LOCKED so concurrent dispatchers never claim the same event
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postbackColumns+` FROM postback_events
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`,
		domain.PostbackStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.PostbackEvent
	for rows.Next() {
		e, err := scanPostbackEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return events, nil
}

func (r *PostbackRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PostbackStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE postback_events SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id = $2`,
		status, id,
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

func scanPostbackEvent(s scanner) (*domain.PostbackEvent, error) {
	var e domain.PostbackEvent
	err := s.Scan(
		&e.ID, &e.AccountID, &e.EventType, &e.Payload,
		&e.Status, &e.Attempts, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
