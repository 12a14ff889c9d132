package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditRepository is the durable diagnostic sink. Webhook handlers and
// gateway calls record raw payloads here before converting errors into
// success-shaped responses, so nothing is swallowed without a trace.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, scope, refID, message string, payload any) error {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			payloadJSON, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, scope, ref_id, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), scope, nullable(refID), message, payloadJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("Record: %w", err)
	}
	return nil
}

// RecordBestEffort logs the write failure instead of returning it; used on
// paths that must not fail because of the sink itself.
func (r *AuditRepository) RecordBestEffort(ctx context.Context, scope, refID, message string, payload any) {
	if err := r.Record(ctx, scope, refID, message, payload); err != nil {
		slog.Error("audit sink write failed", "scope", scope, "ref_id", refID, "error", err)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
