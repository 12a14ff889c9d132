package postback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/settings"
)

const maxAttempts = 5

type postbackRepo interface {
	Create(ctx context.Context, event *domain.PostbackEvent) error
	GetPending(ctx context.Context, limit int) ([]domain.PostbackEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PostbackStatus) error
}

type depositRepo interface {
	CountCompleted(ctx context.Context, accountID uuid.UUID) (int, error)
}

// Dispatcher queues marketing postbacks and delivers them from a background
// poller. Delivery is best-effort and fully decoupled from ledger state: a
// postback that never lands costs a notification, not money.
type Dispatcher struct {
	postbacks  postbackRepo
	deposits   depositRepo
	settings   settings.Provider
	httpClient *http.Client

	interval  time.Duration
	batchSize int
}

func NewDispatcher(postbacks postbackRepo, deposits depositRepo, provider settings.Provider, interval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		postbacks:  postbacks,
		deposits:   deposits,
		settings:   provider,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		interval:   interval,
		batchSize:  batchSize,
	}
}

type depositPayload struct {
	Event     string    `json:"event"`
	AccountID uuid.UUID `json:"accountId"`
	DepositID uuid.UUID `json:"depositId"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paidAt"`
}

// EnqueueDeposit records a pending postback for a confirmed deposit. The
// first completed deposit of an account goes out as an "ftd" event, every
// later one as "deposit".
func (d *Dispatcher) EnqueueDeposit(ctx context.Context, deposit *domain.Deposit, paidAt time.Time) error {
	eventType := domain.PostbackTypeDeposit
	count, err := d.deposits.CountCompleted(ctx, deposit.AccountID)
	if err != nil {
		return fmt.Errorf("EnqueueDeposit: count deposits: %w", err)
	}
	if count <= 1 {
		eventType = domain.PostbackTypeFTD
	}

	payload, err := json.Marshal(depositPayload{
		Event:     string(eventType),
		AccountID: deposit.AccountID,
		DepositID: deposit.ID,
		Amount:    deposit.Amount,
		PaidAt:    paidAt,
	})
	if err != nil {
		return fmt.Errorf("EnqueueDeposit: marshal: %w", err)
	}

	event := &domain.PostbackEvent{
		ID:        uuid.New(),
		AccountID: deposit.AccountID,
		EventType: eventType,
		Payload:   payload,
		Status:    domain.PostbackStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.postbacks.Create(ctx, event); err != nil {
		return fmt.Errorf("EnqueueDeposit: %w", err)
	}
	return nil
}

// Start runs the delivery loop until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("postback dispatcher started", "interval", d.interval, "batch_size", d.batchSize)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("postback dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context) {
	log := logging.FromContext(ctx)

	events, err := d.postbacks.GetPending(ctx, d.batchSize)
	if err != nil {
		log.Error("failed to fetch pending postbacks", "error", err)
		return
	}

	for i := range events {
		d.deliver(ctx, &events[i])
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *domain.PostbackEvent) {
	log := logging.FromContext(ctx)

	cfg, err := d.settings.Get(ctx)
	if err != nil {
		log.Error("postback settings unavailable", "event_id", event.ID, "error", err)
		return
	}
	if cfg.PostbackURL == "" {
		// No destination configured: drop as dispatched so the queue drains.
		if err := d.postbacks.UpdateStatus(ctx, event.ID, domain.PostbackStatusDispatched); err != nil {
			log.Error("failed to update postback status", "event_id", event.ID, "error", err)
		}
		return
	}

	if err := d.send(ctx, cfg.PostbackURL, event.Payload); err != nil {
		status := domain.PostbackStatusPending
		if event.Attempts+1 >= maxAttempts {
			status = domain.PostbackStatusFailed
		}
		log.Warn("postback delivery failed",
			"event_id", event.ID,
			"attempt", event.Attempts+1,
			"status", status,
			"error", err,
		)
		if err := d.postbacks.UpdateStatus(ctx, event.ID, status); err != nil {
			log.Error("failed to update postback status", "event_id", event.ID, "error", err)
		}
		return
	}

	if err := d.postbacks.UpdateStatus(ctx, event.ID, domain.PostbackStatusDispatched); err != nil {
		log.Error("failed to update postback status", "event_id", event.ID, "error", err)
		return
	}
	log.Info("postback dispatched", "event_id", event.ID, "type", event.EventType)
}

func (d *Dispatcher) send(ctx context.Context, url string, payload json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send: status %d", resp.StatusCode)
	}
	return nil
}
