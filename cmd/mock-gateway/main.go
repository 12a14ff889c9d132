package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/logging"
)

// Local stand-in for the PIX gateway: accepts charge and transfer creation
// and fires the matching callbacks after a short delay, so the full
// deposit and payout flows can run without real credentials.
func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	addr := ":8081"
	if v := os.Getenv("MOCK_GATEWAY_ADDR"); v != "" {
		addr = v
	}

	s := &server{client: &http.Client{Timeout: 10 * time.Second}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /gateway/pix/receive", s.handleCharge)
	mux.HandleFunc("POST /gateway/transfers", s.handleTransfer)

	slog.Info("mock gateway started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type server struct {
	client *http.Client
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chargeRequest struct {
	Identifier  string  `json:"identifier"`
	Amount      float64 `json:"amount"`
	CallbackURL string  `json:"callbackUrl"`
}

func (s *server) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	txID := uuid.NewString()
	slog.Info("charge created", "identifier", req.Identifier, "transaction_id", txID)

	// Simulate the payer settling the charge.
	go s.fireCallback(req.CallbackURL, map[string]any{
		"event": "TRANSACTION_PAID",
		"transaction": map[string]any{
			"identifier": req.Identifier,
			"paidAt":     time.Now().UTC().Add(2 * time.Second).Format(time.RFC3339),
		},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"transactionId": txID,
		"identifier":    req.Identifier,
		"status":        "PENDING",
		"pix": map[string]string{
			"code": fmt.Sprintf("00020126mock%s5204000053039865802BR", req.Identifier),
		},
	})
}

type transferRequest struct {
	Identifier  string  `json:"identifier"`
	Amount      float64 `json:"amount"`
	PixKey      string  `json:"pixKey"`
	CallbackURL string  `json:"callbackUrl"`
}

func (s *server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	// A magic key lets local testing exercise the failure path.
	event := "TRANSFER_COMPLETED"
	if req.PixKey == "00000000000" {
		event = "TRANSFER_FAILED"
	}

	transferID := uuid.NewString()
	slog.Info("transfer created", "client_identifier", req.Identifier, "transfer_id", transferID, "outcome", event)

	go s.fireCallback(req.CallbackURL, map[string]any{
		"event": event,
		"withdraw": map[string]string{
			"clientIdentifier": req.Identifier,
			"status":           event,
		},
	})

	writeJSON(w, http.StatusCreated, map[string]string{
		"transferId": transferID,
		"status":     "PROCESSING",
	})
}

func (s *server) fireCallback(url string, payload map[string]any) {
	if url == "" {
		return
	}
	time.Sleep(2 * time.Second)

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal callback", "error", err)
		return
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("callback delivery failed", "url", url, "error", err)
		return
	}
	resp.Body.Close()
	slog.Info("callback delivered", "url", url, "status", resp.StatusCode)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
