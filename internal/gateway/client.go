package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/settings"
)

// Client talks to the PIX payment gateway. Credentials rotate through the
// settings provider and are resolved per call, never cached on the client.
// All traffic is pinned to IPv4: the gateway's fraud controls validate the
// caller against a registered v4 address.
type Client struct {
	baseURL     string
	callbackURL string
	ipLookupURL string
	settings    settings.Provider
	httpClient  *http.Client
}

func NewClient(baseURL, callbackURL, ipLookupURL string, provider settings.Provider) *Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		},
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: strings.TrimRight(callbackURL, "/"),
		ipLookupURL: ipLookupURL,
		settings:    provider,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

type ChargeRequest struct {
	Identifier string
	Amount     int64
	ClientName string
	ClientCPF  string
	ClientMail string
}

type ChargeResponse struct {
	TransactionID string
	Identifier    string
	PixCode       string
	Status        string
}

type TransferRequest struct {
	ClientIdentifier string
	Amount           int64
	PixKey           string
	PixKeyType       string
	OwnerName        string
	OwnerDocument    string
	SenderIP         string
}

type TransferResponse struct {
	TransferID string
	Status     string
}

// Error carries the gateway's HTTP status and raw body so the caller can
// land both in the audit sink.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Body)
}

type chargePayload struct {
	Identifier string        `json:"identifier"`
	Amount     float64       `json:"amount"`
	Client     clientPayload `json:"client"`
	Products   []product     `json:"products"`
	CallbackURL string       `json:"callbackUrl"`
}

type clientPayload struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Email    string `json:"email"`
}

type product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type chargeResult struct {
	TransactionID string `json:"transactionId"`
	Identifier    string `json:"identifier"`
	Status        string `json:"status"`
	Pix           struct {
		Code string `json:"code"`
	} `json:"pix"`
}

// CreateCharge opens a PIX charge. Amounts cross the wire in BRL units with
// two decimals; internally everything stays in centavos.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	payload := chargePayload{
		Identifier: req.Identifier,
		Amount:     centavosToBRL(req.Amount),
		Client: clientPayload{
			Name:     req.ClientName,
			Document: req.ClientCPF,
			Email:    req.ClientMail,
		},
		Products: []product{
			{ID: req.Identifier, Name: "Account credit", Quantity: 1, Price: centavosToBRL(req.Amount)},
		},
		CallbackURL: c.callbackURL + "/deposit",
	}

	var result chargeResult
	if err := c.post(ctx, "/gateway/pix/receive", payload, &result); err != nil {
		return nil, fmt.Errorf("CreateCharge: %w", err)
	}

	return &ChargeResponse{
		TransactionID: result.TransactionID,
		Identifier:    result.Identifier,
		PixCode:       result.Pix.Code,
		Status:        result.Status,
	}, nil
}

type transferPayload struct {
	Identifier    string  `json:"identifier"`
	Amount        float64 `json:"amount"`
	PixKey        string  `json:"pixKey"`
	PixKeyType    string  `json:"pixKeyType"`
	OwnerName     string  `json:"ownerName"`
	OwnerDocument string  `json:"ownerDocument"`
	SenderIP      string  `json:"senderIp"`
	CallbackURL   string  `json:"callbackUrl"`
}

type transferResult struct {
	TransferID string `json:"transferId"`
	Status     string `json:"status"`
}

// CreateTransfer submits a PIX payout. ClientIdentifier is echoed back by
// the payout webhook and must be the withdrawal id.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	payload := transferPayload{
		Identifier:    req.ClientIdentifier,
		Amount:        centavosToBRL(req.Amount),
		PixKey:        req.PixKey,
		PixKeyType:    req.PixKeyType,
		OwnerName:     req.OwnerName,
		OwnerDocument: req.OwnerDocument,
		SenderIP:      req.SenderIP,
		CallbackURL:   c.callbackURL + "/payout",
	}

	var result transferResult
	if err := c.post(ctx, "/gateway/transfers", payload, &result); err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	return &TransferResponse{TransferID: result.TransferID, Status: result.Status}, nil
}

// PublicIP resolves the server's outbound public IPv4 address, which the
// gateway requires on transfer requests.
func (c *Client) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ipLookupURL, nil)
	if err != nil {
		return "", fmt.Errorf("PublicIP: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("PublicIP: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", fmt.Errorf("PublicIP: read: %w", err)
	}

	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("PublicIP: lookup returned %q", ip)
	}
	return ip, nil
}

func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	log := logging.FromContext(ctx)

	cfg, err := c.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("post: settings: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("post: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-public-key", cfg.GatewayPublicKey)
	req.Header.Set("x-secret-key", cfg.GatewaySecretKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("post: read: %w", err)
	}

	log.Info("gateway response",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("post: decode: %w", err)
	}
	return nil
}

func centavosToBRL(v int64) float64 {
	return float64(v) / 100
}
