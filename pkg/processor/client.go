// Package processor is the HTTP client for the payment processor gateway
// that moves money for escrow holds, caregiver payouts and refunds.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrDeclined is a definitive rejection; retrying will not help.
	ErrDeclined = errors.New("processor declined the request")
	// ErrUnavailable means the processor did not act on the request.
	ErrUnavailable = errors.New("processor unavailable")
	// ErrOutcomeUnknown means the request may or may not have been applied.
	ErrOutcomeUnknown = errors.New("processor outcome unknown")
	ErrNotFound       = errors.New("processor operation not found")
)

const (
	StatusSucceeded = "succeeded"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

type ChargeRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	PayerRef       string            `json:"payer_ref"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type PayoutRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	PayeeRef       string            `json:"payee_ref"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type RefundRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ChargeRef      string `json:"charge_ref"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Receipt is the processor's record of a money movement.
type Receipt struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the processor gateway. Every mutating call carries an
// idempotency key so replays are safe.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*Receipt, error) {
	return c.do(ctx, http.MethodPost, "/v1/charges", req.IdempotencyKey, req)
}

func (c *Client) Payout(ctx context.Context, req PayoutRequest) (*Receipt, error) {
	return c.do(ctx, http.MethodPost, "/v1/payouts", req.IdempotencyKey, req)
}

func (c *Client) Refund(ctx context.Context, req RefundRequest) (*Receipt, error) {
	return c.do(ctx, http.MethodPost, "/v1/refunds", req.IdempotencyKey, req)
}

// Lookup returns the processor's view of the operation submitted with
// idempotencyKey, or ErrNotFound if it never arrived.
func (c *Client) Lookup(ctx context.Context, idempotencyKey string) (*Receipt, error) {
	return c.do(ctx, http.MethodGet, "/v1/operations/"+url.PathEscape(idempotencyKey), "", nil)
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body any) (*Receipt, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal processor request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request may have reached the processor before the failure.
		return nil, fmt.Errorf("%w: %s %s: %v", ErrOutcomeUnknown, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read processor response: %v", ErrOutcomeUnknown, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var receipt Receipt
		if err := json.Unmarshal(raw, &receipt); err != nil {
			return nil, fmt.Errorf("%w: decode processor response: %v", ErrOutcomeUnknown, err)
		}
		return &receipt, nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(raw, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: status %d: %s", ErrOutcomeUnknown, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, msg)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", ErrDeclined, resp.StatusCode, msg)
	}
}
