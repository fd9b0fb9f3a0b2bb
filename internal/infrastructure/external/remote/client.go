// Package remote implements the progress sync API client.
//
// The client reports exactly one of three outcomes for a delivery:
// applied, duplicate, or permanently rejected. Anything else surfaces
// as an error the coordinator treats as transient. Duplicates are the
// normal consequence of at-least-once delivery and are never an error.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/learning"
	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
	"github.com/sadmanHT/PoraKhela-sub000/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the sync API client.
type ClientConfig struct {
	// BaseURL is the progress API base URL
	BaseURL string

	// APIKey authenticates the device with the progress API
	APIKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOMES
// ══════════════════════════════════════════════════════════════════════════════

// Outcome classifies a successful exchange with the remote.
type Outcome int

const (
	// OutcomeApplied - the remote applied the event.
	OutcomeApplied Outcome = iota

	// OutcomeDuplicate - the remote has already seen this idempotency
	// key. Treated exactly like Applied by the coordinator.
	OutcomeDuplicate

	// OutcomeRejected - the remote permanently refused the payload.
	// Retrying can never succeed.
	OutcomeRejected
)

// String returns a readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// eventEnvelope is the wire frame around a queue item payload.
type eventEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// eventResponse is the remote's acknowledgment body.
type eventResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Client delivers queue items to the progress API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new sync API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  config.Logger,
		breaker: circuitbreaker.RemoteAPIBreaker(nil),
	}
}

// SendEvent delivers one queue item. The item's idempotency key travels
// in the Idempotency-Key header so a redelivery after a lost
// acknowledgment lands as a duplicate, not a second effect.
func (c *Client) SendEvent(ctx context.Context, item *learning.SyncQueueItem) (Outcome, error) {
	var outcome Outcome

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		outcome, sendErr = c.send(ctx, item)
		return sendErr
	})
	if err != nil {
		if c.breaker.IsOpen() {
			return 0, fmt.Errorf("%w: circuit open", shared.ErrRemoteUnavailable)
		}
		return 0, err
	}

	return outcome, nil
}

func (c *Client) send(ctx context.Context, item *learning.SyncQueueItem) (Outcome, error) {
	body, err := json.Marshal(eventEnvelope{
		Kind:    string(item.Kind),
		Payload: item.Payload,
	})
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	fullURL := c.config.BaseURL + "/v1/progress/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", item.IdempotencyKey)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %v", shared.ErrRemoteTimeout, err)
		}
		return 0, fmt.Errorf("%w: %v", shared.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", shared.ErrRemoteUnavailable, err)
	}

	return c.classify(resp.StatusCode, respBody)
}

// classify maps the HTTP exchange onto the outcome trichotomy.
func (c *Client) classify(status int, body []byte) (Outcome, error) {
	switch {
	case status == http.StatusOK, status == http.StatusCreated:
		var ack eventResponse
		if err := json.Unmarshal(body, &ack); err == nil && ack.Status == "duplicate" {
			return OutcomeDuplicate, nil
		}
		return OutcomeApplied, nil

	case status == http.StatusConflict:
		return OutcomeDuplicate, nil

	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return 0, fmt.Errorf("%w: status %d", shared.ErrRemoteUnavailable, status)

	case status >= 400:
		// Any other 4xx means the payload itself can never be applied.
		c.logger.Warn("remote rejected sync payload",
			slog.Int("status", status),
			slog.String("body", string(body)),
		)
		return OutcomeRejected, nil
	}

	return 0, fmt.Errorf("%w: unexpected status %d", shared.ErrRemoteUnavailable, status)
}

// Healthy probes the remote health endpoint. Used by the connectivity
// monitor, not by the drain path.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}
