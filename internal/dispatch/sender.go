package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/retry"
	"github.com/cashflow/payment-gateway/internal/stream"
)

// WebhookSender delivers a payment outcome to the merchant's webhook URL.
type WebhookSender interface {
	// Deliver posts the outcome, retrying failed attempts, and returns the
	// last error once the retry budget is exhausted.
	Deliver(ctx context.Context, outcome event.PaymentOutcome) error
}

// SenderFunc adapts a function to WebhookSender.
type SenderFunc func(ctx context.Context, outcome event.PaymentOutcome) error

// Deliver implements WebhookSender.
func (fn SenderFunc) Deliver(ctx context.Context, outcome event.PaymentOutcome) error {
	return fn(ctx, outcome)
}

const (
	defaultSendRetries = 5
	sendBackoffUnit    = time.Second
)

// SenderConfig defines HTTP delivery behavior.
type SenderConfig struct {
	// MaxRetries is the number of additional delivery attempts after the
	// first.
	MaxRetries int
	// Backoff computes the delay before each retry.
	Backoff retry.BackoffFunc
	// Sleep overrides the retry sleep for deterministic tests.
	Sleep  retry.SleepFunc
	Logger stream.Logger
	Clock  stream.Clock
}

func (c SenderConfig) withDefaults() SenderConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultSendRetries
	}
	if c.Backoff == nil {
		c.Backoff = retry.Exponential(sendBackoffUnit)
	}
	if c.Logger == nil {
		c.Logger = stream.NopLogger{}
	}
	if c.Clock == nil {
		c.Clock = stream.SystemClock{}
	}

	return c
}

// SenderOption configures the HTTP sender.
type SenderOption func(*SenderConfig)

// WithSendRetries sets the delivery retry budget.
func WithSendRetries(n int) SenderOption {
	return func(c *SenderConfig) {
		c.MaxRetries = n
	}
}

// WithSendBackoff sets the delivery retry backoff.
func WithSendBackoff(backoff retry.BackoffFunc) SenderOption {
	return func(c *SenderConfig) {
		c.Backoff = backoff
	}
}

// WithSendSleep sets the retry sleep function.
func WithSendSleep(sleep retry.SleepFunc) SenderOption {
	return func(c *SenderConfig) {
		c.Sleep = sleep
	}
}

// WithSenderLogger sets the sender logger.
func WithSenderLogger(logger stream.Logger) SenderOption {
	return func(c *SenderConfig) {
		c.Logger = logger
	}
}

// WithSenderClock sets the sender clock.
func WithSenderClock(clock stream.Clock) SenderOption {
	return func(c *SenderConfig) {
		c.Clock = clock
	}
}

// HTTPSender posts outcome payloads over HTTP with bounded retry.
type HTTPSender struct {
	client *http.Client
	cfg    SenderConfig
}

var _ WebhookSender = (*HTTPSender)(nil)

// NewHTTPSender constructs an HTTPSender around the given client.
func NewHTTPSender(client *http.Client, opts ...SenderOption) (*HTTPSender, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	var cfg SenderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return &HTTPSender{client: client, cfg: cfg.withDefaults()}, nil
}

// Deliver implements WebhookSender. The payload is built once, so every
// attempt carries the same delivery timestamp.
func (s *HTTPSender) Deliver(ctx context.Context, outcome event.PaymentOutcome) error {
	payload := event.WebhookPayload{
		TransactionID:     outcome.TransactionID,
		OrderID:           outcome.OrderID,
		Status:            outcome.Status,
		FailureReason:     outcome.FailureReason,
		DeliveryTimestamp: s.cfg.Clock.Now(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload %s: %w", outcome.TransactionID, err)
	}

	policy := retry.Policy{
		MaxRetries: s.cfg.MaxRetries,
		Backoff:    s.cfg.Backoff,
		Sleep:      s.cfg.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			s.cfg.Logger.Warn("webhook attempt failed",
				"transaction", outcome.TransactionID, "url", outcome.WebhookURL,
				"attempt", attempt, "delay", delay, "err", err)
		},
	}

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		return s.post(ctx, outcome.WebhookURL, body)
	})
}

func (s *HTTPSender) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return nil
}
