package authorize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/ledger"
	"github.com/cashflow/payment-gateway/internal/retry"
	"github.com/cashflow/payment-gateway/internal/stream"
)

const (
	defaultMaxRetries  = 3
	pollErrorBackoff   = time.Second
	defaultBackoffUnit = time.Second
)

// Config defines worker behavior.
type Config struct {
	// MaxRetries is the number of additional authorization attempts after
	// the first.
	MaxRetries int
	// Backoff computes the delay before each retry.
	Backoff retry.BackoffFunc
	// Sleep overrides the retry sleep for deterministic tests.
	Sleep  retry.SleepFunc
	Logger stream.Logger
	Clock  stream.Clock
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Backoff == nil {
		c.Backoff = retry.Exponential(defaultBackoffUnit)
	}
	if c.Logger == nil {
		c.Logger = stream.NopLogger{}
	}
	if c.Clock == nil {
		c.Clock = stream.SystemClock{}
	}

	return c
}

// Option configures worker behavior.
type Option func(*Config)

// WithMaxRetries sets the authorization retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithBackoff sets the retry backoff.
func WithBackoff(backoff retry.BackoffFunc) Option {
	return func(c *Config) {
		c.Backoff = backoff
	}
}

// WithSleep sets the retry sleep function.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(c *Config) {
		c.Sleep = sleep
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger stream.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClock sets the worker clock.
func WithClock(clock stream.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// Worker is the sequential consume loop over payment-requests. It never acks
// deliveries itself; the consumer's periodic auto-commit advances the read
// position independently of processing, so a crash between delivery and the
// commit boundary redelivers an already-processed message.
type Worker struct {
	consumer   stream.Consumer
	publisher  stream.Publisher
	store      ledger.Store
	authorizer Authorizer
	cfg        Config
}

// NewWorker constructs a Worker.
func NewWorker(consumer stream.Consumer, publisher stream.Publisher, store ledger.Store, authorizer Authorizer, opts ...Option) *Worker {
	if consumer == nil {
		panic("authorize: nil consumer")
	}
	if publisher == nil {
		panic("authorize: nil publisher")
	}
	if store == nil {
		panic("authorize: nil store")
	}
	if authorizer == nil {
		panic("authorize: nil authorizer")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Worker{
		consumer:   consumer,
		publisher:  publisher,
		store:      store,
		authorizer: authorizer,
		cfg:        cfg,
	}
}

// Run consumes until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.cfg.Logger.Info("authorization worker starting")

	for {
		select {
		case <-ctx.Done():
			w.cfg.Logger.Info("authorization worker stopping")

			return nil
		default:
		}

		if _, err := w.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				w.cfg.Logger.Info("authorization worker stopping")

				return nil
			}
			w.cfg.Logger.Error("poll failed", "err", err)
			if sleepErr := sleep(ctx, pollErrorBackoff); sleepErr != nil {
				return nil
			}
		}
	}
}

// ProcessOnce polls once and processes every returned delivery sequentially.
// It reports whether any delivery was handled. Processing failures are
// logged, not returned: a transaction whose retry budget is exhausted is
// dropped with no record and no outcome.
func (w *Worker) ProcessOnce(ctx context.Context) (bool, error) {
	deliveries, err := w.consumer.Poll(ctx)
	if err != nil {
		if errors.Is(err, stream.ErrNoMessages) {
			return false, nil
		}

		return false, err
	}

	for _, delivery := range deliveries {
		if err := w.process(ctx, delivery); err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			w.cfg.Logger.Error("processing failed, transaction dropped", "id", delivery.ID, "err", err)
		}
	}

	return true, nil
}

func (w *Worker) process(ctx context.Context, delivery stream.Delivery) error {
	req, err := event.DecodePaymentRequest(delivery.Payload)
	if err != nil {
		w.cfg.Logger.Warn("discarding malformed request event", "id", delivery.ID, "err", err)

		return nil
	}

	w.cfg.Logger.Info("payment request received", "transaction", req.TransactionID, "order", req.OrderID)

	note, err := w.authorize(ctx, req)
	if err != nil {
		return fmt.Errorf("authorize transaction %s: %w", req.TransactionID, err)
	}

	rec := ledger.Record{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		Status:        event.StatusSuccess,
		Reason:        note,
		CreatedAt:     w.cfg.Clock.Now(),
		Request:       req,
	}
	recordID, err := w.store.Insert(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist transaction %s: %w", req.TransactionID, err)
	}

	outcome := event.PaymentOutcome{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		Status:        event.StatusSuccess,
		WebhookURL:    req.WebhookURL,
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome %s: %w", req.TransactionID, err)
	}
	if _, err := w.publisher.Publish(ctx, event.TopicPaymentOutcomes, payload); err != nil {
		return fmt.Errorf("publish outcome %s: %w", req.TransactionID, err)
	}

	w.cfg.Logger.Info("authorization completed",
		"transaction", req.TransactionID, "status", outcome.Status, "record", recordID)

	return nil
}

func (w *Worker) authorize(ctx context.Context, req event.PaymentRequest) (string, error) {
	var note string
	policy := retry.Policy{
		MaxRetries: w.cfg.MaxRetries,
		Backoff:    w.cfg.Backoff,
		Sleep:      w.cfg.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			w.cfg.Logger.Warn("authorization attempt failed",
				"transaction", req.TransactionID, "attempt", attempt, "delay", delay, "err", err)
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		n, err := w.authorizer.Authorize(ctx, req)
		if err != nil {
			return err
		}
		note = n

		return nil
	})
	if err != nil {
		return "", err
	}

	return note, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
