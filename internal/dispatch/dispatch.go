// Package dispatch consumes payment outcomes and delivers them to merchant
// webhook endpoints. Every running instance subscribes with its own consumer
// group, so each one observes the full outcome topic.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/stream"
)

// CommitPolicy decides when a delivered outcome's read position is committed
// relative to the webhook call it spawned.
type CommitPolicy int

const (
	// CommitOnDispatch commits as soon as the delivery goroutine is
	// launched. A crash between commit and webhook completion loses the
	// notification. This is the default hand-off semantics.
	CommitOnDispatch CommitPolicy = iota
	// CommitAfterDelivery commits only once the webhook call has resolved,
	// trading the loss window for possible duplicate deliveries after a
	// crash.
	CommitAfterDelivery
)

// String returns the policy name.
func (p CommitPolicy) String() string {
	switch p {
	case CommitOnDispatch:
		return "on-dispatch"
	case CommitAfterDelivery:
		return "after-delivery"
	default:
		return "unknown"
	}
}

// Metrics counts dispatcher outcomes.
type Metrics interface {
	// AddDelivered counts webhook deliveries that resolved successfully.
	AddDelivered(n int)
	// AddFailed counts webhook deliveries whose retry budget was exhausted.
	AddFailed(n int)
}

// NopMetrics discards all counts.
type NopMetrics struct{}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddFailed implements Metrics.
func (NopMetrics) AddFailed(int) {}

const dispatchPollErrorBackoff = time.Second

// Config defines dispatcher behavior.
type Config struct {
	// Policy selects when deliveries are committed.
	Policy  CommitPolicy
	Logger  stream.Logger
	Metrics Metrics
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = stream.NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// Option configures dispatcher behavior.
type Option func(*Config)

// WithCommitPolicy selects the commit policy.
func WithCommitPolicy(policy CommitPolicy) Option {
	return func(c *Config) {
		c.Policy = policy
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger stream.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the dispatcher metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// Dispatcher polls the outcome topic and fires a delivery goroutine per
// outcome. It never waits for a delivery to finish before taking the next
// message, so concurrency is bounded only by the inbound rate; goroutines
// still in flight when the context is canceled are abandoned.
type Dispatcher struct {
	consumer stream.Consumer
	sender   WebhookSender
	cfg      Config

	inflight sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(consumer stream.Consumer, sender WebhookSender, opts ...Option) *Dispatcher {
	if consumer == nil {
		panic("dispatch: nil consumer")
	}
	if sender == nil {
		panic("dispatch: nil sender")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Dispatcher{consumer: consumer, sender: sender, cfg: cfg.withDefaults()}
}

// Run consumes until the context is canceled. It returns without waiting for
// in-flight deliveries.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.cfg.Logger.Info("webhook dispatcher starting", "commit", d.cfg.Policy)

	for {
		select {
		case <-ctx.Done():
			d.cfg.Logger.Info("webhook dispatcher stopping")

			return nil
		default:
		}

		if _, err := d.ProcessOnce(ctx); err != nil {
			if ctx.Err() != nil {
				d.cfg.Logger.Info("webhook dispatcher stopping")

				return nil
			}
			d.cfg.Logger.Error("poll failed", "err", err)
			if sleepErr := sleep(ctx, dispatchPollErrorBackoff); sleepErr != nil {
				return nil
			}
		}
	}
}

// ProcessOnce polls once and dispatches every returned delivery. It reports
// whether any delivery was handled.
func (d *Dispatcher) ProcessOnce(ctx context.Context) (bool, error) {
	deliveries, err := d.consumer.Poll(ctx)
	if err != nil {
		if errors.Is(err, stream.ErrNoMessages) {
			return false, nil
		}

		return false, err
	}

	for _, delivery := range deliveries {
		d.dispatch(ctx, delivery)
	}

	return true, nil
}

// Wait blocks until every launched delivery goroutine has finished. Intended
// for tests; Run never calls it.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, delivery stream.Delivery) {
	outcome, err := event.DecodePaymentOutcome(delivery.Payload)
	if err != nil {
		d.cfg.Logger.Warn("discarding malformed outcome event", "id", delivery.ID, "err", err)
		d.ack(ctx, delivery.ID)

		return
	}

	d.cfg.Logger.Info("dispatching webhook",
		"id", delivery.ID, "transaction", outcome.TransactionID, "url", outcome.WebhookURL)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		err := d.sender.Deliver(ctx, outcome)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Shutdown interrupted the attempt before it resolved. The
			// delivery stays unacked so a replacement instance can claim
			// and retry it.
			d.cfg.Logger.Warn("webhook delivery interrupted by shutdown",
				"transaction", outcome.TransactionID, "url", outcome.WebhookURL)

			return
		}
		if err != nil {
			d.cfg.Metrics.AddFailed(1)
			d.cfg.Logger.Error("webhook delivery abandoned",
				"transaction", outcome.TransactionID, "url", outcome.WebhookURL, "err", err)
		} else {
			d.cfg.Metrics.AddDelivered(1)
			d.cfg.Logger.Info("webhook delivered", "transaction", outcome.TransactionID)
		}

		if d.cfg.Policy == CommitAfterDelivery {
			d.ack(context.WithoutCancel(ctx), delivery.ID)
		}
	}()

	// The read position moves forward the moment the goroutine is launched.
	// If this process dies before the delivery resolves, the notification
	// is gone.
	if d.cfg.Policy == CommitOnDispatch {
		d.ack(ctx, delivery.ID)
	}
}

func (d *Dispatcher) ack(ctx context.Context, id string) {
	if err := d.consumer.Ack(ctx, id); err != nil {
		d.cfg.Logger.Error("commit failed", "id", id, "err", err)
	}
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
