// Package authorize consumes payment requests, invokes the authorization
// capability with bounded retry, persists the audit record, and publishes the
// outcome event.
package authorize

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cashflow/payment-gateway/internal/event"
)

// Authorizer is the authorization capability. A call either returns a note
// describing the approval or signals a failure; no distinction is made
// between transient and permanent failures.
type Authorizer interface {
	// Authorize attempts to authorize the request once.
	Authorize(ctx context.Context, req event.PaymentRequest) (string, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req event.PaymentRequest) (string, error)

// Authorize implements Authorizer.
func (fn AuthorizerFunc) Authorize(ctx context.Context, req event.PaymentRequest) (string, error) {
	return fn(ctx, req)
}

const successNote = "payment authorized"

const (
	defaultLatency     = time.Second
	defaultFailureRate = 0.25
)

// Simulator fakes a card-network call with configurable latency and failure
// probability. Randomness is injectable so tests stay deterministic.
type Simulator struct {
	latency     time.Duration
	failureRate float64

	mu   sync.Mutex
	rand *rand.Rand
}

var _ Authorizer = (*Simulator)(nil)

// SimulatorOption configures the Simulator.
type SimulatorOption func(*Simulator)

// WithLatency sets the simulated network latency per attempt.
func WithLatency(latency time.Duration) SimulatorOption {
	return func(s *Simulator) {
		s.latency = latency
	}
}

// WithFailureRate sets the probability of an attempt failing, in [0, 1].
func WithFailureRate(rate float64) SimulatorOption {
	return func(s *Simulator) {
		s.failureRate = rate
	}
}

// WithRand sets the randomness source.
func WithRand(r *rand.Rand) SimulatorOption {
	return func(s *Simulator) {
		s.rand = r
	}
}

// NewSimulator constructs a Simulator with the default behavior: one second
// of latency and a 25% failure rate.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		latency:     defaultLatency,
		failureRate: defaultFailureRate,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Authorize implements Authorizer.
func (s *Simulator) Authorize(ctx context.Context, _ event.PaymentRequest) (string, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	failed := s.rand.Float64() < s.failureRate
	s.mu.Unlock()

	if failed {
		return "", ErrProviderUnavailable
	}

	return successNote, nil
}
