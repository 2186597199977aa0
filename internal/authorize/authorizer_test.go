package authorize

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestSimulatorDeterministicOutcomes(t *testing.T) {
	sim := NewSimulator(
		WithLatency(0),
		WithFailureRate(0.25),
		WithRand(rand.New(rand.NewSource(1))),
	)

	successes, failures := 0, 0
	for i := 0; i < 1000; i++ {
		note, err := sim.Authorize(context.Background(), testRequest())
		switch {
		case err == nil:
			if note != successNote {
				t.Fatalf("unexpected note %q", note)
			}
			successes++
		case errors.Is(err, ErrProviderUnavailable):
			failures++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes == 0 || failures == 0 {
		t.Fatalf("expected both outcomes, got %d successes and %d failures", successes, failures)
	}
	if failures < 200 || failures > 300 {
		t.Fatalf("failure rate drifted from 25%%: %d failures out of 1000", failures)
	}
}

func TestSimulatorAlwaysFails(t *testing.T) {
	sim := NewSimulator(WithLatency(0), WithFailureRate(1))

	if _, err := sim.Authorize(context.Background(), testRequest()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSimulatorCanceledDuringLatency(t *testing.T) {
	sim := NewSimulator(WithLatency(time.Minute), WithFailureRate(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sim.Authorize(ctx, testRequest()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
