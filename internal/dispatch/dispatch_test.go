package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/stream"
)

// blockingSender parks every delivery until released.
type blockingSender struct {
	mu      sync.Mutex
	calls   int
	active  int
	maxSeen int
	err     error
	release chan struct{}
}

func newBlockingSender() *blockingSender {
	return &blockingSender{release: make(chan struct{})}
}

func (s *blockingSender) Deliver(ctx context.Context, _ event.PaymentOutcome) error {
	s.mu.Lock()
	s.calls++
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	select {
	case <-s.release:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func (s *blockingSender) maxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.maxSeen
}

type countingDispatchMetrics struct {
	mu        sync.Mutex
	delivered int
	failed    int
}

func (m *countingDispatchMetrics) AddDelivered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered += n
}

func (m *countingDispatchMetrics) AddFailed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed += n
}

func (m *countingDispatchMetrics) snapshot() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.delivered, m.failed
}

func publishOutcome(t *testing.T, broker *stream.Memory, outcome event.PaymentOutcome) {
	t.Helper()
	payload, err := json.Marshal(outcome)
	if err != nil {
		t.Fatalf("marshal outcome: %v", err)
	}
	if _, err := broker.Publish(context.Background(), event.TopicPaymentOutcomes, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func testOutcome() event.PaymentOutcome {
	return event.PaymentOutcome{
		TransactionID: uuid.New(),
		OrderID:       "ORD-1",
		Status:        event.StatusSuccess,
		WebhookURL:    "https://merchant.test/hook",
	}
}

func newOutcomeConsumer(t *testing.T, broker *stream.Memory) *stream.MemoryConsumer {
	t.Helper()
	consumer, err := broker.Subscribe(event.TopicPaymentOutcomes, stream.BroadcastGroup("webhook-dispatcher"),
		stream.WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = consumer.Close() })

	return consumer
}

func TestCommitOnDispatchAcksBeforeDeliveryResolves(t *testing.T) {
	broker := stream.NewMemory()
	consumer := newOutcomeConsumer(t, broker)
	sender := newBlockingSender()
	publishOutcome(t, broker, testOutcome())

	dispatcher := NewDispatcher(consumer, sender)

	if _, err := dispatcher.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	// The webhook call is still parked, yet the read position has already
	// moved on. A crash at this instant loses the notification.
	if pending := consumer.PendingCount(); pending != 0 {
		t.Fatalf("expected commit before delivery resolved, %d still pending", pending)
	}

	close(sender.release)
	dispatcher.Wait()
	if sender.callCount() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sender.callCount())
	}
}

func TestCommitAfterDeliveryHoldsAckUntilResolved(t *testing.T) {
	broker := stream.NewMemory()
	consumer := newOutcomeConsumer(t, broker)
	sender := newBlockingSender()
	publishOutcome(t, broker, testOutcome())

	dispatcher := NewDispatcher(consumer, sender, WithCommitPolicy(CommitAfterDelivery))

	if _, err := dispatcher.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if pending := consumer.PendingCount(); pending != 1 {
		t.Fatalf("expected the delivery to stay pending while in flight, got %d", pending)
	}

	close(sender.release)
	dispatcher.Wait()
	if pending := consumer.PendingCount(); pending != 0 {
		t.Fatalf("expected commit after delivery resolved, %d still pending", pending)
	}
}

func TestCommitAfterDeliveryLeavesInterruptedDeliveryPending(t *testing.T) {
	broker := stream.NewMemory()
	consumer := newOutcomeConsumer(t, broker)
	sender := newBlockingSender()
	publishOutcome(t, broker, testOutcome())

	dispatcher := NewDispatcher(consumer, sender, WithCommitPolicy(CommitAfterDelivery))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := dispatcher.ProcessOnce(ctx); err != nil {
		t.Fatalf("process once: %v", err)
	}

	// Shutdown arrives while the webhook call is still parked. The attempt
	// never resolved, so the delivery must stay pending for reclaim rather
	// than being committed and lost.
	cancel()
	dispatcher.Wait()

	if pending := consumer.PendingCount(); pending != 1 {
		t.Fatalf("expected the interrupted delivery to stay pending, got %d", pending)
	}
}

func TestMalformedOutcomeAckedAndSkipped(t *testing.T) {
	broker := stream.NewMemory()
	consumer := newOutcomeConsumer(t, broker)
	sender := newBlockingSender()
	close(sender.release)

	if _, err := broker.Publish(context.Background(), event.TopicPaymentOutcomes, []byte("{not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	dispatcher := NewDispatcher(consumer, sender)

	if _, err := dispatcher.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	dispatcher.Wait()

	if sender.callCount() != 0 {
		t.Fatalf("sender must not be called for malformed payloads")
	}
	if pending := consumer.PendingCount(); pending != 0 {
		t.Fatalf("malformed payload must still be committed, %d pending", pending)
	}
}

func TestExhaustedDeliveryLoggedOnly(t *testing.T) {
	broker := stream.NewMemory()
	consumer := newOutcomeConsumer(t, broker)
	sender := newBlockingSender()
	sender.err = errors.New("endpoint down")
	close(sender.release)
	publishOutcome(t, broker, testOutcome())

	metrics := &countingDispatchMetrics{}
	dispatcher := NewDispatcher(consumer, sender, WithMetrics(metrics))

	if _, err := dispatcher.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	dispatcher.Wait()

	delivered, failed := metrics.snapshot()
	if delivered != 0 || failed != 1 {
		t.Fatalf("expected 0 delivered / 1 failed, got %d / %d", delivered, failed)
	}
	// Exhaustion has no further effect: the message stays committed and the
	// outcome is simply lost to the merchant.
	if pending := consumer.PendingCount(); pending != 0 {
		t.Fatalf("expected no pending deliveries, got %d", pending)
	}
}

func TestDeliveriesRunConcurrently(t *testing.T) {
	broker := stream.NewMemory()
	consumer, err := broker.Subscribe(event.TopicPaymentOutcomes, stream.BroadcastGroup("webhook-dispatcher"),
		stream.WithPollInterval(10*time.Millisecond), stream.WithBatchSize(8))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = consumer.Close() })

	sender := newBlockingSender()
	for i := 0; i < 8; i++ {
		publishOutcome(t, broker, testOutcome())
	}

	dispatcher := NewDispatcher(consumer, sender)

	if _, err := dispatcher.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	// All eight deliveries must be parked inside the sender at once; the
	// dispatcher never throttles.
	deadline := time.Now().Add(time.Second)
	for sender.maxConcurrent() < 8 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 8 concurrent deliveries, saw %d", sender.maxConcurrent())
		}
		time.Sleep(time.Millisecond)
	}

	close(sender.release)
	dispatcher.Wait()
}

func TestRunAbandonsInFlightOnCancel(t *testing.T) {
	broker := stream.NewMemory()
	consumer := newOutcomeConsumer(t, broker)
	sender := newBlockingSender()
	publishOutcome(t, broker, testOutcome())

	dispatcher := NewDispatcher(consumer, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- dispatcher.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for sender.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("delivery never started")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return while a delivery was in flight")
	}
}
