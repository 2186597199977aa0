package stream

// Metrics captures broker-level telemetry.
type Metrics interface {
	// AddPublished increments the count of acknowledged publishes.
	AddPublished(count int)
	// AddDelivered increments the count of delivered messages.
	AddDelivered(count int)
	// AddAcked increments the count of committed deliveries.
	AddAcked(count int)
	// AddClaimed increments the count of redelivered (claimed) messages.
	AddClaimed(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// AddPublished implements Metrics.
func (NopMetrics) AddPublished(int) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddAcked implements Metrics.
func (NopMetrics) AddAcked(int) {}

// AddClaimed implements Metrics.
func (NopMetrics) AddClaimed(int) {}
