package stream

import "time"

const (
	defaultBatchSize    = 10
	defaultPollInterval = time.Second
	defaultClaimMinIdle = time.Minute
)

// ConsumerConfig defines how a consumer polls and commits its read position.
type ConsumerConfig struct {
	// BatchSize is the maximum number of deliveries returned per poll.
	BatchSize int
	// PollInterval bounds the wait of an empty poll.
	PollInterval time.Duration
	// AutoAckEvery enables periodic auto-commit of delivered messages,
	// decoupled from handler completion. Zero keeps commits manual.
	AutoAckEvery time.Duration
	// ClaimMinIdle is the idle threshold after which deliveries abandoned by
	// a crashed instance of the same group are claimed for redelivery.
	// Zero disables claiming.
	ClaimMinIdle time.Duration
	Clock        Clock
	Logger       Logger
	Metrics      Metrics
}

// WithDefaults fills unset fields with defaults.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

// ConsumerOption configures consumer behavior.
type ConsumerOption func(*ConsumerConfig)

// WithBatchSize sets the maximum number of deliveries per poll.
func WithBatchSize(size int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the bounded wait of an empty poll.
func WithPollInterval(interval time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.PollInterval = interval
	}
}

// WithAutoAck enables periodic auto-commit at the given interval.
func WithAutoAck(interval time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.AutoAckEvery = interval
	}
}

// WithClaimMinIdle sets the idle threshold for claiming abandoned deliveries.
func WithClaimMinIdle(minIdle time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.ClaimMinIdle = minIdle
	}
}

// WithClock sets the consumer clock.
func WithClock(clock Clock) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the consumer logger.
func WithLogger(logger Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the consumer metrics recorder.
func WithMetrics(metrics Metrics) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Metrics = metrics
	}
}
