package redis

import "github.com/cashflow/payment-gateway/internal/stream"

type publisherConfig struct {
	Logger  stream.Logger
	Metrics stream.Metrics
}

func (c publisherConfig) withDefaults() publisherConfig {
	if c.Logger == nil {
		c.Logger = stream.NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = stream.NopMetrics{}
	}

	return c
}

// PublisherOption configures Publisher behavior.
type PublisherOption func(*publisherConfig)

// WithPublisherLogger sets the publisher logger.
func WithPublisherLogger(logger stream.Logger) PublisherOption {
	return func(c *publisherConfig) {
		c.Logger = logger
	}
}

// WithPublisherMetrics sets the publisher metrics recorder.
func WithPublisherMetrics(metrics stream.Metrics) PublisherOption {
	return func(c *publisherConfig) {
		c.Metrics = metrics
	}
}
