// Package redis implements the stream broker on Redis Streams.
//
// Topics map to streams, consumer groups map to XGROUPs, and the read
// position is committed with XACK. Deliveries that were read but never acked
// stay in the group's pending entries list and are claimed back with
// XAUTOCLAIM once they sit idle, which is what makes an unacked delivery
// reappear after a crash.
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/cashflow/payment-gateway/internal/stream"
)

const (
	payloadField  = "payload"
	groupStart    = "0"
	claimCursorAt = "0-0"
	ackTimeout    = 5 * time.Second
)

// Publisher appends payloads to Redis streams.
type Publisher struct {
	client  goredis.Cmdable
	logger  stream.Logger
	metrics stream.Metrics
}

var _ stream.Publisher = (*Publisher)(nil)

// NewPublisher constructs a Publisher.
func NewPublisher(client goredis.Cmdable, opts ...PublisherOption) (*Publisher, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	var cfg publisherConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Publisher{client: client, logger: cfg.Logger, metrics: cfg.Metrics}, nil
}

// Publish implements stream.Publisher. It returns once XADD is acknowledged.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	if topic == "" {
		return "", stream.ErrTopicRequired
	}
	if len(payload) == 0 {
		return "", stream.ErrPayloadRequired
	}

	id, err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{payloadField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream redis: xadd failed: %w", err)
	}

	p.metrics.AddPublished(1)
	p.logger.Debug("published message", "topic", topic, "id", id)

	return id, nil
}

// Consumer reads a Redis stream on behalf of a consumer group.
type Consumer struct {
	client goredis.Cmdable
	topic  string
	group  stream.Group
	cfg    stream.ConsumerConfig

	mu      sync.Mutex
	unacked []string
	closed  bool

	claimCursor string
	lastClaim   time.Time

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ stream.Consumer = (*Consumer)(nil)

// NewConsumer binds a consumer to a stream and group, creating the group at
// the start of the stream if it does not exist yet.
func NewConsumer(ctx context.Context, client goredis.Cmdable, topic string, group stream.Group, opts ...stream.ConsumerOption) (*Consumer, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if topic == "" {
		return nil, stream.ErrTopicRequired
	}
	if group.Name == "" {
		return nil, stream.ErrGroupRequired
	}

	var cfg stream.ConsumerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.WithDefaults()

	err := client.XGroupCreateMkStream(ctx, topic, group.Name, groupStart).Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("stream redis: create group failed: %w", err)
	}

	c := &Consumer{
		client:      client,
		topic:       topic,
		group:       group,
		cfg:         cfg,
		claimCursor: claimCursorAt,
		done:        make(chan struct{}),
	}
	if cfg.AutoAckEvery > 0 {
		c.wg.Add(1)
		go c.autoAckLoop()
	}

	return c, nil
}

// Poll implements stream.Consumer. Abandoned deliveries of the group are
// claimed before new messages are read.
func (c *Consumer) Poll(ctx context.Context) ([]stream.Delivery, error) {
	if c.isClosed() {
		return nil, stream.ErrConsumerClosed
	}

	if claimed, err := c.maybeClaim(ctx); err != nil {
		return nil, err
	} else if len(claimed) > 0 {
		return claimed, nil
	}

	res, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    c.group.Name,
		Consumer: c.group.Consumer,
		Streams:  []string{c.topic, ">"},
		Count:    int64(c.cfg.BatchSize),
		Block:    c.cfg.PollInterval,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, stream.ErrNoMessages
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("stream redis: xreadgroup failed: %w", err)
	}

	var deliveries []stream.Delivery
	for _, xs := range res {
		for _, msg := range xs.Messages {
			deliveries = append(deliveries, c.toDelivery(msg))
		}
	}
	if len(deliveries) == 0 {
		return nil, stream.ErrNoMessages
	}

	c.recordDelivered(deliveries)

	return deliveries, nil
}

// Ack implements stream.Consumer.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if c.isClosed() {
		return stream.ErrConsumerClosed
	}
	if len(ids) == 0 {
		return nil
	}

	if err := c.client.XAck(ctx, c.topic, c.group.Name, ids...).Err(); err != nil {
		return fmt.Errorf("stream redis: xack failed: %w", err)
	}
	c.cfg.Metrics.AddAcked(len(ids))

	return nil
}

// Close stops the auto-ack loop, flushing collected acks first.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		if c.cfg.AutoAckEvery > 0 {
			c.flushAcks()
		}
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	c.wg.Wait()

	return nil
}

func (c *Consumer) maybeClaim(ctx context.Context) ([]stream.Delivery, error) {
	if c.cfg.ClaimMinIdle <= 0 {
		return nil, nil
	}

	now := c.cfg.Clock.Now()
	if !c.lastClaim.IsZero() && now.Sub(c.lastClaim) < c.cfg.ClaimMinIdle {
		return nil, nil
	}
	c.lastClaim = now

	msgs, next, err := c.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   c.topic,
		Group:    c.group.Name,
		Consumer: c.group.Consumer,
		MinIdle:  c.cfg.ClaimMinIdle,
		Start:    c.claimCursor,
		Count:    int64(c.cfg.BatchSize),
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("stream redis: xautoclaim failed: %w", err)
	}
	c.claimCursor = next

	if len(msgs) == 0 {
		return nil, nil
	}

	deliveries := make([]stream.Delivery, 0, len(msgs))
	for _, msg := range msgs {
		deliveries = append(deliveries, c.toDelivery(msg))
	}
	c.cfg.Metrics.AddClaimed(len(deliveries))
	c.cfg.Logger.Warn("claimed abandoned deliveries", "topic", c.topic, "group", c.group.Name, "count", len(deliveries))
	c.recordDelivered(deliveries)

	return deliveries, nil
}

func (c *Consumer) toDelivery(msg goredis.XMessage) stream.Delivery {
	var payload []byte
	if v, ok := msg.Values[payloadField].(string); ok {
		payload = []byte(v)
	}

	return stream.Delivery{Topic: c.topic, ID: msg.ID, Payload: payload}
}

func (c *Consumer) recordDelivered(deliveries []stream.Delivery) {
	c.cfg.Metrics.AddDelivered(len(deliveries))
	if c.cfg.AutoAckEvery <= 0 {
		return
	}

	c.mu.Lock()
	for _, d := range deliveries {
		c.unacked = append(c.unacked, d.ID)
	}
	c.mu.Unlock()
}

func (c *Consumer) autoAckLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.AutoAckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.flushAcks()
		}
	}
}

func (c *Consumer) flushAcks() {
	c.mu.Lock()
	ids := c.unacked
	c.unacked = nil
	c.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	if err := c.client.XAck(ctx, c.topic, c.group.Name, ids...).Err(); err != nil {
		c.cfg.Logger.Error("auto-ack flush failed", "topic", c.topic, "group", c.group.Name, "err", err)
		return
	}
	c.cfg.Metrics.AddAcked(len(ids))
}

func (c *Consumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
