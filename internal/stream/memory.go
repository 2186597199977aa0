package stream

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process broker implementing the same delivery semantics as
// the Redis Streams backend: ordered topics, per-group read positions, and a
// pending set of delivered-but-unacked messages that can be claimed again.
type Memory struct {
	mu     sync.Mutex
	seq    int64
	topics map[string]*memTopic
}

type memTopic struct {
	entries []Delivery
	notify  chan struct{}
	groups  map[string]*memGroup
}

type memGroup struct {
	cursor  int
	pending map[string]Delivery
	order   []string
}

var _ Publisher = (*Memory)(nil)
var _ Consumer = (*MemoryConsumer)(nil)

// NewMemory returns an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{topics: make(map[string]*memTopic)}
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	if topic == "" {
		return "", ErrTopicRequired
	}
	if len(payload) == 0 {
		return "", ErrPayloadRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.topic(topic)
	m.seq++
	id := strconv.FormatInt(m.seq, 10) + "-0"
	body := make([]byte, len(payload))
	copy(body, payload)
	t.entries = append(t.entries, Delivery{Topic: topic, ID: id, Payload: body})

	close(t.notify)
	t.notify = make(chan struct{})

	return id, nil
}

// Subscribe binds a consumer to a topic and group.
func (m *Memory) Subscribe(topic string, group Group, opts ...ConsumerOption) (*MemoryConsumer, error) {
	if topic == "" {
		return nil, ErrTopicRequired
	}
	if err := group.validate(); err != nil {
		return nil, err
	}

	var cfg ConsumerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.WithDefaults()

	m.mu.Lock()
	t := m.topic(topic)
	if _, ok := t.groups[group.Name]; !ok {
		t.groups[group.Name] = &memGroup{pending: make(map[string]Delivery)}
	}
	m.mu.Unlock()

	c := &MemoryConsumer{
		broker: m,
		topic:  topic,
		group:  group,
		cfg:    cfg,
		done:   make(chan struct{}),
	}
	if cfg.AutoAckEvery > 0 {
		c.wg.Add(1)
		go c.autoAckLoop()
	}

	return c, nil
}

func (m *Memory) topic(name string) *memTopic {
	t, ok := m.topics[name]
	if !ok {
		t = &memTopic{notify: make(chan struct{}), groups: make(map[string]*memGroup)}
		m.topics[name] = t
	}

	return t
}

// MemoryConsumer reads from a Memory topic on behalf of a group.
type MemoryConsumer struct {
	broker *Memory
	topic  string
	group  Group
	cfg    ConsumerConfig

	mu       sync.Mutex
	unacked  []string
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
	closeOne sync.Once
}

// Poll implements Consumer. Deliveries advance the group's read cursor and
// enter the pending set until acked.
func (c *MemoryConsumer) Poll(ctx context.Context) ([]Delivery, error) {
	deadline := time.Now().Add(c.cfg.PollInterval)
	for {
		if c.isClosed() {
			return nil, ErrConsumerClosed
		}

		deliveries, notify := c.take()
		if len(deliveries) > 0 {
			c.cfg.Metrics.AddDelivered(len(deliveries))

			return deliveries, nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, ErrNoMessages
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-c.done:
			timer.Stop()

			return nil, ErrConsumerClosed
		case <-timer.C:
			return nil, ErrNoMessages
		case <-notify:
			timer.Stop()
		}
	}
}

func (c *MemoryConsumer) take() ([]Delivery, <-chan struct{}) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	t := c.broker.topic(c.topic)
	g := t.groups[c.group.Name]

	n := len(t.entries) - g.cursor
	if n <= 0 {
		return nil, t.notify
	}
	if n > c.cfg.BatchSize {
		n = c.cfg.BatchSize
	}

	deliveries := make([]Delivery, n)
	copy(deliveries, t.entries[g.cursor:g.cursor+n])
	g.cursor += n

	for _, d := range deliveries {
		g.pending[d.ID] = d
		g.order = append(g.order, d.ID)
	}

	if c.cfg.AutoAckEvery > 0 {
		c.mu.Lock()
		for _, d := range deliveries {
			c.unacked = append(c.unacked, d.ID)
		}
		c.mu.Unlock()
	}

	return deliveries, nil
}

// Ack implements Consumer.
func (c *MemoryConsumer) Ack(_ context.Context, ids ...string) error {
	if c.isClosed() {
		return ErrConsumerClosed
	}
	if len(ids) == 0 {
		return nil
	}

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	g := c.broker.topic(c.topic).groups[c.group.Name]
	acked := 0
	for _, id := range ids {
		if _, ok := g.pending[id]; ok {
			delete(g.pending, id)
			acked++
		}
	}
	g.order = compactOrder(g.order, g.pending)
	c.cfg.Metrics.AddAcked(acked)

	return nil
}

// ClaimPending redelivers every delivered-but-unacked message of the group,
// simulating the recovery a restarted instance performs.
func (c *MemoryConsumer) ClaimPending() []Delivery {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	g := c.broker.topic(c.topic).groups[c.group.Name]
	deliveries := make([]Delivery, 0, len(g.order))
	for _, id := range g.order {
		if d, ok := g.pending[id]; ok {
			deliveries = append(deliveries, d)
		}
	}
	c.cfg.Metrics.AddClaimed(len(deliveries))

	return deliveries
}

// PendingCount returns the number of delivered-but-unacked messages.
func (c *MemoryConsumer) PendingCount() int {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	return len(c.broker.topic(c.topic).groups[c.group.Name].pending)
}

// Close stops the auto-ack loop, flushing any collected acks first.
func (c *MemoryConsumer) Close() error {
	c.closeOne.Do(func() {
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

func (c *MemoryConsumer) autoAckLoop() {
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

func (c *MemoryConsumer) flushAcks() {
	c.mu.Lock()
	ids := c.unacked
	c.unacked = nil
	c.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	c.broker.mu.Lock()
	g := c.broker.topic(c.topic).groups[c.group.Name]
	acked := 0
	for _, id := range ids {
		if _, ok := g.pending[id]; ok {
			delete(g.pending, id)
			acked++
		}
	}
	g.order = compactOrder(g.order, g.pending)
	c.broker.mu.Unlock()

	c.cfg.Metrics.AddAcked(acked)
}

func (c *MemoryConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func compactOrder(order []string, pending map[string]Delivery) []string {
	kept := order[:0]
	for _, id := range order {
		if _, ok := pending[id]; ok {
			kept = append(kept, id)
		}
	}

	return kept
}
