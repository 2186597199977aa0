// Package stream defines the durable ordered topic abstraction connecting
// the pipeline components.
//
// Typical flow:
//  1. A producer publishes a payload to a topic and waits for the broker
//     acknowledgement.
//  2. A consumer bound to a topic and a consumer group polls for deliveries.
//  3. The read position is committed by acking deliveries, either explicitly
//     or on a periodic timer decoupled from processing (auto-ack).
//
// For the Redis Streams implementation, see the redis subpackage. An
// in-memory implementation suitable for tests lives in this package.
package stream

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Delivery is a single message handed to a consumer.
type Delivery struct {
	// Topic the message was read from.
	Topic string
	// ID is the broker-assigned position of the message within the topic.
	ID string
	// Payload is the opaque message body.
	Payload []byte
}

// Publisher appends payloads to a topic.
type Publisher interface {
	// Publish appends the payload to the topic and returns the assigned
	// message id once the broker has acknowledged the write.
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// Consumer reads deliveries from a single topic on behalf of a consumer group.
type Consumer interface {
	// Poll waits up to the configured poll interval for deliveries.
	// It returns ErrNoMessages when the wait elapses with nothing to read.
	Poll(ctx context.Context) ([]Delivery, error)
	// Ack commits the read position for the given delivery ids.
	Ack(ctx context.Context, ids ...string) error
	// Close releases the consumer's broker resources.
	Close() error
}

// Handler processes a single delivery.
type Handler interface {
	// Handle processes a single delivery and returns an error on failure.
	Handle(ctx context.Context, delivery Delivery) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, delivery Delivery) error

// Handle implements Handler.
func (fn HandlerFunc) Handle(ctx context.Context, delivery Delivery) error {
	return fn(ctx, delivery)
}

// Group identifies a consumer's read position within a topic. Consumers
// sharing a group name load-balance deliveries between them; consumers with
// distinct group names each observe every message.
type Group struct {
	// Name is the shared read-position identity.
	Name string
	// Consumer distinguishes instances within the group.
	Consumer string
}

// SharedGroup returns a load-balanced group identity. Every instance passing
// the same name shares one read position.
func SharedGroup(name string) Group {
	return Group{Name: name, Consumer: instanceName()}
}

// BroadcastGroup mints a unique group identity so the calling instance
// observes every message on the topic regardless of other instances.
func BroadcastGroup(prefix string) Group {
	name := prefix + "-" + uuid.NewString()

	return Group{Name: name, Consumer: name}
}

func (g Group) validate() error {
	if g.Name == "" {
		return ErrGroupRequired
	}

	return nil
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
