package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("broker is closed")

// ErrSubscriberFull is returned by non-blocking brokers when a consumer group
// had no member with buffer space and the message was dropped for it.
var ErrSubscriberFull = errors.New("subscriber buffer full")

// Broker defines the interface for message brokers
type Broker interface {
	// Publish encodes message as JSON and appends it to channel.
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe joins group on channel. Every group receives each message
	// once; members of the same group share the messages between them. The
	// returned channel is closed when ctx is cancelled or the broker closes.
	Subscribe(ctx context.Context, channel, group string) (<-chan Delivery, error)
	Close() error
}

// Delivery is one message handed to a group member. Ack marks it processed;
// an unacknowledged message may be redelivered to another member.
type Delivery struct {
	Payload []byte
	ack     func(ctx context.Context) error
}

func NewDelivery(payload []byte, ack func(ctx context.Context) error) Delivery {
	return Delivery{Payload: payload, ack: ack}
}

func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}
