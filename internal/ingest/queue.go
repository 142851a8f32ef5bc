package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/jobfeed/shared/rabbitmq"
)

// RawMessage is an undecoded queue message and the handle that settles it
type RawMessage struct {
	ID     string
	Body   []byte
	Handle string
}

// Queue delivers pending messages on demand with at-least-once semantics.
// Acknowledge removes a message; acknowledging an already removed message is a no-op.
type Queue interface {
	Receive(ctx context.Context, maxMessages int, waitTime time.Duration) ([]RawMessage, error)
	Acknowledge(ctx context.Context, handle string) error
}

// DeadLetterer is implemented by queues that can divert a message to a
// dead-letter destination instead of dropping it
type DeadLetterer interface {
	DeadLetter(ctx context.Context, handle string) error
}

// RabbitMQQueue adapts a RabbitMQ client to Queue. Handles are
// "<channel generation>:<delivery tag>" so a handle never settles a delivery
// of a later channel that reuses the same tag.
type RabbitMQQueue struct {
	client deliverySource
}

// deliverySource is the part of rabbitmq.Client the adapter uses
type deliverySource interface {
	Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]rabbitmq.Delivery, error)
	Ack(generation, tag uint64) error
	Reject(generation, tag uint64) error
	HasDeadLetter() bool
}

// NewRabbitMQQueue wraps client
func NewRabbitMQQueue(client *rabbitmq.Client) *RabbitMQQueue {
	return &RabbitMQQueue{client: client}
}

func (q *RabbitMQQueue) Receive(ctx context.Context, maxMessages int, waitTime time.Duration) ([]RawMessage, error) {
	deliveries, err := q.client.Receive(ctx, maxMessages, waitTime)
	if err != nil && len(deliveries) == 0 {
		return nil, fmt.Errorf("failed to receive from RabbitMQ: %w", err)
	}
	// a partial batch is handed on even alongside an error

	messages := make([]RawMessage, len(deliveries))
	for i, d := range deliveries {
		messages[i] = RawMessage{
			ID:     d.MessageID,
			Body:   d.Body,
			Handle: deliveryHandle(d.Generation, d.Tag),
		}
	}
	return messages, nil
}

func (q *RabbitMQQueue) Acknowledge(_ context.Context, handle string) error {
	generation, tag, err := parseDeliveryHandle(handle)
	if err != nil {
		return err
	}
	return q.client.Ack(generation, tag)
}

// DeadLetter rejects the delivery without requeue. It falls back to a plain
// acknowledgement when no dead-letter exchange is configured.
func (q *RabbitMQQueue) DeadLetter(ctx context.Context, handle string) error {
	if !q.client.HasDeadLetter() {
		return q.Acknowledge(ctx, handle)
	}

	generation, tag, err := parseDeliveryHandle(handle)
	if err != nil {
		return err
	}
	return q.client.Reject(generation, tag)
}

func deliveryHandle(generation, tag uint64) string {
	return strconv.FormatUint(generation, 10) + ":" + strconv.FormatUint(tag, 10)
}

func parseDeliveryHandle(handle string) (generation, tag uint64, err error) {
	gen, t, ok := strings.Cut(handle, ":")
	if ok {
		generation, err = strconv.ParseUint(gen, 10, 64)
	}
	if ok && err == nil {
		tag, err = strconv.ParseUint(t, 10, 64)
	}
	if !ok || err != nil {
		return 0, 0, fmt.Errorf("invalid delivery handle %q", handle)
	}
	return generation, tag, nil
}
