package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/jobfeed/shared/rabbitmq"
)

type settledDelivery struct {
	generation, tag uint64
}

// stubDeliveries stands in for rabbitmq.Client: it returns a fixed batch and
// records settlements
type stubDeliveries struct {
	deliveries []rabbitmq.Delivery
	err        error
	deadLetter bool
	acked      []settledDelivery
	rejected   []settledDelivery
}

func (s *stubDeliveries) Receive(context.Context, int, time.Duration) ([]rabbitmq.Delivery, error) {
	return s.deliveries, s.err
}

func (s *stubDeliveries) Ack(generation, tag uint64) error {
	s.acked = append(s.acked, settledDelivery{generation, tag})
	return nil
}

func (s *stubDeliveries) Reject(generation, tag uint64) error {
	s.rejected = append(s.rejected, settledDelivery{generation, tag})
	return nil
}

func (s *stubDeliveries) HasDeadLetter() bool {
	return s.deadLetter
}

func TestRabbitMQQueue_HandlesCarryChannelGeneration(t *testing.T) {
	ctx := context.Background()
	source := &stubDeliveries{deliveries: []rabbitmq.Delivery{
		{Generation: 1, Tag: 1, MessageID: "m1", Body: []byte("a")},
		{Generation: 2, Tag: 1, MessageID: "m2", Body: []byte("b")},
	}}
	q := &RabbitMQQueue{client: source}

	messages, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "1:1", messages[0].Handle)
	assert.Equal(t, "2:1", messages[1].Handle)
	assert.NotEqual(t, messages[0].Handle, messages[1].Handle, "same tag on a new channel must not collide")

	require.NoError(t, q.Acknowledge(ctx, messages[0].Handle))
	assert.Equal(t, []settledDelivery{{1, 1}}, source.acked)
}

func TestRabbitMQQueue_PartialBatchSurvivesError(t *testing.T) {
	source := &stubDeliveries{
		deliveries: []rabbitmq.Delivery{{Generation: 1, Tag: 7, MessageID: "m7"}},
		err:        context.Canceled,
	}
	q := &RabbitMQQueue{client: source}

	messages, err := q.Receive(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "1:7", messages[0].Handle)
}

func TestRabbitMQQueue_ReceiveError(t *testing.T) {
	q := &RabbitMQQueue{client: &stubDeliveries{err: errors.New("channel closed")}}

	_, err := q.Receive(context.Background(), 10, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestRabbitMQQueue_DeadLetter(t *testing.T) {
	ctx := context.Background()

	withDLX := &stubDeliveries{deadLetter: true}
	require.NoError(t, (&RabbitMQQueue{client: withDLX}).DeadLetter(ctx, "3:9"))
	assert.Equal(t, []settledDelivery{{3, 9}}, withDLX.rejected)
	assert.Empty(t, withDLX.acked)

	withoutDLX := &stubDeliveries{}
	require.NoError(t, (&RabbitMQQueue{client: withoutDLX}).DeadLetter(ctx, "3:9"))
	assert.Equal(t, []settledDelivery{{3, 9}}, withoutDLX.acked)
	assert.Empty(t, withoutDLX.rejected)
}

func TestRabbitMQQueue_InvalidHandle(t *testing.T) {
	source := &stubDeliveries{}
	q := &RabbitMQQueue{client: source}

	for _, handle := range []string{"", "7", "x:1", "1:y", "1:2:3"} {
		assert.Error(t, q.Acknowledge(context.Background(), handle), handle)
	}
	assert.Empty(t, source.acked)
}
