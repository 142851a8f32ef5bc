package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// newSettleClient returns a client with no channel; settling only reaches the
// channel for deliveries still pending on the current generation
func newSettleClient(generation uint64, pending ...uint64) *Client {
	c := &Client{
		config:     &Config{},
		generation: generation,
		pending:    make(map[uint64]struct{}),
	}
	for _, tag := range pending {
		c.pending[tag] = struct{}{}
	}
	return c
}

func TestClient_AckUnknownDeliveryIsNoop(t *testing.T) {
	c := newSettleClient(1)

	assert.NoError(t, c.Ack(1, 42))
}

func TestClient_AckTwiceIsNoop(t *testing.T) {
	c := newSettleClient(1)

	assert.NoError(t, c.Ack(1, 5))
	assert.NoError(t, c.Ack(1, 5))
}

func TestClient_RejectSettledDeliveryIsNoop(t *testing.T) {
	c := newSettleClient(1)

	assert.NoError(t, c.Ack(1, 5))
	assert.NoError(t, c.Reject(1, 5))
}

func TestClient_PreviousGenerationIsIgnored(t *testing.T) {
	// tag 1 is pending on generation 2; a handle from generation 1 with the
	// same tag must not settle it
	c := newSettleClient(2, 1)

	assert.NoError(t, c.Ack(1, 1))
	assert.NoError(t, c.Reject(1, 1))
	assert.Contains(t, c.pending, uint64(1))
}

func TestClient_PendingDeliveryNeedsConnection(t *testing.T) {
	c := newSettleClient(1, 3)

	assert.ErrorIs(t, c.Ack(1, 3), ErrNotConnected)
	assert.Contains(t, c.pending, uint64(3), "a failed settle keeps the delivery pending")
}

func TestClient_HasDeadLetter(t *testing.T) {
	assert.False(t, (&Client{config: &Config{}}).HasDeadLetter())
	assert.True(t, (&Client{config: &Config{DeadLetterExchange: "dlx", DeadLetterQueue: "dead"}}).HasDeadLetter())
}
