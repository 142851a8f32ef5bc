package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errQueueDown = errors.New("queue unreachable")

// fakeQueue is an in-memory at-least-once queue. Received messages stay in
// flight until acknowledged; Redeliver returns them to the queue.
type fakeQueue struct {
	mu         sync.Mutex
	pending    []RawMessage
	inFlight   map[string]RawMessage
	acked      []string
	nextHandle int

	receiveErr error
	ackErr     error
	receives   int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{inFlight: map[string]RawMessage{}}
}

func (q *fakeQueue) push(id string, body []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, RawMessage{ID: id, Body: body})
}

func (q *fakeQueue) Receive(_ context.Context, maxMessages int, _ time.Duration) ([]RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.receives++
	if q.receiveErr != nil {
		return nil, q.receiveErr
	}

	n := min(maxMessages, len(q.pending))
	batch := make([]RawMessage, 0, n)
	for _, msg := range q.pending[:n] {
		q.nextHandle++
		msg.Handle = fmt.Sprintf("h-%d", q.nextHandle)
		q.inFlight[msg.Handle] = msg
		batch = append(batch, msg)
	}
	q.pending = q.pending[n:]
	return batch, nil
}

func (q *fakeQueue) Acknowledge(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ackErr != nil {
		return q.ackErr
	}
	if msg, ok := q.inFlight[handle]; ok {
		q.acked = append(q.acked, msg.ID)
		delete(q.inFlight, handle)
	}
	return nil
}

// Redeliver puts every unacknowledged message back in the queue
func (q *fakeQueue) Redeliver() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for handle, msg := range q.inFlight {
		q.pending = append(q.pending, RawMessage{ID: msg.ID, Body: msg.Body})
		delete(q.inFlight, handle)
	}
}

func (q *fakeQueue) ackedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

func (q *fakeQueue) receiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.receives
}

// deadLetterQueue records dead-lettered messages separately from acknowledged ones
type deadLetterQueue struct {
	*fakeQueue
	deadLettered []string
}

func (q *deadLetterQueue) DeadLetter(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg, ok := q.inFlight[handle]; ok {
		q.deadLettered = append(q.deadLettered, msg.ID)
		delete(q.inFlight, handle)
	}
	return nil
}

type jobPayload map[string]any

func messageBody(t *testing.T, timestamp time.Time, jobs ...jobPayload) []byte {
	t.Helper()
	if jobs == nil {
		jobs = []jobPayload{}
	}
	body, err := json.Marshal(map[string]any{
		"timestamp": timestamp.Format(time.RFC3339Nano),
		"jobs":      jobs,
	})
	require.NoError(t, err)
	return body
}

func payload(id, title string, skills ...string) jobPayload {
	if skills == nil {
		skills = []string{}
	}
	return jobPayload{
		"id":       id,
		"title":    title,
		"skills":   skills,
		"listedAt": "2024-06-01T13:00:00Z",
	}
}
