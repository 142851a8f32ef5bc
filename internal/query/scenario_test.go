package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/jobfeed/internal/ingest"
	"github.com/cuongbtq/jobfeed/internal/jobcache"
)

// replayQueue hands out its message on every Receive until acknowledged,
// then stays empty until Redeliver is called
type replayQueue struct {
	body    []byte
	pending bool
	acks    int
}

func (q *replayQueue) Receive(context.Context, int, time.Duration) ([]ingest.RawMessage, error) {
	if !q.pending {
		return nil, nil
	}
	return []ingest.RawMessage{{ID: "msg-1", Body: q.body, Handle: "h"}}, nil
}

func (q *replayQueue) Acknowledge(context.Context, string) error {
	q.pending = false
	q.acks++
	return nil
}

func (q *replayQueue) Redeliver() {
	q.pending = true
}

type pipeline struct {
	redis    *miniredis.Miniredis
	bucket   *jobcache.Manager
	ingester *ingest.Ingester
	queries  *Service
}

func newPipeline(t *testing.T, queue ingest.Queue, now time.Time) pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return now }

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket := jobcache.NewManager(jobcache.NewRedisStore(client), jobcache.ManagerConfig{Now: clock}, logger)
	decoder, err := ingest.NewDecoder(time.Hour, clock)
	require.NoError(t, err)

	return pipeline{
		redis:  mr,
		bucket: bucket,
		ingester: ingest.NewIngester(&ingest.Config{
			Logger:  logger,
			Queue:   queue,
			Decoder: decoder,
			Bucket:  bucket,
		}),
		queries: NewService(bucket, clock),
	}
}

func TestEndToEnd_IngestThenQuery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)

	body, err := json.Marshal(map[string]any{
		"timestamp": now.Format(time.RFC3339),
		"jobs": []map[string]any{
			{"id": "A", "title": "Platform Engineer", "skills": []string{"kubernetes"}, "listedAt": "2024-06-01T12:00:00Z"},
			{"id": "B", "title": "Data Analyst", "skills": []string{"sql"}, "listedAt": "2024-06-01T11:00:00Z"},
		},
	})
	require.NoError(t, err)

	queue := &replayQueue{body: body, pending: true}
	p := newPipeline(t, queue, now)

	_, err = p.ingester.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(p.queries.List(ctx)))

	queue.Redeliver()
	report, err := p.ingester.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 2, queue.acks)
	assert.Equal(t, []string{"A", "B"}, ids(p.queries.List(ctx)), "redelivery must not duplicate jobs")

	job, ok := p.queries.Get(ctx, "A")
	require.True(t, ok)
	assert.Equal(t, "Platform Engineer", job.Title)

	_, ok = p.queries.Get(ctx, "Z")
	assert.False(t, ok)

	assert.Equal(t, []string{"A"}, ids(p.queries.Search(ctx, "kubernetes")))
}

func TestQueries_DoNotMutateCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)
	p := newPipeline(t, &replayQueue{}, now)
	key := p.bucket.CurrentKey()

	jobs := sampleJobs()
	require.NoError(t, p.bucket.Merge(ctx, key, jobs))
	p.redis.FastForward(10 * time.Minute)

	before, err := p.redis.Get(key)
	require.NoError(t, err)
	ttlBefore := p.redis.TTL(key)

	for i := 0; i < 5; i++ {
		p.queries.List(ctx)
		p.queries.Search(ctx, fmt.Sprintf("term-%d", i))
		p.queries.Filter(ctx, Criteria{Location: "Germany"})
		p.queries.Stats(ctx)
		p.queries.Get(ctx, "go-berlin")
	}

	after, err := p.redis.Get(key)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, ttlBefore, p.redis.TTL(key))
	assert.Equal(t, []string{key}, p.redis.Keys())
}

func TestQueries_ServeEmptyWhenBucketMissing(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, &replayQueue{}, time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC))

	assert.Empty(t, p.queries.List(ctx))
	assert.Equal(t, Stats{}, p.queries.Stats(ctx))

	p.redis.Close()
	assert.Empty(t, p.queries.List(ctx), "store failures degrade to an empty result")
}
