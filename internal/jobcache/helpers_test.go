package jobcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/jobfeed/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func job(id, title string) domain.Job {
	return domain.Job{
		ID:       id,
		Title:    title,
		ListedAt: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
	}
}

// plainStore hides any Updater implementation of the wrapped store
type plainStore struct {
	inner Store
}

func (s plainStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, key)
}

func (s plainStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.inner.Set(ctx, key, value, ttl)
}

func (s plainStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

type failingStore struct{}

var errUnreachable = errors.New("connection refused")

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errUnreachable
}

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errUnreachable
}

func (failingStore) Delete(context.Context, string) error {
	return errUnreachable
}
