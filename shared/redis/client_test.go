package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(&Config{URL: "redis://" + mr.Addr() + "/0", PoolSize: 4}, discardLogger())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 4, client.GetClient().Options().PoolSize)
	assert.NoError(t, client.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(&Config{URL: "http://localhost:6379"}, discardLogger())
	assert.ErrorContains(t, err, "failed to parse Redis URL")
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(&Config{URL: "redis://" + addr, DialTimeout: 100 * time.Millisecond}, discardLogger())
	assert.ErrorContains(t, err, "failed to ping Redis")
}
