package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobfeed/internal/domain"
)

const (
	DefaultBatchSize = 10
	DefaultWaitTime  = 5 * time.Second
)

// Bucket is the write side of the bucket cache manager
type Bucket interface {
	CurrentKey() string
	Merge(ctx context.Context, key string, jobs []domain.Job) error
}

// CycleReport summarises one ingestion cycle
type CycleReport struct {
	Received      int `json:"received"`
	Accepted      int `json:"accepted"`
	Stale         int `json:"stale"`
	Malformed     int `json:"malformed"`
	MergeFailures int `json:"merge_failures"`
	AckFailures   int `json:"ack_failures"`
	JobsMerged    int `json:"jobs_merged"`
}

// Config holds ingester configuration
type Config struct {
	Logger    *slog.Logger
	Queue     Queue
	Decoder   *Decoder
	Bucket    Bucket
	BatchSize int
	WaitTime  time.Duration
}

// Ingester drains one batch from the queue into the current bucket per cycle
type Ingester struct {
	logger    *slog.Logger
	queue     Queue
	decoder   *Decoder
	bucket    Bucket
	batchSize int
	waitTime  time.Duration
}

// NewIngester creates a new ingester instance
func NewIngester(cfg *Config) *Ingester {
	i := &Ingester{
		logger:    cfg.Logger,
		queue:     cfg.Queue,
		decoder:   cfg.Decoder,
		bucket:    cfg.Bucket,
		batchSize: cfg.BatchSize,
		waitTime:  cfg.WaitTime,
	}
	if i.batchSize <= 0 {
		i.batchSize = DefaultBatchSize
	}
	if i.waitTime <= 0 {
		i.waitTime = DefaultWaitTime
	}
	return i
}

// RunCycle pulls one bounded batch and settles every message in it. Only a
// receive failure is returned; per-message failures are logged and counted.
func (i *Ingester) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	var report CycleReport

	messages, err := i.queue.Receive(ctx, i.batchSize, i.waitTime)
	if err != nil {
		cyclesTotal.WithLabelValues("receive_failed").Inc()
		cycleDuration.Observe(time.Since(start).Seconds())
		i.logger.Error("Failed to receive messages, aborting cycle",
			slog.String("error", err.Error()),
		)
		return report, fmt.Errorf("failed to receive messages: %w", err)
	}

	report.Received = len(messages)
	for _, msg := range messages {
		i.handle(ctx, msg, &report)
	}

	cyclesTotal.WithLabelValues("completed").Inc()
	cycleDuration.Observe(time.Since(start).Seconds())

	if report.Received > 0 {
		i.logger.Info("Ingestion cycle completed",
			slog.Int("received", report.Received),
			slog.Int("accepted", report.Accepted),
			slog.Int("stale", report.Stale),
			slog.Int("malformed", report.Malformed),
			slog.Int("jobs_merged", report.JobsMerged),
			slog.Duration("duration", time.Since(start)),
		)
	}

	return report, nil
}

func (i *Ingester) handle(ctx context.Context, msg RawMessage, report *CycleReport) {
	decoded, err := i.decoder.Decode(msg.Body)
	switch {
	case errors.Is(err, domain.ErrStaleMessage):
		report.Stale++
		messagesTotal.WithLabelValues(outcomeStale).Inc()
		i.logger.Debug("Dropping stale message",
			slog.String("message_id", msg.ID),
			slog.String("reason", err.Error()),
		)
		i.settle(ctx, msg, report, i.queue.Acknowledge)
		return

	case err != nil:
		report.Malformed++
		messagesTotal.WithLabelValues(outcomeMalformed).Inc()
		i.logger.Error("Dropping malformed message",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		if dl, ok := i.queue.(DeadLetterer); ok {
			i.settle(ctx, msg, report, dl.DeadLetter)
			return
		}
		i.settle(ctx, msg, report, i.queue.Acknowledge)
		return
	}

	report.Accepted++
	messagesTotal.WithLabelValues(outcomeAccepted).Inc()

	key := i.bucket.CurrentKey()
	if err := i.bucket.Merge(ctx, key, decoded.Jobs); err != nil {
		// Redelivery cannot fix a merge failure, so the message is still removed
		report.MergeFailures++
		mergeFailuresTotal.Inc()
		i.logger.Error("Failed to merge jobs",
			slog.String("message_id", msg.ID),
			slog.String("key", key),
			slog.Int("jobs", len(decoded.Jobs)),
			slog.String("error", err.Error()),
		)
	} else {
		report.JobsMerged += len(decoded.Jobs)
		jobsMergedTotal.Add(float64(len(decoded.Jobs)))
	}

	i.settle(ctx, msg, report, i.queue.Acknowledge)
}

func (i *Ingester) settle(ctx context.Context, msg RawMessage, report *CycleReport, fn func(context.Context, string) error) {
	if err := fn(ctx, msg.Handle); err != nil {
		report.AckFailures++
		ackFailuresTotal.Inc()
		i.logger.Error("Failed to acknowledge message",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}
}
