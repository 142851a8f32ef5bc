package jobcache

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cuongbtq/jobfeed/internal/domain"
)

const (
	// DefaultKeyPrefix namespaces bucket keys, e.g. jobs:2024-06-01T14:00:00Z
	DefaultKeyPrefix = "jobs"
	// DefaultBucketTTL is how long a bucket survives after its last write
	DefaultBucketTTL = time.Hour
	// DefaultMaxCASRetries bounds optimistic merge attempts on conflict
	DefaultMaxCASRetries = 5
)

// ManagerConfig holds bucket manager settings. Zero values fall back to defaults.
type ManagerConfig struct {
	KeyPrefix     string
	TTL           time.Duration
	MaxCASRetries int
	Now           func() time.Time
}

// Manager owns bucket addressing and the merge algorithm. It is safe for
// concurrent use; it holds no state besides its configuration.
type Manager struct {
	store      Store
	prefix     string
	ttl        time.Duration
	maxRetries int
	now        func() time.Time
	logger     *slog.Logger
}

// NewManager creates a bucket manager over store
func NewManager(store Store, cfg ManagerConfig, logger *slog.Logger) *Manager {
	m := &Manager{
		store:      store,
		prefix:     cfg.KeyPrefix,
		ttl:        cfg.TTL,
		maxRetries: cfg.MaxCASRetries,
		now:        cfg.Now,
		logger:     logger,
	}
	if m.prefix == "" {
		m.prefix = DefaultKeyPrefix
	}
	if m.ttl <= 0 {
		m.ttl = DefaultBucketTTL
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxCASRetries
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// TTL returns the lifetime applied on every bucket write
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CurrentKey returns the key of the active bucket: the current UTC hour
func (m *Manager) CurrentKey() string {
	return m.KeyFor(m.now())
}

// KeyFor returns the bucket key covering t
func (m *Manager) KeyFor(t time.Time) string {
	return fmt.Sprintf("%s:%s", m.prefix, t.UTC().Truncate(time.Hour).Format(time.RFC3339))
}

// Merge upserts jobs into the bucket at key by job ID and refreshes its TTL.
// Jobs without an ID are skipped.
// Stores implementing Updater get an optimistic transaction retried on
// conflict; other stores get a plain read-then-write where the last writer
// replaces the whole bucket.
func (m *Manager) Merge(ctx context.Context, key string, jobs []domain.Job) error {
	jobs = m.withIDs(key, jobs)
	if len(jobs) == 0 {
		return nil
	}

	merge := func(current string, found bool) (string, error) {
		return m.mergeInto(key, current, found, jobs)
	}

	if updater, ok := m.store.(Updater); ok {
		return m.mergeAtomic(ctx, updater, key, merge)
	}

	current, found, err := m.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read bucket %s: %w", key, err)
	}

	value, err := merge(current, found)
	if err != nil {
		return err
	}

	if err := m.store.Set(ctx, key, value, m.ttl); err != nil {
		return fmt.Errorf("failed to write bucket %s: %w", key, err)
	}

	m.logger.Debug("Bucket merged",
		slog.String("key", key),
		slog.Int("jobs", len(jobs)),
	)

	return nil
}

func (m *Manager) mergeAtomic(ctx context.Context, updater Updater, key string, merge UpdateFunc) error {
	var err error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		err = updater.Update(ctx, key, m.ttl, merge)
		if err == nil {
			m.logger.Debug("Bucket merged",
				slog.String("key", key),
				slog.Int("attempt", attempt),
			)
			return nil
		}

		if !errors.Is(err, ErrConflict) {
			return fmt.Errorf("failed to merge bucket %s: %w", key, err)
		}

		m.logger.Debug("Bucket modified during merge, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", m.maxRetries),
		)
	}

	return fmt.Errorf("failed to merge bucket %s after %d attempts: %w", key, m.maxRetries, err)
}

// withIDs drops jobs that have no identifier to be merged under
func (m *Manager) withIDs(key string, jobs []domain.Job) []domain.Job {
	if !slices.ContainsFunc(jobs, func(j domain.Job) bool { return j.ID == "" }) {
		return jobs
	}

	kept := make([]domain.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			m.logger.Warn("Skipping job without an id",
				slog.String("key", key),
				slog.String("title", job.Title),
			)
			continue
		}
		kept = append(kept, job)
	}
	return kept
}

// mergeInto decodes the current bucket, upserts jobs and re-encodes it
func (m *Manager) mergeInto(key, current string, found bool, jobs []domain.Job) (string, error) {
	byID := make(map[string]domain.Job, len(jobs))

	if found {
		existing, err := decodeBucket(current)
		if err != nil {
			// Replace rather than merge; keeping a corrupt bucket would fail every later merge too
			m.logger.Warn("Discarding undecodable bucket",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		for _, job := range existing {
			byID[job.ID] = job
		}
	}

	for _, job := range jobs {
		byID[job.ID] = job
	}

	return encodeBucket(byID)
}

// Snapshot returns the jobs in the bucket at key. A miss, an unreadable store
// or an undecodable value all yield an empty slice.
func (m *Manager) Snapshot(ctx context.Context, key string) []domain.Job {
	value, found, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("Failed to read bucket, serving empty snapshot",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return []domain.Job{}
	}
	if !found {
		return []domain.Job{}
	}

	jobs, err := decodeBucket(value)
	if err != nil {
		m.logger.Error("Failed to decode bucket, serving empty snapshot",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return []domain.Job{}
	}

	return jobs
}

// Current returns the snapshot of the active bucket
func (m *Manager) Current(ctx context.Context) []domain.Job {
	return m.Snapshot(ctx, m.CurrentKey())
}

func decodeBucket(value string) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := json.Unmarshal([]byte(value), &jobs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket: %w", err)
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	return jobs, nil
}

func encodeBucket(byID map[string]domain.Job) (string, error) {
	jobs := make([]domain.Job, 0, len(byID))
	for _, job := range byID {
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b domain.Job) int {
		return cmp.Compare(a.ID, b.ID)
	})

	data, err := json.Marshal(jobs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bucket: %w", err)
	}
	return string(data), nil
}
