package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCycler struct {
	calls   atomic.Int32
	release chan struct{} // nil means do not block
	err     error
}

func (c *countingCycler) RunCycle(ctx context.Context) (CycleReport, error) {
	n := c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	return CycleReport{Received: int(n)}, c.err
}

func startScheduler(t *testing.T, cfg *SchedulerConfig) (*Scheduler, context.CancelFunc, chan error) {
	t.Helper()
	cfg.Logger = discardLogger()
	s := NewScheduler(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.stopped != nil
	}, time.Second, 5*time.Millisecond)

	return s, cancel, done
}

func TestScheduler_RefreshWhenNotRunning(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{Logger: discardLogger(), Cycler: &countingCycler{}})

	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestScheduler_RefreshRunsCycleSynchronously(t *testing.T) {
	cycler := &countingCycler{}
	s, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: cycler, Interval: time.Hour})

	report, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Equal(t, int32(1), cycler.calls.Load())

	cancel()
	require.NoError(t, <-done)

	_, err = s.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestScheduler_RefreshPropagatesCycleError(t *testing.T) {
	cycler := &countingCycler{err: errQueueDown}
	s, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: cycler, Interval: time.Hour})
	defer func() {
		cancel()
		<-done
	}()

	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, errQueueDown)
}

func TestScheduler_RunOnStart(t *testing.T) {
	cycler := &countingCycler{}
	_, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: cycler, Interval: time.Hour, RunOnStart: true})

	assert.Eventually(t, func() bool { return cycler.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_PeriodicCycles(t *testing.T) {
	cycler := &countingCycler{}
	_, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: cycler, Interval: time.Second})

	assert.Eventually(t, func() bool { return cycler.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_OverlappingRefreshes(t *testing.T) {
	cycler := &countingCycler{release: make(chan struct{})}
	s, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: cycler, Interval: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}

	// both cycles are in flight at once
	assert.Eventually(t, func() bool { return cycler.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(cycler.release)
	wg.Wait()

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_ShutdownWaitsForInFlightCycle(t *testing.T) {
	cycler := &countingCycler{release: make(chan struct{})}
	s, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: cycler, Interval: time.Hour})

	refreshed := make(chan error, 1)
	go func() {
		_, err := s.Refresh(context.Background())
		refreshed <- err
	}()
	require.Eventually(t, func() bool { return cycler.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a cycle was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(cycler.release)
	require.NoError(t, <-done)
	assert.NoError(t, <-refreshed, "the in-flight cycle completes its batch")
}

func TestScheduler_RefreshHonoursCallerContext(t *testing.T) {
	cycler := &countingCycler{release: make(chan struct{})}
	s, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: cycler, Interval: time.Hour})
	defer func() {
		close(cycler.release)
		cancel()
		<-done
	}()

	ctx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()

	_, err := s.Refresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_SecondRunFails(t *testing.T) {
	s, cancel, done := startScheduler(t, &SchedulerConfig{Cycler: &countingCycler{}, Interval: time.Hour})
	defer func() {
		cancel()
		<-done
	}()

	assert.ErrorIs(t, s.Run(context.Background()), ErrSchedulerAlreadyRunning)
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{Logger: discardLogger(), Cycler: &countingCycler{}})
	assert.Equal(t, DefaultInterval, s.interval)
}
