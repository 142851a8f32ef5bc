package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the period between scheduled ingestion cycles
const DefaultInterval = 5 * time.Minute

var (
	// ErrSchedulerNotRunning is returned by Refresh when Run is not active
	ErrSchedulerNotRunning = errors.New("ingestion scheduler is not running")

	// ErrSchedulerAlreadyRunning is returned by a second concurrent Run
	ErrSchedulerAlreadyRunning = errors.New("ingestion scheduler is already running")
)

// Cycler runs one ingestion cycle
type Cycler interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Logger     *slog.Logger
	Cycler     Cycler
	Interval   time.Duration
	RunOnStart bool
}

type refreshResult struct {
	report CycleReport
	err    error
}

type refreshRequest struct {
	reply chan refreshResult
}

// Scheduler triggers ingestion cycles periodically and on demand. Cycles may
// overlap; merge idempotency makes that harmless.
type Scheduler struct {
	logger     *slog.Logger
	cycler     Cycler
	interval   time.Duration
	runOnStart bool

	triggers chan refreshRequest

	mu      sync.Mutex
	stopped chan struct{} // nil while not running
	wg      sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	s := &Scheduler{
		logger:     cfg.Logger,
		cycler:     cfg.Cycler,
		interval:   cfg.Interval,
		runOnStart: cfg.RunOnStart,
		triggers:   make(chan refreshRequest),
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	return s
}

// Run schedules cycles every interval and serves Refresh requests until ctx
// is cancelled. It then stops the schedule and waits for in-flight cycles,
// which run detached from ctx so each one finishes its batch.
func (s *Scheduler) Run(ctx context.Context) error {
	stopped, err := s.start()
	if err != nil {
		return err
	}

	cycleCtx := context.WithoutCancel(ctx)
	cronLog := cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		_, _ = s.runCycle(cycleCtx, "schedule")
	}))
	c.Start()

	s.logger.Info("Ingestion scheduler started",
		slog.Duration("interval", s.interval),
		slog.Bool("run_on_start", s.runOnStart),
	)

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.runCycle(cycleCtx, "startup")
		}()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Ingestion scheduler stopping, waiting for in-flight cycles")
			s.stop(stopped)
			<-c.Stop().Done()
			s.wg.Wait()
			s.logger.Info("Ingestion scheduler stopped")
			return nil

		case req := <-s.triggers:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				report, err := s.runCycle(cycleCtx, "manual")
				req.reply <- refreshResult{report: report, err: err}
			}()
		}
	}
}

// Refresh runs one cycle on demand and waits for its report
func (s *Scheduler) Refresh(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped == nil {
		return CycleReport{}, ErrSchedulerNotRunning
	}

	req := refreshRequest{reply: make(chan refreshResult, 1)}
	select {
	case s.triggers <- req:
	case <-stopped:
		return CycleReport{}, ErrSchedulerNotRunning
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.report, res.err
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}
}

func (s *Scheduler) start() (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped != nil {
		return nil, ErrSchedulerAlreadyRunning
	}
	s.stopped = make(chan struct{})
	return s.stopped, nil
}

func (s *Scheduler) stop(stopped chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(stopped)
	s.stopped = nil
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) (CycleReport, error) {
	s.logger.Debug("Ingestion cycle started", slog.String("trigger", trigger))

	report, err := s.cycler.RunCycle(ctx)
	if err != nil {
		s.logger.Warn("Ingestion cycle aborted",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	}
	return report, err
}

// cronLogger routes cron's own logging through slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
