package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner is the long-running ingestion loop driven by the worker
type Runner interface {
	Run(ctx context.Context) error
}

// Config holds worker configuration
type Config struct {
	Logger *slog.Logger
	Runner Runner
	// MetricsAddr serves /metrics and /health when set, e.g. ":9091"
	MetricsAddr     string
	ShutdownTimeout time.Duration
}

// Worker runs the ingestion scheduler headless, next to a small metrics endpoint
type Worker struct {
	logger          *slog.Logger
	runner          Runner
	metricsAddr     string
	shutdownTimeout time.Duration

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:          cfg.Logger,
		runner:          cfg.Runner,
		metricsAddr:     cfg.MetricsAddr,
		shutdownTimeout: cfg.ShutdownTimeout,
		stopChan:        make(chan struct{}),
	}
	if w.shutdownTimeout <= 0 {
		w.shutdownTimeout = 10 * time.Second
	}
	return w
}

// Start serves metrics and runs the scheduler until ctx is canceled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("metrics_addr", w.metricsAddr),
	)

	if w.metricsAddr != "" {
		if err := w.serveMetrics(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := w.runner.Run(ctx)
	w.shutdownMetrics()

	if err != nil {
		return fmt.Errorf("ingestion scheduler failed: %w", err)
	}

	w.logger.Info("Worker context canceled, stopped")
	return nil
}

// Stop gracefully stops the worker. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// Addr returns the bound metrics address, empty when metrics are disabled or
// not yet serving
func (w *Worker) Addr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener == nil {
		return ""
	}
	return w.listener.Addr().String()
}

func (w *Worker) serveMetrics() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"status":"healthy"}`))
	})

	ln, err := net.Listen("tcp", w.metricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.metricsAddr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	w.mu.Lock()
	w.server = srv
	w.listener = ln
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error("Metrics server failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	w.logger.Info("Metrics server listening",
		slog.String("address", ln.Addr().String()),
	)
	return nil
}

func (w *Worker) shutdownMetrics() {
	w.mu.Lock()
	srv := w.server
	w.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		w.logger.Warn("Metrics server forced to shutdown",
			slog.String("error", err.Error()),
		)
	}
}
