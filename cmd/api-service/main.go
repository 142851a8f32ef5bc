package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuongbtq/jobfeed/internal/analysis"
	"github.com/cuongbtq/jobfeed/internal/analysis/storage"
	"github.com/cuongbtq/jobfeed/internal/api/handler"
	"github.com/cuongbtq/jobfeed/internal/api/router"
	"github.com/cuongbtq/jobfeed/internal/config"
	"github.com/cuongbtq/jobfeed/internal/ingest"
	"github.com/cuongbtq/jobfeed/internal/jobcache"
	"github.com/cuongbtq/jobfeed/internal/query"
	"github.com/cuongbtq/jobfeed/shared/logger"
	"github.com/cuongbtq/jobfeed/shared/postgresql"
	"github.com/cuongbtq/jobfeed/shared/rabbitmq"
	"github.com/cuongbtq/jobfeed/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("JOBFEED_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Component("postgresql"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	resumeStorage := storage.NewStorage(dbClient)
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = resumeStorage.EnsureSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		return fmt.Errorf("failed to prepare resume storage: %w", err)
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	store, closeStore, err := initCacheStore(cfg, appLogger.Component("redis"))
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer closeStore()

	buckets := jobcache.NewManager(store, jobcache.ManagerConfig{
		KeyPrefix:     cfg.Cache.KeyPrefix,
		TTL:           cfg.Cache.BucketTTL,
		MaxCASRetries: cfg.Cache.MaxCASRetries,
	}, appLogger.Component("jobcache"))

	scheduler, err := initScheduler(cfg, appLogger.Logger, rabbitClient, buckets)
	if err != nil {
		return fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	jobs := query.NewService(buckets, time.Now)
	analysisService := analysis.NewService(&analysis.Config{
		Logger:      appLogger.Component("analysis"),
		Cache:       store,
		Resumes:     resumeStorage,
		Analyzer:    analysis.KeywordAnalyzer{},
		Jobs:        jobs,
		ResumeTTL:   cfg.Analysis.ResumeTTL,
		AnalysisTTL: cfg.Analysis.AnalysisTTL,
	})

	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:    appLogger.Component("api"),
		Jobs:      jobs,
		Refresher: scheduler,
		Analysis:  analysisService,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Run(ctx)
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		runErr = err
	case err := <-schedulerDone:
		appLogger.Error("Ingestion scheduler stopped", slog.Any("error", err))
		runErr = err
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return errors.Join(runErr, err)
	}

	if runErr == nil {
		// Run returns once in-flight cycles finish
		select {
		case <-schedulerDone:
		case <-shutdownCtx.Done():
			appLogger.Warn("Ingestion shutdown timeout exceeded")
		}
	}

	appLogger.Info("Server shutdown complete")
	return runErr
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client the ingester polls
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		DeadLetterExchange: cfg.DeadLetter.Exchange,
		DeadLetterQueue:    cfg.DeadLetter.Queue,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PollInterval:       cfg.Consumer.PollInterval,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initCacheStore opens the configured cache backend. The returned func
// releases it.
func initCacheStore(cfg *config.Config, logger *slog.Logger) (jobcache.Store, func(), error) {
	if strings.EqualFold(cfg.Cache.Backend, config.CacheBackendMemory) {
		logger.Warn("Using in-process cache; buckets are not shared between processes")
		return jobcache.NewMemoryStore(cfg.Cache.CleanupInterval), func() {}, nil
	}

	client, err := redis.NewClient(&redis.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return jobcache.NewRedisStore(client.GetClient()), func() { _ = client.Close() }, nil
}

// initScheduler assembles decoder, ingester and scheduler over the queue and buckets
func initScheduler(cfg *config.Config, logger *slog.Logger, rabbitClient *rabbitmq.Client, buckets *jobcache.Manager) (*ingest.Scheduler, error) {
	decoder, err := ingest.NewDecoder(cfg.Ingest.Staleness, time.Now)
	if err != nil {
		return nil, err
	}

	ingester := ingest.NewIngester(&ingest.Config{
		Logger:    logger.With(slog.String("component", "ingest")),
		Queue:     ingest.NewRabbitMQQueue(rabbitClient),
		Decoder:   decoder,
		Bucket:    buckets,
		BatchSize: cfg.Ingest.BatchSize,
		WaitTime:  cfg.Ingest.WaitTime,
	})

	return ingest.NewScheduler(&ingest.SchedulerConfig{
		Logger:     logger.With(slog.String("component", "scheduler")),
		Cycler:     ingester,
		Interval:   cfg.Ingest.Interval,
		RunOnStart: cfg.Ingest.RunOnStart,
	}), nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
