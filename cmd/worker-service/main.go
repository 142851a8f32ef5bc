package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuongbtq/jobfeed/internal/config"
	"github.com/cuongbtq/jobfeed/internal/ingest"
	"github.com/cuongbtq/jobfeed/internal/jobcache"
	"github.com/cuongbtq/jobfeed/internal/worker"
	"github.com/cuongbtq/jobfeed/shared/logger"
	"github.com/cuongbtq/jobfeed/shared/rabbitmq"
	"github.com/cuongbtq/jobfeed/shared/redis"
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

	defaultConfigPath := os.Getenv("JOBFEED_WORKER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	if strings.EqualFold(cfg.Cache.Backend, config.CacheBackendMemory) {
		// nothing else could read an in-process bucket
		return fmt.Errorf("worker service requires the %s cache backend", config.CacheBackendRedis)
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	redisClient, err := redis.NewClient(&redis.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, appLogger.Component("redis"))
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	buckets := jobcache.NewManager(jobcache.NewRedisStore(redisClient.GetClient()), jobcache.ManagerConfig{
		KeyPrefix:     cfg.Cache.KeyPrefix,
		TTL:           cfg.Cache.BucketTTL,
		MaxCASRetries: cfg.Cache.MaxCASRetries,
	}, appLogger.Component("jobcache"))

	decoder, err := ingest.NewDecoder(cfg.Ingest.Staleness, time.Now)
	if err != nil {
		return fmt.Errorf("failed to initialize decoder: %w", err)
	}

	scheduler := ingest.NewScheduler(&ingest.SchedulerConfig{
		Logger: appLogger.Component("scheduler"),
		Cycler: ingest.NewIngester(&ingest.Config{
			Logger:    appLogger.Component("ingest"),
			Queue:     ingest.NewRabbitMQQueue(rabbitClient),
			Decoder:   decoder,
			Bucket:    buckets,
			BatchSize: cfg.Ingest.BatchSize,
			WaitTime:  cfg.Ingest.WaitTime,
		}),
		Interval:   cfg.Ingest.Interval,
		RunOnStart: cfg.Ingest.RunOnStart,
	})

	var metricsAddr string
	if cfg.Ingest.MetricsPort != 0 {
		metricsAddr = fmt.Sprintf(":%d", cfg.Ingest.MetricsPort)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:          appLogger.Component("worker"),
		Runner:          scheduler,
		MetricsAddr:     metricsAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully",
		slog.Duration("interval", cfg.Ingest.Interval),
		slog.Int("batch_size", cfg.Ingest.BatchSize),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
		}
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		<-errChan
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	return nil
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
