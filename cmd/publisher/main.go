// Command publisher pushes a batch of jobs onto the ingestion queue, stamped
// with the current time. It is a development aid for feeding a local stack.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/jobfeed/internal/config"
	"github.com/cuongbtq/jobfeed/internal/domain"
	"github.com/cuongbtq/jobfeed/internal/ingest"
	"github.com/cuongbtq/jobfeed/shared/logger"
	"github.com/cuongbtq/jobfeed/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	defaultConfigPath := os.Getenv("JOBFEED_WORKER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	jobsPath := flag.String("jobs", "-", "JSON array of jobs to publish, - for stdin")
	age := flag.Duration("age", 0, "Backdate the message timestamp, e.g. 2h to publish a stale batch")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	jobs, err := readJobs(*jobsPath)
	if err != nil {
		return err
	}

	body, err := ingest.EncodeMessage(time.Now().Add(-*age), jobs)
	if err != nil {
		return err
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		QueueName:          cfg.RabbitMQ.Queue.Name,
		QueueDurable:       cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:    cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:     cfg.RabbitMQ.Queue.Exclusive,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		DeadLetterExchange: cfg.RabbitMQ.DeadLetter.Exchange,
		DeadLetterQueue:    cfg.RabbitMQ.DeadLetter.Queue,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
		PublishRetries:     cfg.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.RabbitMQ.Publish.RetryInterval,
		PublishBackoffMult: cfg.RabbitMQ.Publish.BackoffMultiplier,
	}, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return err
	}

	appLogger.Info("Published job batch",
		slog.Int("jobs", len(jobs)),
		slog.Duration("age", *age),
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
	)
	return nil
}

func readJobs(path string) ([]domain.Job, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open jobs file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var jobs []domain.Job
	if err := json.NewDecoder(r).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("failed to parse jobs: %w", err)
	}
	return jobs, nil
}
