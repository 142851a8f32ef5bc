package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// DeadLetterConfig routes rejected (malformed) messages; empty disables it
type DeadLetterConfig struct {
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ polling settings
type ConsumerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CacheConfig selects the cache backend and bucket settings
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	KeyPrefix       string        `yaml:"key_prefix"`
	BucketTTL       time.Duration `yaml:"bucket_ttl"`
	MaxCASRetries   int           `yaml:"max_cas_retries"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// IngestConfig holds ingestion scheduler settings
type IngestConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	WaitTime   time.Duration `yaml:"wait_time"`
	Staleness  time.Duration `yaml:"staleness"`
	RunOnStart bool          `yaml:"run_on_start"`
	// MetricsPort exposes /metrics from the headless worker; 0 disables it
	MetricsPort int `yaml:"metrics_port"`
}

// AnalysisConfig holds resume and analysis cache lifetimes
type AnalysisConfig struct {
	ResumeTTL   time.Duration `yaml:"resume_ttl"`
	AnalysisTTL time.Duration `yaml:"analysis_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and fills in defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults sets zero-valued settings to their defaults
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.Port, 8080)
	setDefault(&c.Server.ReadTimeout, 15*time.Second)
	setDefault(&c.Server.WriteTimeout, 15*time.Second)
	setDefault(&c.Server.IdleTimeout, 60*time.Second)
	setDefault(&c.Server.ShutdownTimeout, 30*time.Second)

	setDefault(&c.Database.Port, 5432)
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Database.MaxOpenConns, 10)
	setDefault(&c.Database.MaxIdleConns, 5)
	setDefault(&c.Database.ConnMaxLifetime, 30*time.Minute)

	setDefault(&c.RabbitMQ.Port, 5672)
	setDefault(&c.RabbitMQ.VHost, "/")
	setDefault(&c.RabbitMQ.Exchange.Type, "direct")
	setDefault(&c.RabbitMQ.Connection.RetryAttempts, 5)
	setDefault(&c.RabbitMQ.Connection.RetryInterval, 2*time.Second)
	setDefault(&c.RabbitMQ.Connection.Heartbeat, 10*time.Second)
	setDefault(&c.RabbitMQ.Connection.ConnectionTimeout, 10*time.Second)
	setDefault(&c.RabbitMQ.Publish.RetryAttempts, 3)
	setDefault(&c.RabbitMQ.Publish.RetryInterval, time.Second)
	setDefault(&c.RabbitMQ.Publish.BackoffMultiplier, 2.0)
	setDefault(&c.RabbitMQ.Consumer.PollInterval, 200*time.Millisecond)

	setDefault(&c.Cache.Backend, CacheBackendRedis)
	setDefault(&c.Cache.KeyPrefix, "jobs")
	setDefault(&c.Cache.BucketTTL, time.Hour)
	setDefault(&c.Cache.MaxCASRetries, 5)
	setDefault(&c.Cache.CleanupInterval, 10*time.Minute)

	setDefault(&c.Ingest.Interval, 5*time.Minute)
	setDefault(&c.Ingest.BatchSize, 10)
	setDefault(&c.Ingest.WaitTime, 5*time.Second)
	setDefault(&c.Ingest.Staleness, time.Hour)

	setDefault(&c.Analysis.ResumeTTL, 24*time.Hour)
	setDefault(&c.Analysis.AnalysisTTL, 24*time.Hour)

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "console")
	setDefault(&c.Logging.Output, "stdout")

	setDefault(&c.App.Name, "jobfeed")
	setDefault(&c.App.Environment, "development")
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks the settings the API service needs: HTTP, PostgreSQL and
// everything ingestion needs
func (c *Config) Validate() error {
	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if err := validatePort("database", c.Database.Port); err != nil {
		return err
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return c.ValidateWorkerConfig()
}

// ValidateWorkerConfig checks the settings a headless ingestion worker needs
func (c *Config) ValidateWorkerConfig() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if err := validatePort("rabbitmq", c.RabbitMQ.Port); err != nil {
		return err
	}
	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}
	if (c.RabbitMQ.DeadLetter.Exchange == "") != (c.RabbitMQ.DeadLetter.Queue == "") {
		return fmt.Errorf("rabbitmq dead_letter exchange and queue must be set together")
	}

	switch strings.ToLower(c.Cache.Backend) {
	case CacheBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required for the redis cache backend")
		}
	case CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q (want %s or %s)", c.Cache.Backend, CacheBackendRedis, CacheBackendMemory)
	}

	var errs []error
	if c.Cache.BucketTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache bucket_ttl must be greater than 0"))
	}
	if c.Ingest.Interval < time.Second {
		errs = append(errs, fmt.Errorf("ingest interval must be at least 1s"))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest batch_size must be greater than 0"))
	}
	if c.Ingest.WaitTime <= 0 {
		errs = append(errs, fmt.Errorf("ingest wait_time must be greater than 0"))
	}
	if c.Ingest.Staleness <= 0 {
		errs = append(errs, fmt.Errorf("ingest staleness must be greater than 0"))
	}
	if c.Ingest.MetricsPort != 0 {
		if err := validatePort("ingest metrics", c.Ingest.MetricsPort); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
