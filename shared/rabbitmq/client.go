package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when an operation needs a live channel
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string
	// DeadLetterExchange, when set, is declared together with DeadLetterQueue
	// and attached to the main queue so rejected messages are routed there
	DeadLetterExchange string
	DeadLetterQueue    string
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PollInterval       time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Delivery is a message fetched with basic.get and not yet settled. Tags are
// only meaningful together with the channel generation they were issued on.
type Delivery struct {
	Generation  uint64
	Tag         uint64
	MessageID   string
	Body        []byte
	Timestamp   time.Time
	Redelivered bool
}

// Client is a RabbitMQ client that pulls messages on demand.
// Methods are safe for concurrent use; channel operations are serialised.
type Client struct {
	config  *Config
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger

	mu          sync.Mutex
	generation  uint64 // bumped on every (re)connect
	pending     map[uint64]struct{}
	isConnected bool
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:  config,
		logger:  logger,
		pending: make(map[uint64]struct{}),
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic. Callers hold mu
// or have exclusive access.
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := max(c.config.RetryAttempts, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	// Delivery tags are scoped to the channel
	c.generation++
	c.pending = make(map[uint64]struct{})
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.String("dead_letter_queue", c.config.DeadLetterQueue),
	)

	return nil
}

// setup declares exchanges, queues, and bindings
func (c *Client) setup() error {
	var queueArgs amqp.Table

	if c.config.DeadLetterExchange != "" {
		if err := c.declareDeadLetter(); err != nil {
			return err
		}
		queueArgs = amqp.Table{
			"x-dead-letter-exchange":    c.config.DeadLetterExchange,
			"x-dead-letter-routing-key": c.config.DeadLetterQueue,
		}
	}

	err := c.channel.ExchangeDeclare(
		c.config.ExchangeName,       // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.config.QueueName,       // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		queueArgs,                // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.config.QueueName,    // queue name
		c.config.RoutingKey,   // routing key
		c.config.ExchangeName, // exchange
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

func (c *Client) declareDeadLetter() error {
	if err := c.channel.ExchangeDeclare(c.config.DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}
	if _, err := c.channel.QueueDeclare(c.config.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := c.channel.QueueBind(c.config.DeadLetterQueue, c.config.DeadLetterQueue, c.config.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}
	return nil
}

// ensureConnected reconnects if the connection or channel has been closed.
// Callers hold mu.
func (c *Client) ensureConnected() error {
	if c.isConnected && c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return nil
	}

	c.logger.Warn("RabbitMQ channel closed, reconnecting")
	c.isConnected = false
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}
	return c.connect()
}

// Receive pulls up to maxMessages from the queue. It returns as soon as at
// least one message is available, or with an empty slice once wait elapses.
func (c *Client) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]Delivery, error) {
	pollInterval := c.config.PollInterval
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	deadline := time.Now().Add(wait)

	var deliveries []Delivery
	for len(deliveries) < maxMessages {
		delivery, ok, err := c.get()
		if err != nil {
			if len(deliveries) > 0 {
				c.logger.Warn("Failed to get further messages, returning partial batch",
					slog.Int("count", len(deliveries)),
					slog.Any("error", err),
				)
				break
			}
			return nil, err
		}

		if ok {
			deliveries = append(deliveries, delivery)
			continue
		}

		if len(deliveries) > 0 || !time.Now().Before(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			// only reached with nothing fetched yet
			return nil, ctx.Err()
		case <-time.After(min(pollInterval, time.Until(deadline))):
		}
	}

	c.logger.Debug("Received messages from RabbitMQ",
		slog.Int("count", len(deliveries)),
		slog.String("queue", c.config.QueueName),
	)

	return deliveries, nil
}

func (c *Client) get() (Delivery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return Delivery{}, false, err
	}

	msg, ok, err := c.channel.Get(c.config.QueueName, false)
	if err != nil {
		return Delivery{}, false, fmt.Errorf("failed to get message: %w", err)
	}
	if !ok {
		return Delivery{}, false, nil
	}

	c.pending[msg.DeliveryTag] = struct{}{}
	return Delivery{
		Generation:  c.generation,
		Tag:         msg.DeliveryTag,
		MessageID:   msg.MessageId,
		Body:        msg.Body,
		Timestamp:   msg.Timestamp,
		Redelivered: msg.Redelivered,
	}, true, nil
}

// Ack acknowledges a delivery. Deliveries already settled, never fetched, or
// fetched on a previous connection are ignored; the broker requeues the latter
// when their channel closes.
func (c *Client) Ack(generation, tag uint64) error {
	return c.settle(generation, tag, func(ch *amqp.Channel) error {
		return ch.Ack(tag, false)
	})
}

// Reject negatively acknowledges a delivery without requeue. With a dead-letter
// exchange configured the broker moves the message there; otherwise it is dropped.
func (c *Client) Reject(generation, tag uint64) error {
	return c.settle(generation, tag, func(ch *amqp.Channel) error {
		return ch.Nack(tag, false, false)
	})
}

func (c *Client) settle(generation, tag uint64, fn func(*amqp.Channel) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return nil
	}
	if _, ok := c.pending[tag]; !ok {
		return nil
	}
	if !c.isConnected || c.channel == nil {
		return ErrNotConnected
	}

	if err := fn(c.channel); err != nil {
		return fmt.Errorf("failed to settle delivery %d: %w", tag, err)
	}
	delete(c.pending, tag)
	return nil
}

// HasDeadLetter reports whether rejected messages are routed to a dead-letter queue
func (c *Client) HasDeadLetter() bool {
	return c.config.DeadLetterExchange != ""
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}

// PublishWithRetry publishes a message with exponential backoff
func (c *Client) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult <= 0 {
		backoffMult = 2.0
	}

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.publish(ctx, body, contentType)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Successfully published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
					slog.Int("body_size", len(body)),
				)
			} else {
				c.logger.Debug("Message published to RabbitMQ",
					slog.Int("body_size", len(body)),
					slog.String("content_type", contentType),
				)
			}
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)

			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * backoffMult)
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

func (c *Client) publish(ctx context.Context, body []byte, contentType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}

	return c.channel.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		c.config.RoutingKey,   // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}
