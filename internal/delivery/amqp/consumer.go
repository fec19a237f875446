package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/backoff"
	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

// State is the consumer connection lifecycle state.
type State string

const (
	StateDisconnected  State = "DISCONNECTED"
	StateConnecting    State = "CONNECTING"
	StateConnected     State = "CONNECTED"
	StateChannelOpen   State = "CHANNEL_OPEN"
	StateQueueDeclared State = "QUEUE_DECLARED"
	StateReady         State = "READY"
	StateReconnecting  State = "RECONNECTING"
	StateClosing       State = "CLOSING"
	StateClosed        State = "CLOSED"
)

// Handler processes one delivered message. Acknowledgement is the handler's
// responsibility through the message facade.
type Handler func(ctx context.Context, msg domain.IncomingMessage)

// Consumer delivers queue messages to a handler with manual acks and
// per-consumer prefetch. After a broker fault it reconnects with bounded
// backoff and resubscribes the previously-installed handler under a new
// consumer tag.
type Consumer struct {
	cfg    config.BrokerConfig
	retry  backoff.Policy
	logger *zap.Logger

	// mu guards the channel and subscription: teardown and (re)subscribe
	// never race.
	mu          sync.Mutex
	conn        *amqplib.Connection
	channel     *amqplib.Channel
	handler     Handler
	handlerCtx  context.Context
	consumerTag string

	stateMu sync.RWMutex
	state   State
	closing bool
	closed  bool

	reconnectCtx    context.Context
	reconnectCancel context.CancelFunc
	reconnectMu     sync.Mutex
	reconnecting    bool
}

// NewConsumer creates an unconnected consumer; call Connect before
// StartConsuming.
func NewConsumer(cfg config.BrokerConfig, retry backoff.Policy, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		cfg:             cfg,
		retry:           retry,
		logger:          logger,
		state:           StateDisconnected,
		reconnectCtx:    ctx,
		reconnectCancel: cancel,
	}
}

func (c *Consumer) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Consumer) isClosing() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.closing
}

// Connect drives DISCONNECTED → READY with bounded backoff between attempts.
func (c *Consumer) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	err := c.retry.Retry(ctx, func(attempt int, delay time.Duration) error {
		c.logger.Info("broker connect attempt",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		return c.connectOnce()
	})
	if err != nil {
		c.setState(StateDisconnected)
		c.logger.Error("broker connect exhausted attempts", zap.Error(err))
		return err
	}
	return nil
}

func (c *Consumer) connectOnce() error {
	conn, err := amqplib.Dial(c.cfg.URL())
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	c.setState(StateConnected)

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}
	c.setState(StateChannelOpen)

	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqplib.Table{
			"x-max-length": int32(c.cfg.QueueMaxLength),
			"x-overflow":   "reject-publish",
		},
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	c.setState(StateQueueDeclared)

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	go c.watchConnection(conn)

	c.setState(StateReady)
	c.logger.Info("broker consumer ready",
		zap.String("queue", c.cfg.QueueName),
		zap.Int("prefetch", c.cfg.PrefetchCount),
	)
	return nil
}

// StartConsuming installs the handler and subscribes with manual acks.
// Returns the consumer tag. The handler keeps being reinstalled (with a new
// tag) after reconnects until Cancel or Close.
func (c *Consumer) StartConsuming(ctx context.Context, h Handler) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return "", fmt.Errorf("rabbitmq: consumer not connected")
	}
	c.handler = h
	c.handlerCtx = ctx
	return c.subscribeLocked()
}

// subscribeLocked subscribes the stored handler; callers hold mu.
func (c *Consumer) subscribeLocked() (string, error) {
	tag := "ctag-" + uuid.NewString()
	deliveries, err := c.channel.Consume(
		c.cfg.QueueName,
		tag,
		false, // auto-ack disabled (manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("rabbitmq: consume: %w", err)
	}
	c.consumerTag = tag

	go c.dispatch(c.handlerCtx, c.handler, deliveries)

	c.logger.Info("consumer subscribed", zap.String("consumer_tag", tag))
	return tag, nil
}

// dispatch feeds deliveries to the handler until the delivery channel closes
// (broker fault or cancel) or the context ends.
func (c *Consumer) dispatch(ctx context.Context, h Handler, deliveries <-chan amqplib.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			h(ctx, &incomingDelivery{d: d})
		}
	}
}

// Cancel stops delivery on the current subscription. The tag argument is not
// compared: after a reconnect the resubscribed tag is the one cancelled. The
// handler is uninstalled, so later reconnects do not resubscribe it.
func (c *Consumer) Cancel(tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.consumerTag == "" {
		return nil
	}
	if err := c.channel.Cancel(c.consumerTag, false); err != nil {
		return fmt.Errorf("rabbitmq: cancel: %w", err)
	}
	c.consumerTag = ""
	c.handler = nil
	return nil
}

func (c *Consumer) watchConnection(conn *amqplib.Connection) {
	reason, ok := <-conn.NotifyClose(make(chan *amqplib.Error, 1))
	if !ok || c.isClosing() {
		return
	}
	c.logger.Warn("broker connection lost", zap.String("reason", reason.Error()))
	c.setState(StateReconnecting)
	c.scheduleReconnect()
}

func (c *Consumer) scheduleReconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	go func() {
		defer func() {
			c.reconnectMu.Lock()
			c.reconnecting = false
			c.reconnectMu.Unlock()
		}()

		err := c.retry.Retry(c.reconnectCtx, func(attempt int, delay time.Duration) error {
			if c.isClosing() {
				return nil
			}
			c.logger.Info("broker reconnect attempt", zap.Int("attempt", attempt))
			if err := c.connectOnce(); err != nil {
				return err
			}

			// Resubscribe the stored handler under the mutex; re-check
			// closing so a racing Close never loses to a resubscribe.
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.isClosing() || c.handler == nil {
				return nil
			}
			if _, err := c.subscribeLocked(); err != nil {
				return err
			}
			c.logger.Info("broker reconnected and resubscribed")
			return nil
		})
		if err != nil {
			c.setState(StateDisconnected)
			c.logger.Error("broker reconnect exhausted attempts", zap.Error(err))
		}
	}()
}

// Close cancels any pending reconnect and tears down the channel and
// connection. Idempotent.
func (c *Consumer) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	c.closing = true
	c.state = StateClosing
	c.stateMu.Unlock()

	c.reconnectCancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.consumerTag = ""
	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.conn = nil
	}

	c.setState(StateClosed)
	return firstErr
}
