package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/backoff"
	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

// RabbitMQPublisher publishes to a durable bounded queue with publisher
// confirms. The queue is declared with x-max-length and
// x-overflow: reject-publish, so an overflowing publish comes back as a
// broker NACK and surfaces as domain.ErrQueueRejected.
type RabbitMQPublisher struct {
	cfg            config.BrokerConfig
	publishTimeout time.Duration
	retry          backoff.Policy
	logger         *zap.Logger

	// mu serializes channel access: at most one publish (or teardown)
	// interacts with the channel at a time.
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	stateMu sync.RWMutex
	state   State
	closing bool
	closed  bool

	reconnectCtx    context.Context
	reconnectCancel context.CancelFunc
	reconnectMu     sync.Mutex
	reconnecting    bool
}

// NewRabbitMQPublisher creates an unconnected publisher; call Connect before
// publishing.
func NewRabbitMQPublisher(cfg config.BrokerConfig, publishTimeout time.Duration, retry backoff.Policy, logger *zap.Logger) *RabbitMQPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &RabbitMQPublisher{
		cfg:             cfg,
		publishTimeout:  publishTimeout,
		retry:           retry,
		logger:          logger,
		state:           StateDisconnected,
		reconnectCtx:    ctx,
		reconnectCancel: cancel,
	}
}

func (p *RabbitMQPublisher) setState(s State) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// State returns the current lifecycle state.
func (p *RabbitMQPublisher) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// Ready reports whether the publisher can accept publishes.
func (p *RabbitMQPublisher) Ready() bool {
	return p.State() == StateReady
}

func (p *RabbitMQPublisher) isClosing() bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.closing
}

// Connect drives DISCONNECTED → READY with bounded backoff between attempts.
func (p *RabbitMQPublisher) Connect(ctx context.Context) error {
	p.setState(StateConnecting)
	err := p.retry.Retry(ctx, func(attempt int, delay time.Duration) error {
		p.logger.Info("broker connect attempt",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		return p.connectOnce()
	})
	if err != nil {
		p.setState(StateDisconnected)
		p.logger.Error("broker connect exhausted attempts", zap.Error(err))
		return err
	}
	return nil
}

// connectOnce climbs the ladder CONNECTED → CHANNEL_OPEN → CONFIRM_ENABLED →
// QUEUE_DECLARED → READY, tearing down partial state on any failure.
func (p *RabbitMQPublisher) connectOnce() error {
	conn, err := amqp.Dial(p.cfg.URL())
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	p.setState(StateConnected)

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}
	p.setState(StateChannelOpen)

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}
	p.setState(StateConfirmEnabled)

	if _, err := ch.QueueDeclare(
		p.cfg.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-max-length": int32(p.cfg.QueueMaxLength),
			"x-overflow":   "reject-publish",
		},
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	p.setState(StateQueueDeclared)

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	go p.watchConnection(conn)

	p.setState(StateReady)
	p.logger.Info("broker publisher ready", zap.String("queue", p.cfg.QueueName))
	return nil
}

// watchConnection blocks on the broker close notification and schedules the
// reconnect loop. The notification fires from the client library's own
// goroutine, so the actual reconnect work runs in a goroutine owned by the
// adapter, never inline in the callback.
func (p *RabbitMQPublisher) watchConnection(conn *amqp.Connection) {
	reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || p.isClosing() {
		return
	}
	p.logger.Warn("broker connection lost", zap.String("reason", reason.Error()))
	p.setState(StateReconnecting)
	p.scheduleReconnect()
}

func (p *RabbitMQPublisher) scheduleReconnect() {
	p.reconnectMu.Lock()
	if p.reconnecting {
		p.reconnectMu.Unlock()
		return
	}
	p.reconnecting = true
	p.reconnectMu.Unlock()

	go func() {
		defer func() {
			p.reconnectMu.Lock()
			p.reconnecting = false
			p.reconnectMu.Unlock()
		}()

		err := p.retry.Retry(p.reconnectCtx, func(attempt int, delay time.Duration) error {
			if p.isClosing() {
				return nil
			}
			p.logger.Info("broker reconnect attempt", zap.Int("attempt", attempt))
			return p.connectOnce()
		})
		if err != nil {
			p.setState(StateDisconnected)
			p.logger.Error("broker reconnect exhausted attempts", zap.Error(err))
		}
	}()
}

// Publish serializes the message as JSON, marks it persistent, publishes to
// the default exchange with the queue name as routing key, and waits for the
// broker confirmation.
func (p *RabbitMQPublisher) Publish(ctx context.Context, msg domain.QueueMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != StateReady {
		return domain.ErrPublisherNotReady
	}
	ch := p.channel
	if ch == nil {
		return domain.ErrPublisherNotReady
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(pubCtx,
		"",              // default exchange
		p.cfg.QueueName, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.RequestID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if domain.IsQueueRejected(err) {
			return fmt.Errorf("%w: %v", domain.ErrQueueRejected, err)
		}
		p.setState(StateReconnecting)
		p.scheduleReconnect()
		return fmt.Errorf("%w: publish: %v", domain.ErrConnectionLost, err)
	}

	acked, err := confirm.WaitContext(pubCtx)
	if err != nil {
		p.setState(StateReconnecting)
		p.scheduleReconnect()
		return fmt.Errorf("%w: confirm: %v", domain.ErrConnectionLost, err)
	}
	if !acked {
		// reject-publish overflow is delivered as a broker NACK.
		return fmt.Errorf("%w: broker nacked publish (request_id=%s)", domain.ErrQueueRejected, msg.RequestID)
	}

	p.logger.Debug("published message",
		zap.String("request_id", msg.RequestID),
		zap.String("url", msg.URL),
		zap.Int("body_size", len(body)),
	)
	return nil
}

// Close cancels any pending reconnect, drains the in-flight publish, and
// tears down the channel then the connection. Idempotent.
func (p *RabbitMQPublisher) Close() error {
	p.stateMu.Lock()
	if p.closed {
		p.stateMu.Unlock()
		return nil
	}
	p.closed = true
	p.closing = true
	p.state = StateClosing
	p.stateMu.Unlock()

	p.reconnectCancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.conn = nil
	}

	p.setState(StateClosed)
	return firstErr
}
