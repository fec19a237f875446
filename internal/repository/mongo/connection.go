package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/backoff"
	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

var _ repository.Store = (*Connection)(nil)

// Connection owns the Mongo client lifecycle for one process.
type Connection struct {
	cfg    config.DatabaseConfig
	retry  backoff.Policy
	logger *zap.Logger
	client *mongo.Client
}

// NewConnection creates an unconnected store handle; call Connect before use.
func NewConnection(cfg config.DatabaseConfig, retry backoff.Policy, logger *zap.Logger) *Connection {
	return &Connection{
		cfg:    cfg,
		retry:  retry,
		logger: logger,
	}
}

// Connect dials the store with bounded exponential backoff. When all attempts
// fail the last error is returned and the handle stays unconnected.
func (c *Connection) Connect(ctx context.Context) error {
	return c.retry.Retry(ctx, func(attempt int, delay time.Duration) error {
		c.logger.Info("store connect attempt",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		opts := options.Client().
			ApplyURI(c.cfg.MongoURI()).
			SetServerSelectionTimeout(c.cfg.ConnectionTimeout).
			SetConnectTimeout(c.cfg.ConnectionTimeout)

		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			c.logger.Warn("store connect failed", zap.Error(err))
			return fmt.Errorf("mongo: connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			c.logger.Warn("store ping failed", zap.Error(err))
			return fmt.Errorf("mongo: ping: %w", err)
		}

		c.client = client
		c.logger.Info("store connected", zap.String("database", c.cfg.Name))
		return nil
	})
}

// Ping reports whether the store responds; an error means not ready.
func (c *Connection) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("mongo: not connected")
	}
	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo: ping: %w", err)
	}
	return nil
}

// Close releases the client. Idempotent.
func (c *Connection) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Disconnect(ctx)
	c.client = nil
	if err != nil {
		return fmt.Errorf("mongo: disconnect: %w", err)
	}
	return nil
}

// Collection returns the metadata collection. Panics if called before a
// successful Connect; composition guarantees the ordering.
func (c *Connection) Collection() *mongo.Collection {
	if c.client == nil {
		panic("mongo: Collection called before Connect")
	}
	return c.client.Database(c.cfg.Name).Collection(c.cfg.Collection)
}
