package publisher

import (
	"context"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

// State is the publisher connection lifecycle state.
type State string

const (
	StateDisconnected   State = "DISCONNECTED"
	StateConnecting     State = "CONNECTING"
	StateConnected      State = "CONNECTED"
	StateChannelOpen    State = "CHANNEL_OPEN"
	StateConfirmEnabled State = "CONFIRM_ENABLED"
	StateQueueDeclared  State = "QUEUE_DECLARED"
	StateReady          State = "READY"
	StateReconnecting   State = "RECONNECTING"
	StateClosing        State = "CLOSING"
	StateClosed         State = "CLOSED"
)

// Publisher publishes queue messages to a durable bounded queue.
type Publisher interface {
	// Connect drives the adapter to READY with bounded backoff; exhausting
	// all attempts leaves it DISCONNECTED and returns the last error.
	Connect(ctx context.Context) error

	// Publish serializes the message and publishes it persistently, waiting
	// for broker confirmation within the configured publish timeout. Failure
	// kinds: domain.ErrPublisherNotReady, domain.ErrQueueRejected,
	// domain.ErrConnectionLost.
	Publish(ctx context.Context, msg domain.QueueMessage) error

	Ready() bool

	State() State

	// Close drains any in-flight publish and tears down the channel and
	// connection. Idempotent.
	Close() error
}
