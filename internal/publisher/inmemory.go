package publisher

import (
	"context"
	"sync"

	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

var _ Publisher = (*InMemory)(nil)

// InMemory is a broker-less publisher for tests and local mode. It is always
// ready and records every published message.
type InMemory struct {
	mu       sync.Mutex
	messages []domain.QueueMessage

	// PublishFn, when set, replaces the default record-and-succeed behavior.
	PublishFn func(ctx context.Context, msg domain.QueueMessage) error

	// NotReady forces Ready() to report false.
	NotReady bool
}

// NewInMemory creates an empty in-memory publisher.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (p *InMemory) Connect(ctx context.Context) error { return nil }

func (p *InMemory) Ready() bool { return !p.NotReady }

func (p *InMemory) State() State {
	if p.NotReady {
		return StateDisconnected
	}
	return StateReady
}

func (p *InMemory) Publish(ctx context.Context, msg domain.QueueMessage) error {
	if p.PublishFn != nil {
		return p.PublishFn(ctx, msg)
	}
	if p.NotReady {
		return domain.ErrPublisherNotReady
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *InMemory) Close() error { return nil }

// Messages returns a copy of everything published so far.
func (p *InMemory) Messages() []domain.QueueMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.QueueMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
