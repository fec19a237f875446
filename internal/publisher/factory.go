package publisher

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/config"
)

// New selects the publisher backend from settings.
func New(cfg *config.Config, logger *zap.Logger) (Publisher, error) {
	switch cfg.Backends.Publisher {
	case "broker":
		return NewRabbitMQPublisher(cfg.Broker, cfg.Processing.PublishTimeout, cfg.Retry.Policy(), logger), nil
	case "inmemory":
		return NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown publisher backend: %q", cfg.Backends.Publisher)
	}
}
