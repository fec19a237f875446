package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/delivery/amqp"
	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
	"github.com/Pragya1904/HTTP-Inventory/internal/metrics"
)

// NewMessageHandler wraps the processor for the consumer. The processing
// mutex serializes handler execution so shutdown can wait on the in-flight
// message; any message the processor could not acknowledge (malformed
// payload, store failure, panic) is rejected without requeue and recorded on
// the error channel.
func NewMessageHandler(proc *Processor, errs chan<- error, processing *sync.Mutex, logger *zap.Logger) amqp.Handler {
	return func(ctx context.Context, msg domain.IncomingMessage) {
		processing.Lock()
		defer processing.Unlock()

		metrics.MessagesConsumed.Inc()
		metrics.ProcessingInFlight.Inc()
		defer metrics.ProcessingInFlight.Dec()

		defer func() {
			if r := recover(); r != nil {
				logger.Error("message handler panic", zap.Any("panic", r))
				rejectAndRecord(msg, fmt.Errorf("handler panic: %v", r), errs, logger)
			}
		}()

		if err := proc.ProcessMessage(ctx, msg); err != nil {
			logger.Error("message handling failed", zap.Error(err))
			rejectAndRecord(msg, err, errs, logger)
		}
	}
}

func rejectAndRecord(msg domain.IncomingMessage, err error, errs chan<- error, logger *zap.Logger) {
	if rerr := msg.Reject(); rerr != nil {
		logger.Error("reject failed", zap.Error(rerr))
	}
	metrics.HandlerErrors.Inc()
	select {
	case errs <- err:
	default:
		logger.Warn("handler error channel full, dropping error", zap.Error(err))
	}
}
