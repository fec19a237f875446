package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/publisher"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

// HealthHandler serves the liveness and readiness probes. Readiness is a pure
// function of the publisher state and a bounded store ping.
type HealthHandler struct {
	publisher   publisher.Publisher
	store       repository.Store
	pingTimeout time.Duration
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pub publisher.Publisher, store repository.Store, pingTimeout time.Duration, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		publisher:   pub,
		store:       store,
		pingTimeout: pingTimeout,
		logger:      logger,
	}
}

// Live handles GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.publisher == nil || h.store == nil {
		h.logger.Warn("readiness check: components not initialized")
		c.String(http.StatusServiceUnavailable, "Not ready")
		return
	}
	if !h.publisher.Ready() {
		h.logger.Warn("readiness check: publisher not ready")
		c.String(http.StatusServiceUnavailable, "Publisher not ready")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("readiness check: store ping failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "Database not ready")
		return
	}

	c.String(http.StatusOK, "OK")
}
