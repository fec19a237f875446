package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/delivery/http/middleware"
	"github.com/Pragya1904/HTTP-Inventory/internal/publisher"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository"
)

// RouterDeps holds all dependencies needed to construct the router.
type RouterDeps struct {
	Publisher            publisher.Publisher
	Repository           repository.MetadataRepository
	Store                repository.Store
	ReadinessPingTimeout time.Duration
	StreamPollInterval   time.Duration
	StreamMaxDuration    time.Duration
	Logger               *zap.Logger
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health probes
	healthHandler := NewHealthHandler(deps.Publisher, deps.Store, deps.ReadinessPingTimeout, deps.Logger)
	router.GET("/health/live", healthHandler.Live)
	router.GET("/health/ready", healthHandler.Ready)

	// Metadata accept/lookup
	metaHandler := NewMetadataHandler(deps.Publisher, deps.Repository, deps.Logger)
	router.POST("/metadata", metaHandler.Post)
	router.GET("/metadata", metaHandler.Get)

	// WebSocket for status updates
	wsHandler := NewWebSocketHandler(deps.Repository, deps.StreamPollInterval, deps.StreamMaxDuration, deps.Logger)
	router.GET("/metadata/stream", wsHandler.Stream)

	return router
}
