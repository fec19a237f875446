package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	handler "github.com/Pragya1904/HTTP-Inventory/internal/delivery/http"
	"github.com/Pragya1904/HTTP-Inventory/internal/publisher"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository/factory"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting metadata inventory API")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	// Build publisher and store from backend selectors
	pub, err := publisher.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build publisher", zap.Error(err))
	}
	store, repo, err := factory.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build repository", zap.Error(err))
	}

	// Connect publisher first, then the store; tear the publisher down if
	// the store never comes up.
	if err := pub.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect publisher", zap.Error(err))
	}
	if err := store.Connect(ctx); err != nil {
		_ = pub.Close()
		logger.Fatal("Failed to connect store", zap.Error(err))
	}
	logger.Info("Dependencies connected",
		zap.String("publisher_backend", cfg.Backends.Publisher),
		zap.String("repository_backend", cfg.Backends.Repository),
		zap.String("queue", cfg.Broker.QueueName),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Publisher:            pub,
		Repository:           repo,
		Store:                store,
		ReadinessPingTimeout: cfg.Probes.ReadinessPingTimeout,
		StreamPollInterval:   cfg.Server.StreamPollInterval,
		StreamMaxDuration:    cfg.Server.StreamMaxDuration,
		Logger:               logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := pub.Close(); err != nil {
		logger.Error("Publisher close failed", zap.Error(err))
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("Store close failed", zap.Error(err))
	}

	logger.Info("API server stopped")
}
