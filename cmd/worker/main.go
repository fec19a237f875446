package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	amqpdelivery "github.com/Pragya1904/HTTP-Inventory/internal/delivery/amqp"
	"github.com/Pragya1904/HTTP-Inventory/internal/fetcher"
	"github.com/Pragya1904/HTTP-Inventory/internal/repository/factory"
	"github.com/Pragya1904/HTTP-Inventory/internal/service"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting metadata inventory worker")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Backends.Consumer != "rabbitmq" {
		logger.Fatal("Unknown consumer backend", zap.String("backend", cfg.Backends.Consumer))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect the store and bootstrap indexes
	store, repo, err := factory.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build repository", zap.Error(err))
	}
	if err := store.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect store", zap.Error(err))
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		logger.Fatal("Failed to ensure indexes", zap.Error(err))
	}

	// Build the fetch pipeline
	httpFetcher := fetcher.New(cfg.Processing, logger)
	processor := service.NewProcessor(repo, httpFetcher,
		cfg.Processing.MaxRetries, cfg.Processing.MaxPageSourceLength, logger)

	// processingMu serializes handler execution so shutdown can wait on the
	// in-flight message; handlerErrs collects poison-message errors.
	processingMu := &sync.Mutex{}
	handlerErrs := make(chan error, 64)
	handler := service.NewMessageHandler(processor, handlerErrs, processingMu, logger)

	// Connect the consumer and subscribe
	consumer := amqpdelivery.NewConsumer(cfg.Broker, cfg.Retry.Policy(), logger)
	if err := consumer.Connect(ctx); err != nil {
		_ = store.Close(ctx)
		logger.Fatal("Failed to connect consumer", zap.Error(err))
	}
	tag, err := consumer.StartConsuming(ctx, handler)
	if err != nil {
		_ = consumer.Close()
		_ = store.Close(ctx)
		logger.Fatal("Failed to start consuming", zap.Error(err))
	}

	logger.Info("Worker started",
		zap.String("queue", cfg.Broker.QueueName),
		zap.Int("prefetch", cfg.Broker.PrefetchCount),
		zap.String("repository_backend", cfg.Backends.Repository),
		zap.String("consumer_tag", tag),
	)

	// Metrics + health server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer pingCancel()
		if err := store.Ping(pingCtx); err != nil {
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
		if consumer.State() != amqpdelivery.StateReady {
			http.Error(w, "consumer not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics/health server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	// ---- Graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	// 1. Cancel the subscription so no new messages are dispatched.
	if err := consumer.Cancel(tag); err != nil {
		logger.Error("Consumer cancel failed", zap.Error(err))
	}

	// 2. Wait (bounded) for the in-flight message handler to finish.
	lockFree := make(chan struct{})
	go func() {
		processingMu.Lock()
		processingMu.Unlock()
		close(lockFree)
	}()
	select {
	case <-lockFree:
	case <-time.After(cfg.Processing.ShutdownLockWait):
		logger.Warn("Shutdown lock wait timed out",
			zap.Duration("timeout", cfg.Processing.ShutdownLockWait))
	}

	// 3. Close consumer, fetcher, and store in that order.
	cancel()
	if err := consumer.Close(); err != nil {
		logger.Error("Consumer close failed", zap.Error(err))
	}
	httpFetcher.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("Store close failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	// Surface poison-message errors collected during the run.
	failed := 0
drain:
	for {
		select {
		case err := <-handlerErrs:
			failed++
			logger.Error("Handler error during run", zap.Error(err))
		default:
			break drain
		}
	}

	logger.Info("Worker stopped")
	if failed > 0 {
		logger.Sync()
		os.Exit(1)
	}
}
