package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/adapter/client"
	"github.com/rl1809/order-fulfillment/internal/adapter/handler"
	"github.com/rl1809/order-fulfillment/internal/adapter/storage"
	"github.com/rl1809/order-fulfillment/internal/config"
	"github.com/rl1809/order-fulfillment/internal/core/service"
	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
	"github.com/rl1809/order-fulfillment/internal/platform/observability"
	"github.com/rl1809/order-fulfillment/internal/port"
)

func main() {
	cfg, err := config.LoadOrderService()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(config.OrderServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, config.OrderServiceName, config.ServiceVersion, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize Postgres
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	orders := storage.NewPostgresAdapter(pool)
	if err := orders.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to apply postgres schema", zap.Error(err))
	}
	logger.Info("connected to postgres")

	// Initialize Redis, optional
	var cache port.CacheRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		cache = storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		logger.Info("connected to redis")
	}

	var ledger port.InventoryLedger
	switch cfg.InventoryTransport {
	case config.TransportHTTP:
		ledger = client.NewInventoryHTTPClient(cfg.InventoryHTTPURL, cfg.InventoryCallTimeout)
		logger.Info("inventory ledger over HTTP", zap.String("url", cfg.InventoryHTTPURL))
	default:
		grpcClient, err := client.NewInventoryGRPCClient(cfg.InventoryGRPCAddr)
		if err != nil {
			logger.Fatal("failed to create inventory client", zap.Error(err))
		}
		defer grpcClient.Close()
		ledger = grpcClient
		logger.Info("inventory ledger over gRPC", zap.String("addr", cfg.InventoryGRPCAddr))
	}

	var notifier port.Notifier
	switch cfg.NotifyTransport {
	case config.TransportHTTP:
		notifier = client.NewNotificationHTTPClient(cfg.NotificationURL, cfg.NotifyTimeout)
	case config.TransportKafka:
		publisher, err := client.NewNotificationKafkaPublisher(cfg.KafkaBrokers, cfg.NotifyTopic)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		defer publisher.Close()
		notifier = publisher
	}
	logger.Info("notifications", zap.String("transport", cfg.NotifyTransport))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orderService := service.NewOrderService(service.OrderServiceDeps{
		Orders:   orders,
		Ledger:   ledger,
		Notifier: notifier,
		Cache:    cache,
		Logger:   logger,
		Tracer:   otel.Tracer(config.OrderServiceName),
		Metrics:  metrics.NewSaga(reg),
	}, service.OrderServiceConfig{
		InventoryCallTimeout: cfg.InventoryCallTimeout,
		NotifyTimeout:        cfg.NotifyTimeout,
	})

	router := handler.NewRouter(logger, metrics.NewHTTP(reg, "orders"), reg)
	handler.NewOrderHTTPHandler(orderService, logger).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
	logger.Info("connections closed")
}
