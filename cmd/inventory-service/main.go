package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/order-fulfillment/internal/adapter/handler"
	"github.com/rl1809/order-fulfillment/internal/adapter/handler/rpc"
	"github.com/rl1809/order-fulfillment/internal/adapter/storage"
	"github.com/rl1809/order-fulfillment/internal/config"
	"github.com/rl1809/order-fulfillment/internal/core/service"
	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
	"github.com/rl1809/order-fulfillment/internal/platform/observability"
)

func main() {
	cfg, err := config.LoadInventoryService()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(config.InventoryServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, config.InventoryServiceName, config.ServiceVersion, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	stocks := storage.NewMySQLAdapter(db)
	if err := stocks.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to apply mysql schema", zap.Error(err))
	}
	logger.Info("connected to mysql")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledger := service.NewLedgerService(stocks, service.RetryPolicy{
		MaxAttempts:    cfg.LedgerMaxAttempts,
		Interval:       cfg.LedgerRetryInterval,
		AttemptTimeout: cfg.LedgerAttemptTimeout,
	}, logger, otel.Tracer(config.InventoryServiceName), metrics.NewLedger(reg))

	// gRPC ledger contract for the order saga
	grpcServer := grpc.NewServer()
	rpc.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(ledger, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	router := handler.NewRouter(logger, metrics.NewHTTP(reg, "inventory"), reg)
	handler.NewInventoryHTTPHandler(ledger, logger).RegisterRoutes(router)

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
	db.Close()
	logger.Info("connections closed")
}
