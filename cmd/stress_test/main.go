package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/adapter/storage"
	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/core/service"
	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
)

const (
	productID     = "stress-test-product"
	initialStock  = 20
	totalRequests = 50
	maxAttempts   = 100
)

func main() {
	ctx := context.Background()

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(totalRequests)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}

	stocks := storage.NewMySQLAdapter(db)
	if err := stocks.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	// Clear previous test data
	db.ExecContext(ctx, `DELETE FROM stock_history WHERE product_id = ?`, productID)
	db.ExecContext(ctx, `DELETE FROM stock_records WHERE product_id = ?`, productID)

	ledger := service.NewLedgerService(stocks, service.RetryPolicy{
		MaxAttempts:    maxAttempts,
		Interval:       time.Millisecond,
		AttemptTimeout: 2 * time.Second,
	}, zap.NewNop(), noop.NewTracerProvider().Tracer("stress"), metrics.NewLedger(prometheus.NewRegistry()))

	if _, err := ledger.RegisterProduct(ctx, productID, initialStock); err != nil {
		log.Fatalf("failed to register product: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var exhaustedCount atomic.Int32
	var otherCount atomic.Int32

	// Spawn concurrent reservations
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := ledger.ApplyStockDelta(ctx, productID, -1, fmt.Sprintf("reserve-order-stress-%d", n))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			case errors.Is(err, domain.ErrConcurrencyExhausted):
				exhaustedCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("request %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficientCount.Load())
	fmt.Printf("Exhausted:        %d\n", exhaustedCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	rec, err := ledger.GetStock(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	history, err := ledger.History(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read history: %v", err)
	}
	fmt.Printf("Final Stock:      %d (version %d, %d history rows)\n", rec.Stock, rec.Version, len(history))

	// Assertions
	if rec.Stock < 0 {
		fmt.Printf("FAIL: Stock went negative: %d\n", rec.Stock)
	} else {
		fmt.Println("PASS: Stock never negative")
	}

	if rec.Stock == initialStock-int(success) && rec.Version == int64(success) {
		fmt.Println("PASS: Stock and version match successful reservations")
	} else {
		fmt.Printf("FAIL: Expected stock %d version %d, got %d/%d\n",
			initialStock-int(success), success, rec.Stock, rec.Version)
	}

	if len(history) == int(success) {
		fmt.Println("PASS: One history row per accepted change")
	} else {
		fmt.Printf("FAIL: Expected %d history rows, got %d\n", success, len(history))
	}

	if success == initialStock {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("WARN: %d reservations succeeded, %d gave up under contention\n", success, exhaustedCount.Load())
	}
}
