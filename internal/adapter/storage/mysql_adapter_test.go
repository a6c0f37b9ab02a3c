package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := NewMySQLAdapter(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func seedStock(t *testing.T, db *sql.DB, productID string, stock int, version int64) {
	t.Helper()
	ctx := context.Background()
	db.ExecContext(ctx, `DELETE FROM stock_history WHERE product_id = ?`, productID)
	db.ExecContext(ctx, `DELETE FROM stock_requests WHERE product_id = ?`, productID)
	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_records (product_id, stock, version, created_at, updated_at) VALUES (?, ?, ?, NOW(6), NOW(6))
		ON DUPLICATE KEY UPDATE stock = VALUES(stock), version = VALUES(version)`,
		productID, stock, version)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

func TestGetStock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, "get-test-item", 50, 5)

	rec, err := adapter.GetStock(ctx, "get-test-item")
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec.Stock != 50 || rec.Version != 5 {
		t.Errorf("expected stock 50 version 5, got %d/%d", rec.Stock, rec.Version)
	}
}

func TestGetStock_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	rec, err := NewMySQLAdapter(db).GetStock(context.Background(), "nonexistent-item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Error("expected nil for nonexistent item")
	}
}

func TestCompareAndSwapStock_OptimisticLock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, "lock-test-item", 100, 1)

	rec, err := adapter.CompareAndSwapStock(ctx, "lock-test-item", 90, 1, "")
	if err != nil {
		t.Fatalf("CompareAndSwapStock failed: %v", err)
	}
	if rec.Version != 2 || rec.Stock != 90 {
		t.Errorf("expected stock 90 version 2, got %d/%d", rec.Stock, rec.Version)
	}

	// Stale version
	_, err = adapter.CompareAndSwapStock(ctx, "lock-test-item", 80, 1, "")
	if !errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got: %v", err)
	}
}

func TestCompareAndSwapStock_ConcurrentSameVersion(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, "race-test-item", 10, 0)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.CompareAndSwapStock(ctx, "race-test-item", 9, 0, "")
			if err == nil {
				successCount.Add(1)
				return
			}
			if !errors.Is(err, domain.ErrOptimisticLock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// Only one writer may win a given version
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}

func TestCompareAndSwapStock_RequestAppliedOnce(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, "request-test-item", 10, 0)

	applied, err := adapter.RequestApplied(ctx, "request-test-item", "req-1")
	if err != nil || applied {
		t.Fatalf("expected request not applied, got %v %v", applied, err)
	}

	if _, err := adapter.CompareAndSwapStock(ctx, "request-test-item", 6, 0, "req-1"); err != nil {
		t.Fatalf("CompareAndSwapStock failed: %v", err)
	}

	applied, err = adapter.RequestApplied(ctx, "request-test-item", "req-1")
	if err != nil || !applied {
		t.Fatalf("expected request applied, got %v %v", applied, err)
	}

	// Same request at the current version must not write again
	_, err = adapter.CompareAndSwapStock(ctx, "request-test-item", 2, 1, "req-1")
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got: %v", err)
	}

	rec, err := adapter.GetStock(ctx, "request-test-item")
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if rec.Stock != 6 || rec.Version != 1 {
		t.Errorf("expected stock 6 version 1, got %d/%d", rec.Stock, rec.Version)
	}
}

func TestCreateStock_Duplicate(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	db.ExecContext(ctx, `DELETE FROM stock_records WHERE product_id = 'create-test-item'`)

	now := time.Now()
	rec := domain.StockRecord{ProductID: "create-test-item", Stock: 3, CreatedAt: now, UpdatedAt: now}
	if err := adapter.CreateStock(ctx, rec); err != nil {
		t.Fatalf("CreateStock failed: %v", err)
	}
	if err := adapter.CreateStock(ctx, rec); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got: %v", err)
	}
}

func TestHistory_AppendAndList(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, "history-test-item", 10, 0)

	for _, delta := range []int{-2, 5} {
		err := adapter.AppendHistory(ctx, domain.StockHistoryEntry{
			ProductID: "history-test-item",
			QtyChange: delta,
			Reason:    "test",
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendHistory failed: %v", err)
		}
	}

	entries, err := adapter.ListHistory(ctx, "history-test-item")
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 2 || entries[0].QtyChange != -2 || entries[1].QtyChange != 5 {
		t.Errorf("unexpected history: %+v", entries)
	}
}

func TestListLowStock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	seedStock(t, db, "low-test-item", 1, 0)
	seedStock(t, db, "high-test-item", 1000, 0)

	low, err := adapter.ListLowStock(ctx, 10)
	if err != nil {
		t.Fatalf("ListLowStock failed: %v", err)
	}

	var sawLow, sawHigh bool
	for _, rec := range low {
		sawLow = sawLow || rec.ProductID == "low-test-item"
		sawHigh = sawHigh || rec.ProductID == "high-test-item"
	}
	if !sawLow || sawHigh {
		t.Errorf("unexpected low stock list: %+v", low)
	}
}
