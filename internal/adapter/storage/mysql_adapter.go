package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS stock_records (
		product_id VARCHAR(64) NOT NULL PRIMARY KEY,
		stock INT NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CONSTRAINT chk_stock_non_negative CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_history (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		product_id VARCHAR(64) NOT NULL,
		qty_change INT NOT NULL,
		reason VARCHAR(255) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_stock_history_product (product_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_requests (
		product_id VARCHAR(64) NOT NULL,
		request_id VARCHAR(128) NOT NULL,
		qty_change INT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (product_id, request_id)
	)`,
}

// MySQLAdapter stores stock records and their history for the inventory ledger.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	rec, err := scanStock(m.db.QueryRowContext(ctx, `
		SELECT product_id, stock, version, created_at, updated_at
		FROM stock_records WHERE product_id = ?`, productID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	return rec, nil
}

// CompareAndSwapStock writes the new count only when the row is still at
// expectedVersion and bumps the version in the same statement. The request
// marker is inserted first so a repeated request rolls back untouched.
func (m *MySQLAdapter) CompareAndSwapStock(ctx context.Context, productID string, stock int, expectedVersion int64, requestID string) (*domain.StockRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if requestID != "" {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_requests (product_id, request_id, qty_change, created_at)
			SELECT product_id, ?, ? - stock, ? FROM stock_records
			WHERE product_id = ? AND version = ?`,
			requestID, stock, now, productID, expectedVersion,
		)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil, fmt.Errorf("%w: request %s for product %s", domain.ErrDuplicateRequest, requestID, productID)
		}
		if err != nil {
			return nil, fmt.Errorf("record request: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE stock_records
		SET stock = ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND version = ?`,
		stock, now, productID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, domain.ErrOptimisticLock
	}

	rec, err := scanStock(tx.QueryRowContext(ctx, `
		SELECT product_id, stock, version, created_at, updated_at
		FROM stock_records WHERE product_id = ?`, productID,
	))
	if err != nil {
		return nil, fmt.Errorf("reload stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (m *MySQLAdapter) RequestApplied(ctx context.Context, productID, requestID string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_requests
		WHERE product_id = ? AND request_id = ?`, productID, requestID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query request: %w", err)
	}
	return n > 0, nil
}

func (m *MySQLAdapter) CreateStock(ctx context.Context, record domain.StockRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_records (product_id, stock, version, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)`,
		record.ProductID, record.Stock, record.CreatedAt.UTC(), record.UpdatedAt.UTC(),
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: product %s", domain.ErrAlreadyExists, record.ProductID)
	}
	if err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListLowStock(ctx context.Context, threshold int) ([]domain.StockRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, stock, version, created_at, updated_at
		FROM stock_records WHERE stock < ?
		ORDER BY stock, product_id`, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("query low stock: %w", err)
	}
	defer rows.Close()

	var out []domain.StockRecord
	for rows.Next() {
		rec, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) AppendHistory(ctx context.Context, entry domain.StockHistoryEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_history (product_id, qty_change, reason, created_at)
		VALUES (?, ?, ?, ?)`,
		entry.ProductID, entry.QtyChange, entry.Reason, entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListHistory(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, product_id, qty_change, reason, created_at
		FROM stock_history WHERE product_id = ?
		ORDER BY id`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.StockHistoryEntry
	for rows.Next() {
		var e domain.StockHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.QtyChange, &e.Reason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	if err := row.Scan(&rec.ProductID, &rec.Stock, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
