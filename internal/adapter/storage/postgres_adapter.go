package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/port"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	customer_email TEXT NOT NULL,
	status TEXT NOT NULL,
	total NUMERIC(14,2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_email, created_at DESC);
CREATE TABLE IF NOT EXISTS order_items (
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	line_no INT NOT NULL,
	product_id TEXT NOT NULL,
	quantity INT NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(14,2) NOT NULL CHECK (unit_price >= 0),
	PRIMARY KEY (order_id, line_no)
);`

// PostgresAdapter is the order store owned by the order service.
type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_email, status, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		order.ID, order.CustomerEmail, string(order.Status), order.Total.String(), order.CreatedAt, order.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: order %s", domain.ErrAlreadyExists, order.ID)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if err := insertItems(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := p.queryOrders(ctx, `
		SELECT id, customer_email, status, total::text, created_at, updated_at
		FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (p *PostgresAdapter) UpdateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, total = $3::numeric, updated_at = $4
		WHERE id = $1`,
		order.ID, string(order.Status), order.Total.String(), order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, order.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if err := insertItems(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresAdapter) ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerEmail != "" {
		args = append(args, filter.CustomerEmail)
		conds = append(conds, fmt.Sprintf("customer_email = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT id, customer_email, status, total::text, created_at, updated_at FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return p.queryOrders(ctx, query, args...)
}

func (p *PostgresAdapter) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []string
	)
	for rows.Next() {
		var (
			o      domain.Order
			status string
			total  string
		)
		if err := rows.Scan(&o.ID, &o.CustomerEmail, &status, &total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		if o.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total of order %s: %w", o.ID, err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	items, err := p.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (p *PostgresAdapter) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT order_id, product_id, quantity, unit_price::text
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      domain.OrderItem
			price   string
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	batch := &pgx.Batch{}
	for i, it := range order.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, line_no, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			order.ID, i, it.ProductID, it.Quantity, it.UnitPrice.String(),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	return nil
}
