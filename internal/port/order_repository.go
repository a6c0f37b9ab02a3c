package port

import (
	"context"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

type OrderFilter struct {
	CustomerEmail string
	Status        domain.OrderStatus
	Limit         int
}

type OrderRepository interface {
	// CreateOrder persists a new order with its items
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder returns nil when the order does not exist
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// UpdateOrder overwrites status, items and total of an existing order
	UpdateOrder(ctx context.Context, order *domain.Order) error

	// ListOrders returns orders newest first
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}
