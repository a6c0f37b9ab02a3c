package port

import (
	"context"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

type StockRepository interface {
	// GetStock returns nil when the product has no stock record
	GetStock(ctx context.Context, productID string) (*domain.StockRecord, error)

	// CompareAndSwapStock writes stock only if the record still has expectedVersion,
	// otherwise returns domain.ErrOptimisticLock. A non-empty requestID is
	// recorded in the same transaction; a repeated one returns
	// domain.ErrDuplicateRequest and writes nothing.
	CompareAndSwapStock(ctx context.Context, productID string, stock int, expectedVersion int64, requestID string) (*domain.StockRecord, error)

	// RequestApplied reports whether requestID already changed productID
	RequestApplied(ctx context.Context, productID, requestID string) (bool, error)

	// CreateStock inserts a new record at version 0, domain.ErrAlreadyExists on duplicates
	CreateStock(ctx context.Context, record domain.StockRecord) error

	// ListLowStock returns records with stock strictly below threshold
	ListLowStock(ctx context.Context, threshold int) ([]domain.StockRecord, error)

	// AppendHistory records an accepted mutation
	AppendHistory(ctx context.Context, entry domain.StockHistoryEntry) error

	// ListHistory returns entries for a product, oldest first
	ListHistory(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error)
}
