package domain

import (
	"fmt"
	"time"
)

// StockRecord is the per-product stock count. Version is the optimistic
// locking token and grows by one on every committed write.
type StockRecord struct {
	ProductID string    `json:"productId"`
	Stock     int       `json:"stock"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Apply returns the stock count after delta, rejecting a negative result.
func (r StockRecord) Apply(delta int) (int, error) {
	next := r.Stock + delta
	if next < 0 {
		return r.Stock, fmt.Errorf("%w: product %s has %d, change %d", ErrInsufficientStock, r.ProductID, r.Stock, delta)
	}
	if next > MaxQuantity {
		return r.Stock, fmt.Errorf("%w: product %s stock would exceed %d", ErrValidation, r.ProductID, MaxQuantity)
	}
	return next, nil
}

// StockHistoryEntry is an append-only audit row for one accepted mutation.
type StockHistoryEntry struct {
	ID        int64     `json:"id"`
	ProductID string    `json:"productId"`
	QtyChange int       `json:"qtyChange"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
