package port

import "context"

// InventoryLedger is the remote stock contract the order saga depends on.
// Errors wrap domain.ErrNotFound, domain.ErrInsufficientStock,
// domain.ErrConcurrencyExhausted or domain.ErrInventoryUnavailable.
//
// requestID makes the call idempotent: the ledger applies a given
// (productID, requestID) pair at most once and answers repeats with success.
type InventoryLedger interface {
	UpdateStock(ctx context.Context, productID string, delta int, reason, requestID string) error
}
