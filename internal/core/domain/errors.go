package domain

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidState         = errors.New("invalid state")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrConcurrencyExhausted = errors.New("concurrency retries exhausted")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrInventoryUnavailable = errors.New("inventory unavailable")

	// ErrOptimisticLock is returned by a stock store when a conditional write
	// lost the race against another writer.
	ErrOptimisticLock = errors.New("optimistic lock conflict")
)

// StockOutcome is the tagged result of a ledger mutation.
type StockOutcome string

const (
	OutcomeApplied              StockOutcome = "applied"
	OutcomeNotFound             StockOutcome = "not_found"
	OutcomeInsufficientStock    StockOutcome = "insufficient_stock"
	OutcomeConcurrencyExhausted StockOutcome = "concurrency_exhausted"
	OutcomeInvalid              StockOutcome = "invalid"
	OutcomeFailed               StockOutcome = "failed"
)

// OutcomeOf classifies the error returned by a ledger mutation.
func OutcomeOf(err error) StockOutcome {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, ErrConcurrencyExhausted):
		return OutcomeConcurrencyExhausted
	case errors.Is(err, ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}
