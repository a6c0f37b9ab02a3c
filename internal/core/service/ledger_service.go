package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
	"github.com/rl1809/order-fulfillment/internal/port"
)

const (
	DefaultMaxAttempts       = 3
	DefaultLowStockThreshold = 10
)

// RetryPolicy bounds the optimistic write loop of ApplyStockDelta.
type RetryPolicy struct {
	MaxAttempts    int
	Interval       time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		Interval:       10 * time.Millisecond,
		AttemptTimeout: 2 * time.Second,
	}
}

type LedgerService struct {
	stocks  port.StockRepository
	policy  RetryPolicy
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics.Ledger
	now     func() time.Time
}

func NewLedgerService(stocks port.StockRepository, policy RetryPolicy, logger *zap.Logger, tracer trace.Tracer, m *metrics.Ledger) *LedgerService {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	return &LedgerService{
		stocks:  stocks,
		policy:  policy,
		logger:  logger,
		tracer:  tracer,
		metrics: m,
		now:     time.Now,
	}
}

// ApplyStockDelta adds delta to the product's stock under optimistic
// concurrency. A conflicting write is retried from a fresh read up to
// MaxAttempts; a negative result is rejected without retry.
func (s *LedgerService) ApplyStockDelta(ctx context.Context, productID string, delta int, reason string) (domain.StockRecord, error) {
	return s.ApplyStockRequest(ctx, productID, delta, reason, "")
}

// ApplyStockRequest is ApplyStockDelta keyed by requestID. A request the
// ledger already applied is answered with the current record and changes
// nothing, so callers can repeat a call whose reply they lost.
func (s *LedgerService) ApplyStockRequest(ctx context.Context, productID string, delta int, reason, requestID string) (domain.StockRecord, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.apply_stock_delta")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int("stock.delta", delta),
		attribute.String("stock.reason", reason),
		attribute.String("stock.request_id", requestID),
	)

	record, attempts, replayed, err := s.applyWithRetry(ctx, productID, delta, requestID)
	span.SetAttributes(attribute.Int("ledger.attempts", attempts), attribute.Bool("ledger.replayed", replayed))

	outcome := domain.OutcomeOf(err)
	s.metrics.Mutations.WithLabelValues(string(outcome)).Inc()
	if err != nil {
		span.SetStatus(codes.Error, string(outcome))
		s.logger.Info("stock mutation rejected",
			zap.String("product_id", productID),
			zap.Int("delta", delta),
			zap.String("reason", reason),
			zap.Int("attempts", attempts),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		return domain.StockRecord{}, err
	}

	if replayed {
		s.logger.Info("stock request already applied",
			zap.String("product_id", productID),
			zap.String("reason", reason),
			zap.String("request_id", requestID),
		)
		return record, nil
	}

	entry := domain.StockHistoryEntry{
		ProductID: productID,
		QtyChange: delta,
		Reason:    reason,
		Timestamp: s.now(),
	}
	// The mutation is committed; the audit row must not depend on the caller.
	if err := s.stocks.AppendHistory(context.WithoutCancel(ctx), entry); err != nil {
		s.metrics.HistoryFailures.Inc()
		s.logger.Error("stock history append failed, mutation kept",
			zap.String("product_id", productID),
			zap.Int("delta", delta),
			zap.String("reason", reason),
			zap.Int64("version", record.Version),
			zap.Error(err),
		)
	}

	s.logger.Info("stock mutation applied",
		zap.String("product_id", productID),
		zap.Int("delta", delta),
		zap.String("reason", reason),
		zap.Int("stock", record.Stock),
		zap.Int64("version", record.Version),
		zap.Int("attempts", attempts),
	)
	return record, nil
}

func (s *LedgerService) applyWithRetry(ctx context.Context, productID string, delta int, requestID string) (domain.StockRecord, int, bool, error) {
	if strings.TrimSpace(productID) == "" {
		return domain.StockRecord{}, 0, false, fmt.Errorf("%w: productId is required", domain.ErrValidation)
	}
	if delta == 0 {
		return domain.StockRecord{}, 0, false, fmt.Errorf("%w: delta must be non-zero", domain.ErrValidation)
	}
	if delta > domain.MaxQuantity || delta < -domain.MaxQuantity {
		return domain.StockRecord{}, 0, false, fmt.Errorf("%w: delta must be within ±%d", domain.ErrValidation, domain.MaxQuantity)
	}

	var (
		record   domain.StockRecord
		attempts int
		replayed bool
	)
	attempt := func() error {
		attempts++
		updated, dup, err := s.tryApply(ctx, productID, delta, requestID)
		if errors.Is(err, domain.ErrOptimisticLock) {
			s.metrics.Attempts.WithLabelValues("conflict").Inc()
			return err
		}
		if err != nil {
			s.metrics.Attempts.WithLabelValues("rejected").Inc()
			return backoff.Permanent(err)
		}
		if dup {
			s.metrics.Attempts.WithLabelValues("replayed").Inc()
		} else {
			s.metrics.Attempts.WithLabelValues("committed").Inc()
		}
		record, replayed = *updated, dup
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.policy.Interval), uint64(s.policy.MaxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		s.logger.Debug("stock write conflict, retrying",
			zap.String("product_id", productID),
			zap.String("request_id", requestID),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
		)
	})
	if errors.Is(err, domain.ErrOptimisticLock) {
		return domain.StockRecord{}, attempts, false, fmt.Errorf("%w: product %s after %d attempts", domain.ErrConcurrencyExhausted, productID, attempts)
	}
	if err != nil {
		return domain.StockRecord{}, attempts, false, err
	}
	return record, attempts, replayed, nil
}

// tryApply is one read-check-write round bounded by the attempt timeout.
// The bool is true when requestID had already been applied.
func (s *LedgerService) tryApply(ctx context.Context, productID string, delta int, requestID string) (*domain.StockRecord, bool, error) {
	if s.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.AttemptTimeout)
		defer cancel()
	}

	current, err := s.stocks.GetStock(ctx, productID)
	if err != nil {
		return nil, false, fmt.Errorf("read stock: %w", err)
	}
	if current == nil {
		return nil, false, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}

	if requestID != "" {
		applied, err := s.stocks.RequestApplied(ctx, productID, requestID)
		if err != nil {
			return nil, false, fmt.Errorf("read request: %w", err)
		}
		if applied {
			return current, true, nil
		}
	}

	next, err := current.Apply(delta)
	if err != nil {
		return nil, false, err
	}

	updated, err := s.stocks.CompareAndSwapStock(ctx, productID, next, current.Version, requestID)
	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		// A concurrent copy of the request committed first.
		latest, err := s.stocks.GetStock(ctx, productID)
		if err != nil {
			return nil, false, fmt.Errorf("read stock: %w", err)
		}
		return latest, true, nil
	case errors.Is(err, domain.ErrOptimisticLock):
		return nil, false, err
	case err != nil:
		return nil, false, fmt.Errorf("write stock: %w", err)
	}
	return updated, false, nil
}

// RegisterProduct creates the stock record for a product at version 0.
func (s *LedgerService) RegisterProduct(ctx context.Context, productID string, initialStock int) (domain.StockRecord, error) {
	if strings.TrimSpace(productID) == "" {
		return domain.StockRecord{}, fmt.Errorf("%w: productId is required", domain.ErrValidation)
	}
	if initialStock < 0 || initialStock > domain.MaxQuantity {
		return domain.StockRecord{}, fmt.Errorf("%w: stock must be within 0..%d", domain.ErrValidation, domain.MaxQuantity)
	}

	now := s.now()
	record := domain.StockRecord{
		ProductID: productID,
		Stock:     initialStock,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stocks.CreateStock(ctx, record); err != nil {
		return domain.StockRecord{}, fmt.Errorf("create stock %s: %w", productID, err)
	}

	s.logger.Info("product registered", zap.String("product_id", productID), zap.Int("stock", initialStock))
	return record, nil
}

func (s *LedgerService) GetStock(ctx context.Context, productID string) (domain.StockRecord, error) {
	rec, err := s.stocks.GetStock(ctx, productID)
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("read stock: %w", err)
	}
	if rec == nil {
		return domain.StockRecord{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	return *rec, nil
}

// LowStock lists products whose stock is below threshold (DefaultLowStockThreshold when <= 0).
func (s *LedgerService) LowStock(ctx context.Context, threshold int) ([]domain.StockRecord, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return s.stocks.ListLowStock(ctx, threshold)
}

func (s *LedgerService) History(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error) {
	if _, err := s.GetStock(ctx, productID); err != nil {
		return nil, err
	}
	return s.stocks.ListHistory(ctx, productID)
}
