package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
	"github.com/rl1809/order-fulfillment/internal/port"
)

func reserveReason(orderID string) string       { return "reserve-order-" + orderID }
func compensateReason(orderID string) string    { return "compensate-order-" + orderID }
func reserveModifyReason(orderID string) string { return "reserve-modify-order-" + orderID }
func releaseModifyReason(orderID string) string { return "release-modify-order-" + orderID }

// stockSaga issues ledger calls for one order operation and remembers every
// call the ledger accepted, so compensation reverses exactly that subset.
// Every call carries a request id unique to this run, which lets a call
// with an unknown outcome be repeated safely.
type stockSaga struct {
	orderID     string
	runID       string
	ledger      port.InventoryLedger
	callTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Saga

	seq     int
	applied []domain.StockChange
}

func newStockSaga(orderID string, ledger port.InventoryLedger, callTimeout time.Duration, logger *zap.Logger, m *metrics.Saga) *stockSaga {
	runID := uuid.NewString()
	return &stockSaga{
		orderID:     orderID,
		runID:       runID,
		ledger:      ledger,
		callTimeout: callTimeout,
		logger:      logger.With(zap.String("order_id", orderID), zap.String("saga_run", runID)),
		metrics:     m,
	}
}

func (s *stockSaga) nextRequestID() string {
	s.seq++
	return fmt.Sprintf("%s/%d", s.runID, s.seq)
}

func (s *stockSaga) call(ctx context.Context, productID string, delta int, reason, requestID string) error {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
	}
	defer cancel()

	err := s.ledger.UpdateStock(callCtx, productID, delta, reason, requestID)
	if err != nil && callCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("%w: call for product %s timed out after %s: %v", domain.ErrInventoryUnavailable, productID, s.callTimeout, err)
	}
	return err
}

// outcomeUnknown reports whether the ledger may have committed a call that
// returned err.
func outcomeUnknown(err error) bool {
	return errors.Is(err, domain.ErrInventoryUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// apply calls the ledger once with its own deadline. A timeout counts as a
// failure of the step. When the outcome is unknown the same request is sent
// again; the ledger answers it without applying twice, so a success means
// the change is held and must be compensated.
func (s *stockSaga) apply(ctx context.Context, productID string, delta int, reason string) error {
	requestID := s.nextRequestID()

	err := s.call(ctx, productID, delta, reason, requestID)
	if err == nil {
		s.applied = append(s.applied, domain.StockChange{ProductID: productID, Delta: delta})
		return nil
	}

	s.logger.Warn("stock step failed",
		zap.String("product_id", productID),
		zap.Int("delta", delta),
		zap.String("reason", reason),
		zap.String("request_id", requestID),
		zap.Error(err),
	)
	if outcomeUnknown(err) {
		s.resolve(ctx, productID, delta, reason, requestID)
	}
	return err
}

// resolve repeats a call whose outcome is unknown, detached from the
// caller's cancellation.
func (s *stockSaga) resolve(ctx context.Context, productID string, delta int, reason, requestID string) {
	err := s.call(context.WithoutCancel(ctx), productID, delta, reason, requestID)
	switch {
	case err == nil:
		s.applied = append(s.applied, domain.StockChange{ProductID: productID, Delta: delta})
		s.metrics.Resolutions.WithLabelValues("held").Inc()
		s.logger.Info("unknown stock step resolved as held",
			zap.String("product_id", productID),
			zap.String("request_id", requestID),
		)
	case outcomeUnknown(err):
		s.metrics.Resolutions.WithLabelValues("unknown").Inc()
		s.logger.Error("stock step outcome unknown, manual reconciliation required",
			zap.String("product_id", productID),
			zap.Int("delta", delta),
			zap.String("reason", reason),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	default:
		s.metrics.Resolutions.WithLabelValues("rejected").Inc()
	}
}

// compensate reverses every applied change, newest first. Failures are
// logged and left for manual reconciliation.
func (s *stockSaga) compensate(ctx context.Context, reason string) int {
	ctx = context.WithoutCancel(ctx)

	failed := 0
	for i := len(s.applied) - 1; i >= 0; i-- {
		change := s.applied[i]

		requestID := s.nextRequestID()
		err := s.call(ctx, change.ProductID, -change.Delta, reason, requestID)

		if err != nil {
			failed++
			s.metrics.Compensations.WithLabelValues("failed").Inc()
			s.logger.Error("compensation failed, manual reconciliation required",
				zap.String("product_id", change.ProductID),
				zap.Int("delta", -change.Delta),
				zap.String("reason", reason),
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			continue
		}
		s.metrics.Compensations.WithLabelValues("applied").Inc()
	}

	s.applied = nil
	return failed
}
