package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
	"github.com/rl1809/order-fulfillment/internal/port"
)

const defaultListLimit = 50

type OrderServiceConfig struct {
	InventoryCallTimeout time.Duration
	NotifyTimeout        time.Duration
}

type OrderServiceDeps struct {
	Orders   port.OrderRepository
	Ledger   port.InventoryLedger
	Notifier port.Notifier
	// Cache is optional; without it Idempotency-Key is ignored.
	Cache   port.CacheRepository
	Logger  *zap.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Saga
}

// OrderService drives the order lifecycle. It reserves and releases stock
// only through the remote ledger and compensates its own partial work.
type OrderService struct {
	orders   port.OrderRepository
	ledger   port.InventoryLedger
	notifier port.Notifier
	cache    port.CacheRepository
	cfg      OrderServiceConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  *metrics.Saga
	now      func() time.Time
	newID    func() string
}

func NewOrderService(deps OrderServiceDeps, cfg OrderServiceConfig) *OrderService {
	return &OrderService{
		orders:   deps.Orders,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		cache:    deps.Cache,
		cfg:      cfg,
		logger:   deps.Logger,
		tracer:   deps.Tracer,
		metrics:  deps.Metrics,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type CreateOrderInput struct {
	CustomerEmail  string
	Items          []domain.OrderItem
	IdempotencyKey string
}

// CreateOrder persists a PENDING order, reserves stock item by item and
// confirms it. When a reservation fails the applied reservations are
// reversed and the CANCELLED order is returned together with the error.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.create")
	defer span.End()

	order, err := domain.NewOrder(s.newID(), in.CustomerEmail, in.Items, s.now())
	if err != nil {
		s.metrics.Outcomes.WithLabelValues("create", "rejected").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int("order.items", len(order.Items)))

	if in.IdempotencyKey != "" && s.cache != nil {
		claimed, existingID, err := s.cache.ClaimIdempotencyKey(ctx, in.IdempotencyKey, order.ID)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !claimed {
			return s.replay(ctx, in.IdempotencyKey, existingID)
		}
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.releaseKey(ctx, in.IdempotencyKey)
		return nil, fmt.Errorf("persist order: %w", err)
	}
	s.logger.Info("order saga started", zap.String("order_id", order.ID), zap.Int("items", len(order.Items)))

	saga := newStockSaga(order.ID, s.ledger, s.cfg.InventoryCallTimeout, s.logger, s.metrics)
	for _, it := range order.Items {
		if err := saga.apply(ctx, it.ProductID, -it.Quantity, reserveReason(order.ID)); err != nil {
			span.SetStatus(codes.Error, "reservation failed")
			return s.abortCreate(ctx, order, saga, fmt.Errorf("reserve %s for order %s: %w", it.ProductID, order.ID, err))
		}
	}

	confirmed := order.Clone()
	if err := confirmed.Confirm(s.now()); err != nil {
		return s.abortCreate(ctx, order, saga, err)
	}
	if err := s.orders.UpdateOrder(ctx, confirmed); err != nil {
		span.SetStatus(codes.Error, "confirm failed")
		return s.abortCreate(ctx, order, saga, fmt.Errorf("confirm order %s: %w", order.ID, err))
	}

	s.metrics.Outcomes.WithLabelValues("create", "confirmed").Inc()
	s.logger.Info("order confirmed", zap.String("order_id", confirmed.ID), zap.String("total", confirmed.Total.String()))
	s.notify(ctx, domain.EventOrderConfirmed, confirmed)
	return confirmed, nil
}

func (s *OrderService) abortCreate(ctx context.Context, order *domain.Order, saga *stockSaga, cause error) (*domain.Order, error) {
	failed := saga.compensate(ctx, compensateReason(order.ID))

	cancelled := order.Clone()
	if err := cancelled.Cancel(s.now()); err != nil {
		return nil, errors.Join(cause, err)
	}
	if err := s.orders.UpdateOrder(context.WithoutCancel(ctx), cancelled); err != nil {
		s.logger.Error("failed to persist cancelled order",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	s.metrics.Outcomes.WithLabelValues("create", "cancelled").Inc()
	s.logger.Warn("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("outcome", string(domain.OutcomeOf(cause))),
		zap.Int("compensation_failures", failed),
		zap.Error(cause),
	)
	return cancelled, cause
}

// replay answers a repeated create with the order the key is bound to.
func (s *OrderService) replay(ctx context.Context, key, orderID string) (*domain.Order, error) {
	existing, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order for idempotency key: %w", err)
	}
	if existing == nil || existing.Status == domain.OrderStatusPending {
		return nil, fmt.Errorf("%w: key %s is in progress", domain.ErrDuplicateRequest, key)
	}

	s.logger.Info("idempotent replay", zap.String("order_id", existing.ID), zap.String("status", string(existing.Status)))
	if existing.Status == domain.OrderStatusCancelled {
		return existing, fmt.Errorf("%w: key %s already produced cancelled order %s", domain.ErrDuplicateRequest, key, existing.ID)
	}
	return existing, nil
}

func (s *OrderService) releaseKey(ctx context.Context, key string) {
	if key == "" || s.cache == nil {
		return
	}
	if err := s.cache.ReleaseIdempotencyKey(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

// ModifyOrder replaces the items of a PENDING order. Increases are reserved
// before any decrease is released.
func (s *OrderService) ModifyOrder(ctx context.Context, orderID string, items []domain.OrderItem) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.modify")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	existing, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if existing == nil {
		s.metrics.Outcomes.WithLabelValues("modify", "rejected").Inc()
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if existing.Status != domain.OrderStatusPending {
		s.metrics.Outcomes.WithLabelValues("modify", "rejected").Inc()
		return nil, fmt.Errorf("%w: only PENDING orders can be modified, order %s is %s", domain.ErrInvalidState, orderID, existing.Status)
	}

	updated := existing.Clone()
	if err := updated.ReplaceItems(items, s.now()); err != nil {
		s.metrics.Outcomes.WithLabelValues("modify", "rejected").Inc()
		return nil, err
	}

	increases, decreases := domain.DiffQuantities(existing.Items, updated.Items)
	saga := newStockSaga(orderID, s.ledger, s.cfg.InventoryCallTimeout, s.logger, s.metrics)

	for _, c := range increases {
		if err := saga.apply(ctx, c.ProductID, -c.Delta, reserveModifyReason(orderID)); err != nil {
			span.SetStatus(codes.Error, "reservation failed")
			saga.compensate(ctx, compensateReason(orderID))
			s.metrics.Outcomes.WithLabelValues("modify", "failed").Inc()
			return nil, fmt.Errorf("reserve %s for order %s: %w", c.ProductID, orderID, err)
		}
	}

	for _, c := range decreases {
		if err := saga.apply(ctx, c.ProductID, c.Delta, releaseModifyReason(orderID)); err != nil {
			s.metrics.Compensations.WithLabelValues("release_failed").Inc()
			s.logger.Error("release failed, manual reconciliation required",
				zap.String("order_id", orderID),
				zap.String("product_id", c.ProductID),
				zap.Int("delta", c.Delta),
				zap.Error(err),
			)
		}
	}

	if err := s.orders.UpdateOrder(ctx, updated); err != nil {
		span.SetStatus(codes.Error, "persist failed")
		saga.compensate(ctx, compensateReason(orderID))
		s.metrics.Outcomes.WithLabelValues("modify", "failed").Inc()
		return nil, fmt.Errorf("persist modified order %s: %w", orderID, err)
	}

	s.metrics.Outcomes.WithLabelValues("modify", "modified").Inc()
	s.logger.Info("order modified",
		zap.String("order_id", orderID),
		zap.Int("increases", len(increases)),
		zap.Int("decreases", len(decreases)),
		zap.String("total", updated.Total.String()),
	)
	s.notify(ctx, domain.EventOrderModified, updated)
	return updated, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	return s.orders.ListOrders(ctx, filter)
}

// notify is best effort: the outcome is logged and never reaches the caller.
func (s *OrderService) notify(ctx context.Context, event domain.NotificationEvent, order *domain.Order) {
	if s.notifier == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if s.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()
	}

	if err := s.notifier.Send(ctx, domain.NewOrderNotification(event, order)); err != nil {
		s.metrics.Notifications.WithLabelValues("failed").Inc()
		s.logger.Warn("notification failed",
			zap.String("order_id", order.ID),
			zap.String("event", string(event)),
			zap.Error(err),
		)
		return
	}
	s.metrics.Notifications.WithLabelValues("sent").Inc()
}
