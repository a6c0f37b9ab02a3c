package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/platform/metrics"
	"github.com/rl1809/order-fulfillment/internal/port"
)

var testTracer = noop.NewTracerProvider().Tracer("test")

// Mock StockRepository
type mockStockRepo struct {
	mu      sync.Mutex
	records  map[string]domain.StockRecord
	history  []domain.StockHistoryEntry
	requests map[string]bool

	// beforeSwap runs without the lock held, before the version check.
	beforeSwap func(productID string)
	// afterSwap runs after a committed swap.
	afterSwap  func(productID string)
	historyErr error
	casCalls   int
}

func newMockStockRepo(stocks map[string]int) *mockStockRepo {
	m := &mockStockRepo{records: make(map[string]domain.StockRecord), requests: make(map[string]bool)}
	for id, qty := range stocks {
		m.records[id] = domain.StockRecord{ProductID: id, Stock: qty}
	}
	return m
}

func (m *mockStockRepo) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[productID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *mockStockRepo) CompareAndSwapStock(ctx context.Context, productID string, stock int, expectedVersion int64, requestID string) (*domain.StockRecord, error) {
	if m.beforeSwap != nil {
		m.beforeSwap(productID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++

	key := productID + "|" + requestID
	if requestID != "" && m.requests[key] {
		return nil, domain.ErrDuplicateRequest
	}
	rec, ok := m.records[productID]
	if !ok || rec.Version != expectedVersion {
		return nil, domain.ErrOptimisticLock
	}
	rec.Stock = stock
	rec.Version++
	m.records[productID] = rec
	if requestID != "" {
		m.requests[key] = true
	}
	if m.afterSwap != nil {
		defer m.afterSwap(productID)
	}
	return &rec, nil
}

func (m *mockStockRepo) RequestApplied(ctx context.Context, productID, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[productID+"|"+requestID], nil
}

func (m *mockStockRepo) CreateStock(ctx context.Context, record domain.StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ProductID]; ok {
		return domain.ErrAlreadyExists
	}
	m.records[record.ProductID] = record
	return nil
}

func (m *mockStockRepo) ListLowStock(ctx context.Context, threshold int) ([]domain.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StockRecord
	for _, rec := range m.records {
		if rec.Stock < threshold {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *mockStockRepo) AppendHistory(ctx context.Context, entry domain.StockHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.historyErr != nil {
		return m.historyErr
	}
	entry.ID = int64(len(m.history) + 1)
	m.history = append(m.history, entry)
	return nil
}

func (m *mockStockRepo) ListHistory(ctx context.Context, productID string) ([]domain.StockHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StockHistoryEntry
	for _, e := range m.history {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStockRepo) stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[productID].Stock
}

func (m *mockStockRepo) version(productID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[productID].Version
}

// Mock OrderRepository
type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	updates   []domain.OrderStatus
	updateErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*domain.Order)}
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *mockOrderRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (m *mockOrderRepo) UpdateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updates = append(m.updates, order.Status)
	if m.updateErr != nil {
		return m.updateErr
	}
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *mockOrderRepo) ListOrders(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Order
	for _, o := range m.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.CustomerEmail != "" && o.CustomerEmail != filter.CustomerEmail {
			continue
		}
		out = append(out, *o.Clone())
	}
	return out, nil
}

func (m *mockOrderRepo) put(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Clone()
}

func (m *mockOrderRepo) get(id string) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

type ledgerCall struct {
	ProductID string
	Delta     int
	Reason    string
}

// Mock InventoryLedger, backed by a LedgerService or by canned failures.
type mockLedger struct {
	mu    sync.Mutex
	calls []ledgerCall

	ledger *LedgerService
	// failOn makes the nth call (1-based) fail with the given error.
	failOn map[int]error
	// block makes calls on these products wait for the context.
	block map[string]bool
	// blockOnce blocks only the next call on a product.
	blockOnce map[string]bool
	// lateOnce makes the next call on a product commit, then answer only
	// after the context is done.
	lateOnce   map[string]bool
	requestIDs []string
}

func (m *mockLedger) UpdateStock(ctx context.Context, productID string, delta int, reason, requestID string) error {
	m.mu.Lock()
	m.calls = append(m.calls, ledgerCall{ProductID: productID, Delta: delta, Reason: reason})
	m.requestIDs = append(m.requestIDs, requestID)
	n := len(m.calls)
	failure := m.failOn[n]
	blocked := m.block[productID] || m.blockOnce[productID]
	delete(m.blockOnce, productID)
	late := m.lateOnce[productID]
	delete(m.lateOnce, productID)
	m.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	if failure != nil {
		return failure
	}
	if m.ledger == nil {
		return nil
	}
	ledgerCtx := ctx
	if late {
		ledgerCtx = context.WithoutCancel(ctx)
	}
	_, err := m.ledger.ApplyStockRequest(ledgerCtx, productID, delta, reason, requestID)
	if late {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *mockLedger) recorded() []ledgerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledgerCall(nil), m.calls...)
}

// Mock Notifier
type mockNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (m *mockNotifier) Send(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{keys: make(map[string]string)}
}

func (m *mockCacheRepo) ClaimIdempotencyKey(ctx context.Context, key, orderID string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, "", m.err
	}
	if existing, ok := m.keys[key]; ok {
		return false, existing, nil
	}
	m.keys[key] = orderID
	return true, "", nil
}

func (m *mockCacheRepo) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

var errBoom = errors.New("boom")

func newTestLedgerService(repo *mockStockRepo) *LedgerService {
	policy := DefaultRetryPolicy()
	policy.Interval = 0
	return NewLedgerService(repo, policy, zap.NewNop(), testTracer, metrics.NewLedger(prometheus.NewRegistry()))
}
