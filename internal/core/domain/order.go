package domain

import (
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ParseOrderStatus accepts any casing of a known status.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
}

// Terminal reports whether no further mutation is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusCancelled
}

type OrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type Order struct {
	ID            string          `json:"id"`
	CustomerEmail string          `json:"customerEmail"`
	Status        OrderStatus     `json:"status"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// NewOrder builds a PENDING order with its total computed from items.
func NewOrder(id, customerEmail string, items []OrderItem, now time.Time) (*Order, error) {
	if err := ValidateCustomerEmail(customerEmail); err != nil {
		return nil, err
	}
	if err := ValidateItems(items); err != nil {
		return nil, err
	}

	order := &Order{
		ID:            id,
		CustomerEmail: strings.TrimSpace(customerEmail),
		Status:        OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.setItems(items)
	return order, nil
}

// ReplaceItems swaps the item set of a PENDING order and recomputes the total.
func (o *Order) ReplaceItems(items []OrderItem, now time.Time) error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s", ErrInvalidState, o.ID, o.Status)
	}
	if err := ValidateItems(items); err != nil {
		return err
	}
	o.setItems(items)
	o.UpdatedAt = now
	return nil
}

func (o *Order) Confirm(now time.Time) error {
	return o.transition(OrderStatusConfirmed, now)
}

func (o *Order) Cancel(now time.Time) error {
	return o.transition(OrderStatusCancelled, now)
}

func (o *Order) transition(to OrderStatus, now time.Time) error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidState, o.ID, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

func (o *Order) setItems(items []OrderItem) {
	o.Items = append([]OrderItem(nil), items...)
	o.Total = OrderTotal(o.Items)
}

// Clone returns a deep copy so callers can mutate without aliasing items.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

// OrderTotal is the sum of quantity * unit price over items.
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func ValidateCustomerEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: customerEmail is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: customerEmail %q is not an address", ErrValidation, email)
	}
	return nil
}

// Storage limits: quantities and stock are 32-bit, amounts are NUMERIC(14,2).
const (
	MaxQuantity   = math.MaxInt32
	MaxPriceScale = 2
)

var MaxAmount = decimal.RequireFromString("999999999999.99")

func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must have at least one item", ErrValidation)
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("%w: item %d: productId is required", ErrValidation, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be greater than 0", ErrValidation, i)
		}
		if it.Quantity > MaxQuantity {
			return fmt.Errorf("%w: item %d: quantity must be at most %d", ErrValidation, i, MaxQuantity)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %d: unitPrice must be greater than or equal to 0", ErrValidation, i)
		}
		if it.UnitPrice.Exponent() < -MaxPriceScale && !it.UnitPrice.Equal(it.UnitPrice.Round(MaxPriceScale)) {
			return fmt.Errorf("%w: item %d: unitPrice %s has more than %d decimal places", ErrValidation, i, it.UnitPrice, MaxPriceScale)
		}
	}
	if total := OrderTotal(items); total.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: order total %s exceeds %s", ErrValidation, total, MaxAmount)
	}
	return nil
}

// StockChange is a signed quantity change for one product.
type StockChange struct {
	ProductID string
	Delta     int
}

// DiffQuantities compares two item sets per product. Increases and decreases
// are returned as positive magnitudes, in first-appearance order (new items
// first, then products only present in the old set).
func DiffQuantities(oldItems, newItems []OrderItem) (increases, decreases []StockChange) {
	oldQty, oldOrder := quantitiesByProduct(oldItems)
	newQty, newOrder := quantitiesByProduct(newItems)

	seen := make(map[string]bool, len(newOrder)+len(oldOrder))
	for _, pid := range append(newOrder, oldOrder...) {
		if seen[pid] {
			continue
		}
		seen[pid] = true

		switch delta := newQty[pid] - oldQty[pid]; {
		case delta > 0:
			increases = append(increases, StockChange{ProductID: pid, Delta: delta})
		case delta < 0:
			decreases = append(decreases, StockChange{ProductID: pid, Delta: -delta})
		}
	}
	return increases, decreases
}

func quantitiesByProduct(items []OrderItem) (map[string]int, []string) {
	qty := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := qty[it.ProductID]; !ok {
			order = append(order, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	return qty, order
}
