package domain

import "fmt"

const NotificationTypeEmail = "EMAIL"

type NotificationEvent string

const (
	EventOrderConfirmed NotificationEvent = "ORDER_CONFIRMED"
	EventOrderModified  NotificationEvent = "ORDER_MODIFIED"
)

// Notification is the payload handed to the notification gateway.
type Notification struct {
	Type      string            `json:"type"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Event     NotificationEvent `json:"event,omitempty"`
	OrderID   string            `json:"orderId,omitempty"`
}

// NewOrderNotification renders the customer email for an order event.
func NewOrderNotification(event NotificationEvent, order *Order) Notification {
	n := Notification{
		Type:      NotificationTypeEmail,
		Recipient: order.CustomerEmail,
		Event:     event,
		OrderID:   order.ID,
	}

	base := fmt.Sprintf("Hello,\n\nYour order #%s ", order.ID)
	switch event {
	case EventOrderConfirmed:
		n.Subject = "Order Confirmed"
		n.Body = base + "has been confirmed and is being prepared for shipment.\n\nTotal: $" + order.Total.StringFixed(2)
	case EventOrderModified:
		n.Subject = "Order Updated"
		n.Body = base + "has been updated.\n\nNew total: $" + order.Total.StringFixed(2)
	default:
		n.Subject = "Order Status Update"
		n.Body = base + "status is now " + string(order.Status) + "."
	}
	return n
}
