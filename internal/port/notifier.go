package port

import (
	"context"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}
