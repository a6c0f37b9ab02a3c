package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-fulfillment/internal/adapter/handler/rpc"
	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

// InventoryGRPCClient is the default port.InventoryLedger adapter.
type InventoryGRPCClient struct {
	conn   *grpc.ClientConn
	ledger *rpc.LedgerClient
}

func NewInventoryGRPCClient(target string, opts ...grpc.DialOption) (*InventoryGRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("create inventory grpc client: %w", err)
	}
	return &InventoryGRPCClient{conn: conn, ledger: rpc.NewLedgerClient(conn)}, nil
}

func (c *InventoryGRPCClient) UpdateStock(ctx context.Context, productID string, delta int, reason, requestID string) error {
	_, err := c.ledger.UpdateStock(ctx, &rpc.UpdateStockRequest{
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		RequestID: requestID,
	})
	if err != nil {
		return ledgerError(err)
	}
	return nil
}

func (c *InventoryGRPCClient) Close() error {
	return c.conn.Close()
}

// ledgerError turns a gRPC status back into the domain error the server mapped.
func ledgerError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrInventoryUnavailable, err)
	}

	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", domain.ErrValidation, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, st.Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %s", domain.ErrConcurrencyExhausted, st.Message())
	default:
		return fmt.Errorf("%w: %s: %s", domain.ErrInventoryUnavailable, st.Code(), st.Message())
	}
}
