package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-fulfillment/internal/adapter/handler/rpc"
	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

// GRPCHandler serves the ledger contract used by the order saga.
type GRPCHandler struct {
	ledger StockLedger
	logger *zap.Logger
}

func NewGRPCHandler(ledger StockLedger, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, logger: logger}
}

func (h *GRPCHandler) UpdateStock(ctx context.Context, req *rpc.UpdateStockRequest) (*rpc.UpdateStockResponse, error) {
	rec, err := h.ledger.ApplyStockRequest(ctx, req.ProductID, req.Delta, req.Reason, req.RequestID)
	if err != nil {
		st := grpcStatus(err)
		if st.Code() == codes.Internal {
			h.logger.Error("update stock failed", zap.String("product_id", req.ProductID), zap.Error(err))
		}
		return nil, st.Err()
	}

	return &rpc.UpdateStockResponse{
		ProductID: rec.ProductID,
		Stock:     rec.Stock,
		Version:   rec.Version,
		Outcome:   string(domain.OutcomeApplied),
	}, nil
}

func grpcStatus(err error) *status.Status {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		return status.New(codes.Aborted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	default:
		return status.New(codes.Internal, "internal error")
	}
}
