// Package rpc defines the inventory ledger gRPC contract: request and response
// messages, the service descriptor and a client stub. Messages travel as JSON.
package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	LedgerServiceName = "fulfillment.inventory.v1.Ledger"

	UpdateStockFullMethod = "/" + LedgerServiceName + "/UpdateStock"
)

type UpdateStockRequest struct {
	ProductID string `json:"productId"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	RequestID string `json:"requestId,omitempty"`
}

type UpdateStockResponse struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
	Version   int64  `json:"version"`
	Outcome   string `json:"outcome"`
}

type LedgerServer interface {
	UpdateStock(ctx context.Context, req *UpdateStockRequest) (*UpdateStockResponse, error)
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

func updateStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).UpdateStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: UpdateStockFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).UpdateStock(ctx, req.(*UpdateStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "UpdateStock",
			Handler:    updateStockHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fulfillment/inventory/v1/ledger",
}

type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) UpdateStock(ctx context.Context, in *UpdateStockRequest, opts ...grpc.CallOption) (*UpdateStockResponse, error) {
	out := new(UpdateStockResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, UpdateStockFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
