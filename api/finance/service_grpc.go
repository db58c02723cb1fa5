package finance

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "finance.StockService"

const (
	StockService_GetTickerList_FullMethodName     = "/finance.StockService/GetTickerList"
	StockService_GetPrice_FullMethodName          = "/finance.StockService/GetPrice"
	StockService_GetMultiplePrices_FullMethodName = "/finance.StockService/GetMultiplePrices"
	StockService_GetStats_FullMethodName          = "/finance.StockService/GetStats"
	StockService_StreamPrices_FullMethodName      = "/finance.StockService/StreamPrices"
)

// StockServiceServer is the server API for finance.StockService.
type StockServiceServer interface {
	GetTickerList(context.Context, *TickerListRequest) (*TickerListResponse, error)
	GetPrice(context.Context, *PriceRequest) (*PriceResponse, error)
	GetMultiplePrices(context.Context, *MultiplePricesRequest) (*MultiplePricesResponse, error)
	GetStats(context.Context, *StatsRequest) (*StatsResponse, error)
	StreamPrices(*PriceRequest, StockService_StreamPricesServer) error
}

// UnimplementedStockServiceServer can be embedded for forward compatibility.
type UnimplementedStockServiceServer struct{}

func (UnimplementedStockServiceServer) GetTickerList(context.Context, *TickerListRequest) (*TickerListResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetTickerList not implemented")
}
func (UnimplementedStockServiceServer) GetPrice(context.Context, *PriceRequest) (*PriceResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetPrice not implemented")
}
func (UnimplementedStockServiceServer) GetMultiplePrices(context.Context, *MultiplePricesRequest) (*MultiplePricesResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetMultiplePrices not implemented")
}
func (UnimplementedStockServiceServer) GetStats(context.Context, *StatsRequest) (*StatsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetStats not implemented")
}
func (UnimplementedStockServiceServer) StreamPrices(*PriceRequest, StockService_StreamPricesServer) error {
	return status.Errorf(codes.Unimplemented, "method StreamPrices not implemented")
}

func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&StockService_ServiceDesc, srv)
}

// StockService_StreamPricesServer is the server side of a price stream.
type StockService_StreamPricesServer interface {
	Send(*PriceResponse) error
	grpc.ServerStream
}

type stockServiceStreamPricesServer struct {
	grpc.ServerStream
}

func (x *stockServiceStreamPricesServer) Send(m *PriceResponse) error {
	return x.ServerStream.SendMsg(m)
}

func _StockService_GetTickerList_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TickerListRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).GetTickerList(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StockService_GetTickerList_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StockServiceServer).GetTickerList(ctx, req.(*TickerListRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StockService_GetPrice_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PriceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).GetPrice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StockService_GetPrice_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StockServiceServer).GetPrice(ctx, req.(*PriceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StockService_GetMultiplePrices_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MultiplePricesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).GetMultiplePrices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StockService_GetMultiplePrices_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StockServiceServer).GetMultiplePrices(ctx, req.(*MultiplePricesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StockService_GetStats_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StockServiceServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StockService_GetStats_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StockServiceServer).GetStats(ctx, req.(*StatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _StockService_StreamPrices_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(PriceRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(StockServiceServer).StreamPrices(m, &stockServiceStreamPricesServer{stream})
}

// StockService_ServiceDesc is the grpc.ServiceDesc for finance.StockService.
var StockService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTickerList", Handler: _StockService_GetTickerList_Handler},
		{MethodName: "GetPrice", Handler: _StockService_GetPrice_Handler},
		{MethodName: "GetMultiplePrices", Handler: _StockService_GetMultiplePrices_Handler},
		{MethodName: "GetStats", Handler: _StockService_GetStats_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamPrices",
			Handler:       _StockService_StreamPrices_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "finance.proto",
}
