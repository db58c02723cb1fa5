package finance

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed finance.StockService client.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to target without TLS and forces the JSON codec. The caller
// owns the returned connection.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

func (c *Client) GetTickerList(ctx context.Context, opts ...grpc.CallOption) (*TickerListResponse, error) {
	out := new(TickerListResponse)
	if err := c.cc.Invoke(ctx, StockService_GetTickerList_FullMethodName, &TickerListRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPrice(ctx context.Context, ticker string, opts ...grpc.CallOption) (*PriceResponse, error) {
	out := new(PriceResponse)
	if err := c.cc.Invoke(ctx, StockService_GetPrice_FullMethodName, &PriceRequest{Ticker: ticker}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMultiplePrices(ctx context.Context, ticker string, count int32, opts ...grpc.CallOption) (*MultiplePricesResponse, error) {
	out := new(MultiplePricesResponse)
	in := &MultiplePricesRequest{Ticker: ticker, Count: count}
	if err := c.cc.Invoke(ctx, StockService_GetMultiplePrices_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStats(ctx context.Context, ticker string, opts ...grpc.CallOption) (*StatsResponse, error) {
	out := new(StatsResponse)
	if err := c.cc.Invoke(ctx, StockService_GetStats_FullMethodName, &StatsRequest{Ticker: ticker}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PriceStream is the receive side of StreamPrices. Cancel the call's context
// to stop it.
type PriceStream interface {
	Recv() (*PriceResponse, error)
	grpc.ClientStream
}

type priceStream struct {
	grpc.ClientStream
}

func (x *priceStream) Recv() (*PriceResponse, error) {
	m := new(PriceResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) StreamPrices(ctx context.Context, ticker string, opts ...grpc.CallOption) (PriceStream, error) {
	stream, err := c.cc.NewStream(ctx, &StockService_ServiceDesc.Streams[0], StockService_StreamPrices_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &priceStream{stream}
	if err := x.ClientStream.SendMsg(&PriceRequest{Ticker: ticker}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
