package server

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"finance-server-go/api/finance"
	"finance-server-go/internal/service"
)

// handler adapts service.Service to the generated-style server interface.
type handler struct {
	finance.UnimplementedStockServiceServer

	svc *service.Service
	log *zap.Logger

	// draining is cancelled when the server starts a graceful stop, which
	// ends open price streams.
	draining context.Context
}

func (h *handler) GetTickerList(ctx context.Context, _ *finance.TickerListRequest) (*finance.TickerListResponse, error) {
	return &finance.TickerListResponse{Tickers: h.svc.ListTickers(ctx)}, nil
}

func (h *handler) GetPrice(ctx context.Context, req *finance.PriceRequest) (*finance.PriceResponse, error) {
	q, err := h.svc.GetPrice(ctx, req.Ticker)
	if err != nil {
		return nil, toStatus(err)
	}
	return &finance.PriceResponse{Ticker: q.Ticker, Price: q.Price, FormattedMessage: q.Message}, nil
}

func (h *handler) GetMultiplePrices(ctx context.Context, req *finance.MultiplePricesRequest) (*finance.MultiplePricesResponse, error) {
	b, err := h.svc.GetMultiplePrices(ctx, req.Ticker, req.Count)
	if err != nil {
		return nil, toStatus(err)
	}
	return &finance.MultiplePricesResponse{Ticker: b.Ticker, Prices: b.Prices, FormattedMessage: b.Message}, nil
}

func (h *handler) GetStats(ctx context.Context, req *finance.StatsRequest) (*finance.StatsResponse, error) {
	s, err := h.svc.GetStats(ctx, req.Ticker)
	if err != nil {
		return nil, toStatus(err)
	}
	return &finance.StatsResponse{
		Ticker:           s.Ticker,
		Prices:           s.Prices,
		Average:          s.Average,
		StdDeviation:     s.StdDeviation,
		FormattedMessage: s.Message,
	}, nil
}

// StreamPrices pumps session updates to the stream. A failed send or a
// cancelled call stops the session, which releases the client. Neither is
// reported to the caller.
func (h *handler) StreamPrices(req *finance.PriceRequest, stream finance.StockService_StreamPricesServer) error {
	ctx, cancel := context.WithCancel(stream.Context())
	stop := context.AfterFunc(h.draining, cancel)
	defer stop()

	client := clientID(stream.Context())
	sess, err := h.svc.StreamPrices(ctx, client, req.Ticker)
	if err != nil {
		cancel()
		return toStatus(err)
	}
	defer func() {
		cancel()
		<-sess.Done()
	}()

	for u := range sess.Updates() {
		msg := &finance.PriceResponse{Ticker: u.Ticker, Price: u.Price, FormattedMessage: u.Message}
		if err := stream.Send(msg); err != nil {
			h.log.Debug("stream send failed",
				zap.String("session", sess.ID()),
				zap.String("client", string(client)),
				zap.Error(err))
			return nil
		}
	}
	return nil
}

// toStatus 把业务错误映射成 grpc 状态码。
func toStatus(err error) error {
	var verr *service.ValidationError
	if !errors.As(err, &verr) {
		return status.Error(codes.Internal, err.Error())
	}
	switch {
	case errors.Is(err, service.ErrNoHistory):
		return status.Error(codes.NotFound, verr.Msg)
	default:
		return status.Error(codes.InvalidArgument, verr.Msg)
	}
}
