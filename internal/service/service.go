// Package service implements the stock-price operations independent of any
// transport. Transports call Hook().Observe with the caller identity before
// dispatching to a handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"finance-server-go/internal/registry"
	"finance-server-go/internal/stream"
	"finance-server-go/market"
)

var (
	ErrInvalidTicker = errors.New("invalid ticker")
	ErrInvalidCount  = errors.New("invalid count")
	ErrNoHistory     = errors.New("no price history")
)

// ValidationError carries the caller-facing message for a rejected request.
type ValidationError struct {
	Kind error
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalidTicker(ticker string) error {
	return &ValidationError{Kind: ErrInvalidTicker, Msg: fmt.Sprintf("Invalid ticker: %s", ticker)}
}

func invalidCount(count int32) error {
	return &ValidationError{Kind: ErrInvalidCount, Msg: fmt.Sprintf("Count must be positive, got %d", count)}
}

func countTooLarge(count int32, max int) error {
	return &ValidationError{Kind: ErrInvalidCount, Msg: fmt.Sprintf("Count must be at most %d, got %d", max, count)}
}

func noHistory(ticker string) error {
	return &ValidationError{Kind: ErrNoHistory, Msg: fmt.Sprintf("No price history for %s", ticker)}
}

// ConnectionHook is invoked for every inbound call; *registry.Registry satisfies it.
type ConnectionHook interface {
	Observe(id registry.ClientID)
}

// Connections is what the service needs from the registry.
type Connections interface {
	ConnectionHook
	stream.Membership
}

type Metrics interface {
	stream.Metrics
	PricesGenerated(ticker string, n int)
}

type nopMetrics struct{}

func (nopMetrics) PricesGenerated(string, int) {}
func (nopMetrics) SessionStarted(string)       {}
func (nopMetrics) SessionEnded(string)         {}
func (nopMetrics) UpdateSent(string)           {}

type Quote struct {
	Ticker  string
	Price   float64
	Message string
}

type Batch struct {
	Ticker  string
	Prices  []float64
	Message string
}

type Summary struct {
	Ticker       string
	Prices       []float64
	Average      float64
	StdDeviation float64
	Message      string
}

// DefaultMaxCount 单次 GetMultiplePrices 的上限。
const DefaultMaxCount = 10000

type Options struct {
	Tracker     *market.PriceTracker
	Source      market.PriceSource
	Connections Connections
	Logger      *zap.Logger
	Metrics     Metrics

	StreamInterval time.Duration
	StreamBuffer   int
	// MaxCount caps GetMultiplePrices; <= 0 means DefaultMaxCount.
	MaxCount int
}

type Service struct {
	tracker *market.PriceTracker
	source  market.PriceSource
	conns   Connections
	log     *zap.Logger
	metrics Metrics

	streamInterval time.Duration
	streamBuffer   int
	maxCount       int
}

func New(opts Options) (*Service, error) {
	if opts.Connections == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if opts.Tracker == nil {
		opts.Tracker = market.NewPriceTracker()
	}
	if opts.Source == nil {
		opts.Source = market.NewRandomSource()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = DefaultMaxCount
	}
	return &Service{
		tracker:        opts.Tracker,
		source:         opts.Source,
		conns:          opts.Connections,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		streamInterval: opts.StreamInterval,
		streamBuffer:   opts.StreamBuffer,
		maxCount:       opts.MaxCount,
	}, nil
}

// Hook returns the per-call connection hook.
func (s *Service) Hook() ConnectionHook { return s.conns }

func (s *Service) Tracker() *market.PriceTracker { return s.tracker }

func (s *Service) ListTickers(ctx context.Context) []string {
	return market.ListTickers()
}

func (s *Service) GetPrice(ctx context.Context, ticker string) (Quote, error) {
	t, err := validTicker(ticker)
	if err != nil {
		return Quote{}, err
	}
	price := s.source.Next()
	s.tracker.Add(t, price)
	s.metrics.PricesGenerated(t, 1)
	return Quote{Ticker: t, Price: price, Message: market.FormatPrice(t, price)}, nil
}

func (s *Service) GetMultiplePrices(ctx context.Context, ticker string, count int32) (Batch, error) {
	t, err := validTicker(ticker)
	if err != nil {
		return Batch{}, err
	}
	if count <= 0 {
		return Batch{}, invalidCount(count)
	}
	if int(count) > s.maxCount {
		return Batch{}, countTooLarge(count, s.maxCount)
	}
	prices := make([]float64, count)
	for i := range prices {
		prices[i] = s.source.Next()
	}
	s.tracker.AddAll(t, prices)
	s.metrics.PricesGenerated(t, len(prices))
	return Batch{Ticker: t, Prices: prices, Message: market.FormatBatch(t, len(prices))}, nil
}

func (s *Service) GetStats(ctx context.Context, ticker string) (Summary, error) {
	t, err := validTicker(ticker)
	if err != nil {
		return Summary{}, err
	}
	st, ok := s.tracker.Stats(t)
	if !ok {
		return Summary{}, noHistory(t)
	}
	return Summary{
		Ticker:       t,
		Prices:       st.Prices,
		Average:      st.Average,
		StdDeviation: st.StdDeviation,
		Message:      market.FormatStats(t, st.Average, st.StdDeviation, len(st.Prices)),
	}, nil
}

// StreamPrices validates the ticker and starts a session bound to ctx. The
// caller reads Updates() and cancels ctx when it stops consuming.
func (s *Service) StreamPrices(ctx context.Context, client registry.ClientID, ticker string) (*stream.Session, error) {
	t, err := validTicker(ticker)
	if err != nil {
		return nil, err
	}
	sess := stream.New(stream.Config{
		Ticker:   t,
		Client:   client,
		Interval: s.streamInterval,
		Buffer:   s.streamBuffer,
	}, stream.Deps{
		Recorder:   countingRecorder{s.tracker, s.metrics},
		Source:     s.source,
		Membership: s.conns,
		Logger:     s.log,
		Metrics:    s.metrics,
	})
	sess.Start(ctx)
	return sess, nil
}

// countingRecorder 记录推流价格并计数。
type countingRecorder struct {
	tracker *market.PriceTracker
	metrics Metrics
}

func (r countingRecorder) Add(ticker string, price float64) {
	r.tracker.Add(ticker, price)
	r.metrics.PricesGenerated(ticker, 1)
}

func validTicker(ticker string) (string, error) {
	t := market.Normalize(ticker)
	if !market.IsKnown(t) {
		return "", invalidTicker(t)
	}
	return t, nil
}
