// Package stream produces the periodic price updates behind a StreamPrices call.
package stream

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finance-server-go/internal/registry"
	"finance-server-go/market"
)

// Update is one item of a price stream.
type Update struct {
	Ticker  string
	Price   float64
	Message string
	Seq     uint64
	At      time.Time
}

// Recorder stores generated prices; *market.PriceTracker satisfies it.
type Recorder interface {
	Add(ticker string, price float64)
}

// Membership is the part of the connection registry a session needs. A
// client may hold several sessions; Release removes it only after the last.
type Membership interface {
	Acquire(id registry.ClientID)
	Touch(id registry.ClientID) bool
	Release(id registry.ClientID) bool
}

type Metrics interface {
	SessionStarted(ticker string)
	SessionEnded(ticker string)
	UpdateSent(ticker string)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted(string) {}
func (nopMetrics) SessionEnded(string)   {}
func (nopMetrics) UpdateSent(string)     {}

type Config struct {
	Ticker   string
	Client   registry.ClientID
	Interval time.Duration
	Buffer   int
}

// Deps 会话依赖，Logger/Metrics 可为空。
type Deps struct {
	Recorder   Recorder
	Source     market.PriceSource
	Membership Membership
	Logger     *zap.Logger
	Metrics    Metrics
}

const (
	DefaultInterval = time.Second
	DefaultBuffer   = 32
)

// Session owns one outbound channel. The consumer stops it by cancelling the
// context passed to Run; the session then releases its hold on the client and
// closes the channel.
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	log    *zap.Logger
	out    chan Update
	seq    uint64
	closed chan struct{}
}

func New(cfg Config, deps Deps) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if deps.Source == nil {
		deps.Source = market.NewRandomSource()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	id := uuid.NewString()
	return &Session{
		id:   id,
		cfg:  cfg,
		deps: deps,
		log: deps.Logger.With(
			zap.String("session", id),
			zap.String("ticker", cfg.Ticker),
			zap.String("client", string(cfg.Client))),
		out:    make(chan Update, cfg.Buffer),
		closed: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Ticker() string { return s.cfg.Ticker }

// Updates is closed when the session ends.
func (s *Session) Updates() <-chan Update { return s.out }

// Done is closed after cleanup has finished.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Start runs the session in its own goroutine.
func (s *Session) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run produces one update per interval until ctx is cancelled. It must be
// called at most once.
func (s *Session) Run(ctx context.Context) {
	if s.deps.Membership != nil {
		s.deps.Membership.Acquire(s.cfg.Client)
	}
	s.deps.Metrics.SessionStarted(s.cfg.Ticker)
	s.log.Info("stream started", zap.Duration("interval", s.cfg.Interval), zap.Int("buffer", s.cfg.Buffer))
	defer s.finish()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		u := s.next()
		select {
		case s.out <- u:
			s.deps.Metrics.UpdateSent(s.cfg.Ticker)
			if s.deps.Membership != nil {
				s.deps.Membership.Touch(s.cfg.Client)
			}
		case <-ctx.Done():
			// 消费者已离开，本条价格已记录但未送达
			s.log.Debug("send abandoned", zap.Uint64("seq", u.Seq))
			return
		}
	}
}

func (s *Session) next() Update {
	price := s.deps.Source.Next()
	if s.deps.Recorder != nil {
		s.deps.Recorder.Add(s.cfg.Ticker, price)
	}
	s.seq++
	return Update{
		Ticker:  s.cfg.Ticker,
		Price:   price,
		Message: market.FormatPrice(s.cfg.Ticker, price),
		Seq:     s.seq,
		At:      time.Now(),
	}
}

func (s *Session) finish() {
	if s.deps.Membership != nil {
		s.deps.Membership.Release(s.cfg.Client)
	}
	close(s.out)
	s.deps.Metrics.SessionEnded(s.cfg.Ticker)
	s.log.Info("stream ended", zap.Uint64("generated", s.seq))
	close(s.closed)
}
