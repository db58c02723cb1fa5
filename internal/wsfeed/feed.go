// Package wsfeed mirrors StreamPrices over a websocket at /ws/prices?ticker=.
package wsfeed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"finance-server-go/internal/registry"
	"finance-server-go/internal/service"
	"finance-server-go/internal/stream"
	"finance-server-go/market"
)

const Path = "/ws/prices"

// PriceUpdate is the JSON frame written for each stream update.
type PriceUpdate struct {
	Ticker           string    `json:"ticker"`
	Price            float64   `json:"price"`
	FormattedMessage string    `json:"formatted_message"`
	Seq              uint64    `json:"seq"`
	Time             time.Time `json:"time"`
}

type Options struct {
	// WriteWait bounds a single frame write; a consumer that stalls longer
	// is dropped.
	WriteWait time.Duration
	// PongWait is how long the peer may stay silent. Pings go out at 9/10 of it.
	PongWait time.Duration
	Logger   *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		WriteWait: 10 * time.Second,
		PongWait:  60 * time.Second,
	}
}

type Handler struct {
	svc      *service.Service
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader

	// 已升级的连接不受 http.Server.Shutdown 管理，需自行跟踪
	mu       sync.Mutex
	nextID   uint64
	sessions map[uint64]context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
}

func NewHandler(svc *service.Service, opts Options) *Handler {
	def := DefaultOptions()
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		svc:  svc,
		opts: opts,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[uint64]context.CancelFunc),
	}
}

// Close cancels every open feed and waits for the handlers to return. New
// upgrades are refused afterwards.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	n := len(h.sessions)
	for _, cancel := range h.sessions {
		cancel()
	}
	h.mu.Unlock()

	h.wg.Wait()
	if n > 0 {
		h.log.Info("websocket feeds drained", zap.Int("sessions", n))
	}
}

// Active is the number of open feeds.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Handler) track(cancel context.CancelFunc) (func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.nextID++
	id := h.nextID
	h.sessions[id] = cancel
	h.wg.Add(1)
	return func() {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
		h.wg.Done()
	}, true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticker := market.Normalize(r.URL.Query().Get("ticker"))
	if !market.IsKnown(ticker) {
		http.Error(w, "Invalid ticker: "+ticker, http.StatusBadRequest)
		return
	}
	client := registry.ClientID(r.RemoteAddr)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回错误响应
		h.log.Warn("websocket upgrade failed", zap.String("client", string(client)), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	release, ok := h.track(cancel)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.opts.WriteWait))
		return
	}
	defer release()

	h.svc.Hook().Observe(client)

	sess, err := h.svc.StreamPrices(ctx, client, ticker)
	if err != nil {
		h.log.Error("start stream", zap.Error(err))
		return
	}
	defer func() {
		cancel()
		<-sess.Done()
	}()

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, sess.Updates())
}

// readPump discards inbound frames; any read error means the peer is gone.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, updates <-chan stream.Update) {
	ping := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case u, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			err := conn.WriteJSON(PriceUpdate{
				Ticker:           u.Ticker,
				Price:            u.Price,
				FormattedMessage: u.Message,
				Seq:              u.Seq,
				Time:             u.At,
			})
			if err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(h.opts.WriteWait))
			return
		}
	}
}
