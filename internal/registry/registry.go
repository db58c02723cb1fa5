// Package registry tracks which clients are currently connected.
//
// A client is identified by its remote address. Entries are created on first
// contact, refreshed on every later call, and removed either explicitly (the
// last streaming session of that client ended) or implicitly when ActiveCount
// finds them older than the staleness window. Several streams may share one
// address because grpc multiplexes calls over a single connection.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ClientID identifies one connected caller, normally "ip:port".
type ClientID string

// Disconnect reasons reported to Metrics.
const (
	ReasonClosed = "closed"
	ReasonStale  = "stale"
)

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Metrics receives connection bookkeeping events.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed(reason string)
	ActiveClients(n int)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()       {}
func (nopMetrics) ConnectionClosed(string) {}
func (nopMetrics) ActiveClients(int)       {}

type Options struct {
	// StalenessWindow: entries not seen for this long are dropped by ActiveCount.
	StalenessWindow time.Duration
	// MinTotalForIdle: the idle listener only fires once at least this many
	// clients have ever connected. Zero disables the guard.
	MinTotalForIdle uint64
	Clock           Clock
	Logger          *zap.Logger
	Metrics         Metrics
}

// DefaultOptions 默认 30 秒失活窗口，累计至少 2 个连接才视为空闲。
func DefaultOptions() Options {
	return Options{
		StalenessWindow: 30 * time.Second,
		MinTotalForIdle: 2,
	}
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	clients  map[ClientID]time.Time
	sessions map[ClientID]int // 打开的流数量
	onIdle   func()

	total atomic.Uint64

	window   time.Duration
	minTotal uint64
	clock    Clock
	log      *zap.Logger
	metrics  Metrics
}

func New(opts Options) *Registry {
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = DefaultOptions().StalenessWindow
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Registry{
		clients:  make(map[ClientID]time.Time),
		sessions: make(map[ClientID]int),
		window:   opts.StalenessWindow,
		minTotal: opts.MinTotalForIdle,
		clock:    opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// SetIdleListener installs the callback run when the live set becomes empty.
// It is invoked without the registry lock held.
func (r *Registry) SetIdleListener(fn func()) {
	r.mu.Lock()
	r.onIdle = fn
	r.mu.Unlock()
}

// Register inserts id if absent. Returns true when the entry is new.
func (r *Registry) Register(id ClientID) bool {
	r.mu.Lock()
	if _, ok := r.clients[id]; ok {
		r.mu.Unlock()
		return false
	}
	r.clients[id] = r.clock.Now()
	total := r.total.Add(1)
	active := len(r.clients)
	r.mu.Unlock()

	r.opened(id, active, total)
	return true
}

// Acquire records one more open stream for id, registering it on first contact.
func (r *Registry) Acquire(id ClientID) {
	r.mu.Lock()
	_, known := r.clients[id]
	r.clients[id] = r.clock.Now()
	r.sessions[id]++
	active := len(r.clients)
	var total uint64
	if !known {
		total = r.total.Add(1)
	}
	r.mu.Unlock()

	if !known {
		r.opened(id, active, total)
	}
}

// Release drops one open stream of id. Only the last stream's release removes
// the entry; it returns true in that case.
func (r *Registry) Release(id ClientID) bool {
	r.mu.Lock()
	n, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if n > 1 {
		r.sessions[id] = n - 1
		r.mu.Unlock()
		return false
	}
	active, idle, fn, removed := r.removeLocked(id)
	r.mu.Unlock()

	if removed {
		r.closed(id, active, idle, fn)
	}
	return removed
}

// Sessions returns the number of open streams held by id.
func (r *Registry) Sessions(id ClientID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Touch refreshes last-seen for a known id. It never inserts.
func (r *Registry) Touch(id ClientID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	r.clients[id] = r.clock.Now()
	return true
}

// Observe records activity from id: touch on repeat contact, register on first.
func (r *Registry) Observe(id ClientID) {
	if !r.Touch(id) {
		r.Register(id)
	}
}

// Unregister removes id regardless of open streams. Emptying the set notifies
// the idle listener, subject to the minimum-total guard.
func (r *Registry) Unregister(id ClientID) bool {
	r.mu.Lock()
	active, idle, fn, removed := r.removeLocked(id)
	r.mu.Unlock()

	if removed {
		r.closed(id, active, idle, fn)
	}
	return removed
}

// ActiveCount prunes stale entries and returns the live set size. Clients
// holding an open stream are never pruned.
func (r *Registry) ActiveCount() int {
	now := r.clock.Now()

	r.mu.Lock()
	var pruned []ClientID
	for id, seen := range r.clients {
		if r.sessions[id] > 0 {
			continue
		}
		if now.Sub(seen) >= r.window {
			delete(r.clients, id)
			pruned = append(pruned, id)
		}
	}
	active := len(r.clients)
	var (
		idle bool
		fn   func()
	)
	if len(pruned) > 0 {
		idle, fn = r.idleLocked(active)
	}
	r.mu.Unlock()

	for _, id := range pruned {
		r.metrics.ConnectionClosed(ReasonStale)
		r.log.Info("client timed out",
			zap.String("client", string(id)),
			zap.Duration("window", r.window))
	}
	if len(pruned) > 0 {
		r.metrics.ActiveClients(active)
	}
	if idle {
		r.notifyIdle(fn)
	}
	return active
}

// TotalConnections is the number of distinct registrations ever made.
func (r *Registry) TotalConnections() uint64 {
	return r.total.Load()
}

// Snapshot returns the live ids in sorted order.
func (r *Registry) Snapshot() []ClientID {
	r.mu.Lock()
	out := make([]ClientID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) removeLocked(id ClientID) (active int, idle bool, fn func(), ok bool) {
	if _, ok = r.clients[id]; !ok {
		return len(r.clients), false, nil, false
	}
	delete(r.clients, id)
	delete(r.sessions, id)
	active = len(r.clients)
	idle, fn = r.idleLocked(active)
	return active, idle, fn, true
}

func (r *Registry) opened(id ClientID, active int, total uint64) {
	r.metrics.ConnectionOpened()
	r.metrics.ActiveClients(active)
	r.log.Info("client connected",
		zap.String("client", string(id)),
		zap.Int("active", active),
		zap.Uint64("total", total))
}

func (r *Registry) closed(id ClientID, active int, idle bool, fn func()) {
	r.metrics.ConnectionClosed(ReasonClosed)
	r.metrics.ActiveClients(active)
	r.log.Info("client disconnected",
		zap.String("client", string(id)),
		zap.Int("active", active),
		zap.Uint64("total", r.total.Load()))
	if idle {
		r.notifyIdle(fn)
	}
}

func (r *Registry) idleLocked(active int) (bool, func()) {
	if active != 0 || r.total.Load() < r.minTotal {
		return false, nil
	}
	return r.onIdle != nil, r.onIdle
}

func (r *Registry) notifyIdle(fn func()) {
	r.log.Info("all clients disconnected", zap.Uint64("total", r.total.Load()))
	fn()
}
