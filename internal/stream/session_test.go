package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-server-go/internal/registry"
	"finance-server-go/market"
)

type recordingMembership struct {
	mu           sync.Mutex
	acquired     int
	touches      int
	unregistered []registry.ClientID
}

func (m *recordingMembership) Acquire(registry.ClientID) {
	m.mu.Lock()
	m.acquired++
	m.mu.Unlock()
}

func (m *recordingMembership) Touch(registry.ClientID) bool {
	m.mu.Lock()
	m.touches++
	m.mu.Unlock()
	return true
}

func (m *recordingMembership) Release(id registry.ClientID) bool {
	m.mu.Lock()
	m.unregistered = append(m.unregistered, id)
	m.mu.Unlock()
	return true
}

func (m *recordingMembership) snapshot() (int, []registry.ClientID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches, append([]registry.ClientID(nil), m.unregistered...)
}

func newTestSession(t *testing.T, mem Membership, tracker *market.PriceTracker) *Session {
	t.Helper()
	return New(Config{
		Ticker:   "AAPL",
		Client:   "127.0.0.1:5555",
		Interval: 5 * time.Millisecond,
		Buffer:   4,
	}, Deps{
		Recorder:   tracker,
		Source:     market.NewSeededSource(7),
		Membership: mem,
	})
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit")
	}
}

func TestSessionDeliversInOrder(t *testing.T) {
	tracker := market.NewPriceTracker()
	mem := &recordingMembership{}
	s := newTestSession(t, mem, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var got []Update
	for u := range s.Updates() {
		got = append(got, u)
		if len(got) == 5 {
			cancel()
			break
		}
	}
	waitDone(t, s)

	require.Len(t, got, 5)
	for i, u := range got {
		assert.Equal(t, uint64(i+1), u.Seq)
		assert.Equal(t, "AAPL", u.Ticker)
		assert.GreaterOrEqual(t, u.Price, market.MinPrice)
		assert.Less(t, u.Price, market.MaxPrice)
		assert.Equal(t, market.FormatPrice("AAPL", u.Price), u.Message)
	}

	// every delivered price was recorded first, in the same order
	recorded := tracker.Prices("AAPL")
	require.GreaterOrEqual(t, len(recorded), 5)
	for i, u := range got {
		assert.Equal(t, u.Price, recorded[i])
	}

	touches, unregistered := mem.snapshot()
	assert.GreaterOrEqual(t, touches, 5)
	assert.Equal(t, []registry.ClientID{"127.0.0.1:5555"}, unregistered)
	mem.mu.Lock()
	assert.Equal(t, 1, mem.acquired)
	mem.mu.Unlock()
}

func TestSessionClosesChannelOnCancel(t *testing.T) {
	mem := &recordingMembership{}
	s := newTestSession(t, mem, market.NewPriceTracker())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	waitDone(t, s)

	for range s.Updates() {
		// drain whatever was buffered before the cancel
	}
	_, unregistered := mem.snapshot()
	assert.Len(t, unregistered, 1)
}

func TestSessionUnblocksStalledSend(t *testing.T) {
	mem := &recordingMembership{}
	s := newTestSession(t, mem, market.NewPriceTracker())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	// nobody reads: the buffer fills and the producer blocks on send
	time.Sleep(60 * time.Millisecond)
	cancel()
	waitDone(t, s)

	n := 0
	for range s.Updates() {
		n++
	}
	assert.Equal(t, 4, n)
	_, unregistered := mem.snapshot()
	assert.Len(t, unregistered, 1)
}

func TestSessionUnregistersFromRealRegistry(t *testing.T) {
	reg := registry.New(registry.DefaultOptions())
	reg.Register("127.0.0.1:5555")
	s := newTestSession(t, reg, market.NewPriceTracker())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	<-s.Updates()
	cancel()
	waitDone(t, s)

	assert.Equal(t, 0, reg.ActiveCount())
	assert.Equal(t, uint64(1), reg.TotalConnections())
}

func TestSessionsSharingClientKeepItRegistered(t *testing.T) {
	reg := registry.New(registry.DefaultOptions())
	reg.Register("10.0.0.9:1")
	reg.Unregister("10.0.0.9:1")
	var idle atomic.Int32
	reg.SetIdleListener(func() { idle.Add(1) })

	a := newTestSession(t, reg, market.NewPriceTracker())
	b := newTestSession(t, reg, market.NewPriceTracker())
	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()
	a.Start(ctxA)
	b.Start(ctxB)
	<-a.Updates()
	<-b.Updates()

	cancelA()
	waitDone(t, a)

	// b keeps delivering and its client stays live
	for i := 0; i < 3; i++ {
		select {
		case _, ok := <-b.Updates():
			require.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("second session stopped delivering")
		}
	}
	assert.Equal(t, 1, reg.ActiveCount())
	assert.Equal(t, []registry.ClientID{"127.0.0.1:5555"}, reg.Snapshot())
	assert.Equal(t, int32(0), idle.Load())

	cancelB()
	waitDone(t, b)
	assert.Equal(t, 0, reg.ActiveCount())
	assert.Equal(t, int32(1), idle.Load())
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := New(Config{Ticker: "AAPL"}, Deps{})
	b := New(Config{Ticker: "AAPL"}, Deps{})
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, DefaultBuffer, cap(a.out))
}
