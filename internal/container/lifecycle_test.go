package container

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeComponent struct {
	name     string
	startErr error
	health   error
	events   *[]string
	mu       *sync.Mutex
}

func (f *fakeComponent) record(ev string) {
	f.mu.Lock()
	*f.events = append(*f.events, ev+":"+f.name)
	f.mu.Unlock()
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakeComponent) Stop() error {
	f.record("stop")
	return nil
}

func (f *fakeComponent) Health() error { return f.health }

func newFakes(names ...string) ([]*fakeComponent, *[]string) {
	events := &[]string{}
	mu := &sync.Mutex{}
	out := make([]*fakeComponent, 0, len(names))
	for _, n := range names {
		out = append(out, &fakeComponent{name: n, events: events, mu: mu})
	}
	return out, events
}

func TestLifecycleStartAndStopOrder(t *testing.T) {
	comps, events := newFakes("a", "b", "c")
	m := NewLifecycleManager()
	for _, c := range comps {
		m.Register(c)
	}

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.StopAll())
	assert.Equal(t, []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}, *events)
}

func TestLifecycleRollsBackOnStartFailure(t *testing.T) {
	comps, events := newFakes("a", "b", "c")
	comps[1].startErr = errors.New("port busy")
	m := NewLifecycleManager()
	for _, c := range comps {
		m.Register(c)
	}

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b failed")
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, *events)
}

func TestLifecycleHealth(t *testing.T) {
	comps, _ := newFakes("a", "b")
	m := NewLifecycleManager()
	for _, c := range comps {
		m.Register(c)
	}
	assert.NoError(t, m.CheckHealth())

	comps[1].health = errors.New("down")
	err := m.CheckHealth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b unhealthy")
}

func TestHTTPServerComponent(t *testing.T) {
	h := &httpServerComponent{
		name: "test_http",
		handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("pong"))
		}),
		addr:   "127.0.0.1:0",
		logger: zap.NewNop(),
	}
	assert.Error(t, h.Health())

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Health())

	resp, err := http.Get("http://" + h.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, h.Stop())
	assert.Error(t, h.Health())
}

func TestHTTPServerComponentDrainsOnStop(t *testing.T) {
	drained := 0
	h := &httpServerComponent{
		name:    "test_http",
		handler: http.NotFoundHandler(),
		addr:    "127.0.0.1:0",
		logger:  zap.NewNop(),
		drain:   func() { drained++ },
	}
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Stop())
	assert.Equal(t, 1, drained)

	// already stopped: nothing to drain
	require.NoError(t, h.Stop())
	assert.Equal(t, 1, drained)
}

func TestHTTPServerComponentBindFailure(t *testing.T) {
	first := &httpServerComponent{name: "first", handler: http.NotFoundHandler(), addr: "127.0.0.1:0", logger: zap.NewNop()}
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	second := &httpServerComponent{name: "second", handler: http.NotFoundHandler(), addr: first.Addr().String(), logger: zap.NewNop()}
	assert.Error(t, second.Start(context.Background()))
}
