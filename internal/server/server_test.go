package server

import (
	"context"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"finance-server-go/api/finance"
	"finance-server-go/internal/registry"
	"finance-server-go/internal/service"
	"finance-server-go/market"
)

type recordedRPC struct {
	method string
	code   string
}

type fakeRPCMetrics struct {
	mu    sync.Mutex
	calls []recordedRPC
}

func (m *fakeRPCMetrics) RecordRPC(method, code string, _ float64) {
	m.mu.Lock()
	m.calls = append(m.calls, recordedRPC{method, code})
	m.mu.Unlock()
}

func (m *fakeRPCMetrics) all() []recordedRPC {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRPC(nil), m.calls...)
}

type harness struct {
	srv     *Server
	reg     *registry.Registry
	svc     *service.Service
	metrics *fakeRPCMetrics
	lis     *bufconn.Listener
	client  *finance.Client
	conn    *grpc.ClientConn
	served  chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := registry.New(registry.DefaultOptions())
	svc, err := service.New(service.Options{
		Source:         market.NewSeededSource(1),
		Connections:    reg,
		StreamInterval: 5 * time.Millisecond,
		StreamBuffer:   4,
	})
	require.NoError(t, err)

	m := &fakeRPCMetrics{}
	opts := DefaultOptions()
	opts.Metrics = m
	opts.DrainTimeout = time.Second
	srv := New(svc, opts)

	lis := bufconn.Listen(1 << 20)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()

	client, conn, err := finance.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)

	h := &harness{srv: srv, reg: reg, svc: svc, metrics: m, lis: lis, client: client, conn: conn, served: served}
	t.Cleanup(func() {
		conn.Close()
		srv.Shutdown()
	})
	return h
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestUnaryRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := ctxT(t)

	list, err := h.client.GetTickerList(ctx)
	require.NoError(t, err)
	assert.Equal(t, market.Tickers, list.Tickers)

	p, err := h.client.GetPrice(ctx, "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", p.Ticker)
	assert.Equal(t, market.FormatPrice("MSFT", p.Price), p.FormattedMessage)

	b, err := h.client.GetMultiplePrices(ctx, "MSFT", 3)
	require.NoError(t, err)
	assert.Len(t, b.Prices, 3)
	assert.Equal(t, "MSFT", b.Ticker)
	assert.Equal(t, "Generated 3 prices for MSFT", b.FormattedMessage)

	s, err := h.client.GetStats(ctx, "MSFT")
	require.NoError(t, err)
	assert.Len(t, s.Prices, 4)
	assert.Equal(t, p.Price, s.Prices[0])
	avg, std := market.MeanStdDev(s.Prices)
	assert.InDelta(t, avg, s.Average, 1e-9)
	assert.InDelta(t, std, s.StdDeviation, 1e-9)
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := ctxT(t)

	_, err := h.client.GetPrice(ctx, "FOO")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "Invalid ticker: FOO", status.Convert(err).Message())

	_, err = h.client.GetMultiplePrices(ctx, "AAPL", -2)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "Count must be positive, got -2", status.Convert(err).Message())

	_, err = h.client.GetMultiplePrices(ctx, "AAPL", math.MaxInt32)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "Count must be at most 10000, got 2147483647", status.Convert(err).Message())

	_, err = h.client.GetStats(ctx, "INTC")
	assert.Equal(t, codes.NotFound, status.Code(err))

	stream, err := h.client.StreamPrices(ctx, "XYZ")
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEveryCallObservesTheClient(t *testing.T) {
	h := newHarness(t)
	ctx := ctxT(t)

	for i := 0; i < 3; i++ {
		_, err := h.client.GetPrice(ctx, "AAPL")
		require.NoError(t, err)
	}
	_, _ = h.client.GetPrice(ctx, "nope")

	assert.Equal(t, 1, h.reg.ActiveCount())
	assert.Equal(t, uint64(1), h.reg.TotalConnections())

	calls := h.metrics.all()
	require.Len(t, calls, 4)
	assert.Equal(t, recordedRPC{finance.StockService_GetPrice_FullMethodName, "OK"}, calls[0])
	assert.Equal(t, "InvalidArgument", calls[3].code)
}

func TestStreamDeliversAndCleansUp(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(ctxT(t))

	stream, err := h.client.StreamPrices(ctx, "goog")
	require.NoError(t, err)

	var prices []float64
	for i := 0; i < 3; i++ {
		u, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, "GOOG", u.Ticker)
		assert.Equal(t, market.FormatPrice("GOOG", u.Price), u.FormattedMessage)
		prices = append(prices, u.Price)
	}
	assert.Equal(t, 1, h.reg.ActiveCount())

	cancel()
	assert.Eventually(t, func() bool { return h.reg.ActiveCount() == 0 },
		2*time.Second, 10*time.Millisecond, "client still registered after cancel")

	// delivered prices are a prefix of the recorded history, in order
	recorded := h.svc.Tracker().Prices("GOOG")
	require.GreaterOrEqual(t, len(recorded), len(prices))
	assert.Equal(t, prices, recorded[:len(prices)])
}

func TestHealthServing(t *testing.T) {
	h := newHarness(t)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return h.lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctxT(t), &healthpb.HealthCheckRequest{Service: finance.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestShutdownEndsOpenStreams(t *testing.T) {
	h := newHarness(t)
	ctx := ctxT(t)

	stream, err := h.client.StreamPrices(ctx, "TSLA")
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	start := time.Now()
	h.srv.Shutdown()
	assert.Less(t, time.Since(start), time.Second, "graceful stop waited for the drain timeout")

	for {
		if _, err := stream.Recv(); err != nil {
			if err != io.EOF {
				assert.NotEqual(t, codes.OK, status.Code(err))
			}
			break
		}
	}
	select {
	case err := <-h.served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, h.reg.ActiveCount())
}

func TestRunStopsOnSignal(t *testing.T) {
	reg := registry.New(registry.DefaultOptions())
	svc, err := service.New(service.Options{Connections: reg})
	require.NoError(t, err)
	srv := New(svc, DefaultOptions())

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background(), bufconn.Listen(1024), stop) }()
	close(stop)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stop")
	}
	select {
	case <-srv.Draining():
	default:
		t.Fatal("draining not signalled")
	}
}

func TestListenBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	reg := registry.New(registry.DefaultOptions())
	svc, err := service.New(service.Options{Connections: reg})
	require.NoError(t, err)
	srv := New(svc, DefaultOptions())

	_, err = srv.Listen("127.0.0.1", port)
	assert.Error(t, err)
	assert.Error(t, srv.Serve(nil))
}
