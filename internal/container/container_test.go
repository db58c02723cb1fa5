package container

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-server-go/api/finance"
	"finance-server-go/config"
	"finance-server-go/internal/registry"
	"finance-server-go/internal/shutdown"
	"finance-server-go/internal/wsfeed"
)

func testConfig(mode string) config.AppConfig {
	cfg := config.Default()
	cfg.Server = config.EndpointConfig{Host: "127.0.0.1", Port: 0}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	cfg.Lifecycle.ShutdownMode = mode
	cfg.Lifecycle.PollIntervalMs = 20
	cfg.Lifecycle.MinTotalConnections = 0
	cfg.Lifecycle.DrainTimeoutMs = 1000
	cfg.Stream.IntervalMs = 10
	return cfg
}

func startContainer(t *testing.T, cfg config.AppConfig) (*Container, context.CancelFunc, <-chan error) {
	t.Helper()
	c := NewWithConfig(cfg)
	require.NoError(t, c.Build())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-c.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("container exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("container not ready")
	}
	t.Cleanup(func() {
		cancel()
		c.Close()
	})
	return c, cancel, done
}

func waitExit(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("container did not stop")
		return nil
	}
}

func TestContainerStopsWhenLastStreamLeaves(t *testing.T) {
	c, _, done := startContainer(t, testConfig("event"))

	client, conn, err := finance.Dial(c.GRPCAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancelStream := context.WithCancel(context.Background())
	stream, err := client.StreamPrices(ctx, "AAPL")
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)
	cancelStream()

	require.NoError(t, waitExit(t, done))
	assert.True(t, c.Signal().Triggered())
	assert.Equal(t, shutdown.ReasonLastGone, c.Signal().Reason())
	assert.Equal(t, uint64(1), c.Registry().TotalConnections())
}

func TestContainerStopsOnContextCancel(t *testing.T) {
	c, cancel, done := startContainer(t, testConfig("off"))

	resp, err := http.Get("http://" + c.HTTPAddr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	client, conn, err := finance.Dial(c.GRPCAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = client.GetPrice(context.Background(), "AMZN")
	require.NoError(t, err)

	resp, err = http.Get("http://" + c.HTTPAddr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "finance_server_connections_total 1")
	assert.Contains(t, string(body), `finance_server_prices_generated_total{ticker="AMZN"} 1`)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+c.HTTPAddr().String()+wsfeed.Path+"?ticker=TSLA", nil)
	require.NoError(t, err)
	defer ws.Close()
	var u wsfeed.PriceUpdate
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&u))

	cancel()
	require.NoError(t, waitExit(t, done))
	assert.False(t, c.Signal().Triggered())

	// the websocket feed is drained with the rest of the server
	assert.NotContains(t, c.Registry().Snapshot(), registry.ClientID(ws.LocalAddr().String()))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err = ws.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure), err)
}

func TestContainerExternalTrigger(t *testing.T) {
	cfg := testConfig("poll")
	cfg.Lifecycle.MinTotalConnections = 5
	c, _, done := startContainer(t, cfg)
	c.Signal().Trigger("operator")
	require.NoError(t, waitExit(t, done))
	assert.Equal(t, "operator", c.Signal().Reason())
}

func TestContainerBindFailure(t *testing.T) {
	first, _, _ := startContainer(t, testConfig("off"))

	cfg := testConfig("off")
	cfg.Server.Port = first.GRPCAddr().(*net.TCPAddr).Port
	c := NewWithConfig(cfg)
	require.NoError(t, c.Build())
	assert.Error(t, c.Run(context.Background()))
}
