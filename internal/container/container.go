// Package container wires the finance server together from AppConfig and
// drives it from startup to drained shutdown.
package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finance-server-go/config"
	"finance-server-go/infrastructure/alert"
	"finance-server-go/infrastructure/logger"
	"finance-server-go/infrastructure/monitor"
	"finance-server-go/internal/registry"
	"finance-server-go/internal/server"
	"finance-server-go/internal/service"
	"finance-server-go/internal/shutdown"
	"finance-server-go/internal/wsfeed"
	"finance-server-go/market"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg        config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	tracker     *market.PriceTracker
	registry    *registry.Registry
	signal      *shutdown.Signal
	coordinator *shutdown.Coordinator
	service     *service.Service
	grpc        *server.Server

	httpServer *httpServerComponent
	feed       *wsfeed.Handler
	grpcAddr   net.Addr
	ready      chan struct{}

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New loads configuration from configPath (env overrides applied).
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewWithConfig skips file loading; the config watcher is not registered.
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
		ready:     make(chan struct{}),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("container built", zap.String("env", c.cfg.Env))
	return nil
}

func (c *Container) buildInfrastructure() error {
	base, err := logger.New(logger.Config{
		Level:      c.cfg.Log.Level,
		Outputs:    c.cfg.Log.Outputs,
		OutputFile: c.cfg.Log.OutputFile,
		Format:     c.cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.logger = base.WithFields(map[string]interface{}{"service": "finance-server", "env": c.cfg.Env})
	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager(time.Minute, alert.NewLogChannel("log", c.logger.Named("alert")))
	return nil
}

func (c *Container) buildCoreServices() error {
	lc := c.cfg.Lifecycle

	c.tracker = market.NewPriceTracker()
	c.registry = registry.New(registry.Options{
		StalenessWindow: lc.StalenessWindow(),
		MinTotalForIdle: uint64(lc.MinTotalConnections),
		Logger:          c.logger.Named("registry"),
		Metrics:         c.monitor,
	})

	c.signal = shutdown.NewSignal()
	coord, err := shutdown.NewCoordinator(shutdown.Config{
		Mode:                shutdown.Mode(lc.ShutdownMode),
		PollInterval:        lc.PollInterval(),
		IdleSamples:         lc.IdleSamples,
		MinTotalConnections: uint64(lc.MinTotalConnections),
		Logger:              c.logger.Named("shutdown"),
		Metrics:             c.monitor,
	}, c.registry, c.signal)
	if err != nil {
		return err
	}
	c.coordinator = coord
	c.registry.SetIdleListener(coord.NotifyIdle)

	c.service, err = service.New(service.Options{
		Tracker:        c.tracker,
		Source:         market.NewRandomSource(),
		Connections:    c.registry,
		Logger:         c.logger.Named("stream"),
		Metrics:        c.monitor,
		StreamInterval: c.cfg.Stream.Interval(),
		StreamBuffer:   c.cfg.Stream.Buffer,
		MaxCount:       c.cfg.Limits.MaxCount,
	})
	if err != nil {
		return err
	}

	opts := server.DefaultOptions()
	if d := lc.DrainTimeout(); d > 0 {
		opts.DrainTimeout = d
	}
	opts.Logger = c.logger.Named("grpc")
	opts.Metrics = c.monitor
	c.grpc = server.New(c.service, opts)
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.monitor.Handler())
		mux.HandleFunc("/healthz", c.healthz)
		c.feed = wsfeed.NewHandler(c.service, wsfeed.Options{Logger: c.logger.Named("wsfeed")})
		mux.Handle(wsfeed.Path, c.feed)
		c.httpServer = &httpServerComponent{
			name:    "http_server",
			handler: mux,
			addr:    c.cfg.HTTP.Addr,
			logger:  c.logger.Logger,
			drain:   c.feed.Close,
		}
		c.lifecycle.Register(c.httpServer)
	}

	if c.configPath != "" {
		if _, err := os.Stat(c.configPath); err == nil {
			c.lifecycle.Register(&watcherComponent{
				watcher: config.Watcher{
					Path:     c.configPath,
					Cooldown: time.Second,
					Logger:   c.logger.Named("config"),
				},
				onUpdate: c.applyConfig,
				logger:   c.logger.Logger,
			})
		}
	}
}

// applyConfig 热更新只作用于日志级别，其余参数需重启生效。
func (c *Container) applyConfig(cfg config.AppConfig) {
	if cfg.Log.Level == "" || cfg.Log.Level == c.logger.Level() {
		return
	}
	if err := c.logger.SetLevel(cfg.Log.Level); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "apply_log_level"})
		return
	}
	c.logger.Info("log level updated", zap.String("level", cfg.Log.Level))
}

func (c *Container) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := c.HealthCheck(); err != nil {
		_ = c.alerts.Error("health check failed", map[string]interface{}{"error": err.Error()})
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// Run binds the grpc port, starts the lifecycle components and serves until
// ctx is cancelled or the idle coordinator fires. It returns after the drain
// completes and every component is stopped. A bind failure is returned
// before anything is served.
func (c *Container) Run(ctx context.Context) error {
	addr, err := c.grpc.Listen(c.cfg.Server.Host, c.cfg.Server.Port)
	if err != nil {
		return err
	}
	c.grpcAddr = addr

	if err := c.lifecycle.StartAll(ctx); err != nil {
		c.grpc.Shutdown()
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("server started",
		zap.String("grpc", addr.String()),
		zap.String("http", c.cfg.HTTP.Addr),
		zap.String("shutdown_mode", string(c.coordinator.Mode())))
	c.notify(daemon.SdNotifyReady)
	close(c.ready)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return c.grpc.Run(gctx, nil, c.signal.Done())
	})
	g.Go(func() error {
		if err := c.coordinator.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		c.watchdog(gctx)
		return nil
	})
	runErr := g.Wait()

	c.notify(daemon.SdNotifyStopping)
	reason := c.signal.Reason()
	if reason == "" {
		reason = "context_done"
	}
	_ = c.alerts.Warning("server stopping", map[string]interface{}{
		"reason":            reason,
		"total_connections": c.registry.TotalConnections(),
	})
	if err := c.lifecycle.StopAll(); err != nil {
		_ = c.alerts.Error("component stop failed", map[string]interface{}{"error": err.Error()})
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// watchdog pings systemd at half the configured interval when enabled.
func (c *Container) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.notify(daemon.SdNotifyWatchdog)
		}
	}
}

func (c *Container) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		c.logger.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		c.logger.Debug("sd_notify", zap.String("state", state))
	}
}

// Close flushes the logger.
func (c *Container) Close() {
	if c.logger != nil {
		_ = c.logger.Close()
	}
}

// HealthCheck fails once shutdown has been signalled or a component is unhealthy.
func (c *Container) HealthCheck() error {
	if c.signal != nil && c.signal.Triggered() {
		return fmt.Errorf("shutting down: %s", c.signal.Reason())
	}
	return c.lifecycle.CheckHealth()
}

// Signal lets callers trigger the drain themselves.
func (c *Container) Signal() *shutdown.Signal { return c.signal }

func (c *Container) Registry() *registry.Registry { return c.registry }

// Ready is closed once Run is serving.
func (c *Container) Ready() <-chan struct{} { return c.ready }

// GRPCAddr is the bound grpc address; valid after Ready.
func (c *Container) GRPCAddr() net.Addr { return c.grpcAddr }

// HTTPAddr is the bound side-port address, nil when disabled or not started.
func (c *Container) HTTPAddr() net.Addr {
	if c.httpServer == nil {
		return nil
	}
	return c.httpServer.Addr()
}
