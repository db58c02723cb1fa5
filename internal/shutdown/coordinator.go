// Package shutdown decides when an idle server should stop and broadcasts
// that decision to whoever runs the serve loop.
package shutdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mode selects how idleness is detected.
type Mode string

const (
	// ModePoll samples the active count on an interval and fires after
	// IdleSamples consecutive zero readings.
	ModePoll Mode = "poll"
	// ModeEvent fires as soon as the registry reports the last client gone.
	ModeEvent Mode = "event"
	// ModeOff never fires on idleness; only external triggers apply.
	ModeOff Mode = "off"
)

// Reasons passed to Signal.Trigger.
const (
	ReasonIdle     = "idle"
	ReasonLastGone = "last_client_gone"
)

// Activity is what the coordinator samples; the connection registry satisfies it.
type Activity interface {
	ActiveCount() int
	TotalConnections() uint64
}

type Metrics interface {
	ShutdownTriggered(reason string)
}

type nopMetrics struct{}

func (nopMetrics) ShutdownTriggered(string) {}

type Config struct {
	Mode         Mode
	PollInterval time.Duration
	IdleSamples  int

	// MinTotalConnections: idleness only counts after this many clients have
	// ever connected. Zero disables the guard.
	MinTotalConnections uint64
	Logger              *zap.Logger
	Metrics             Metrics
}

// DefaultConfig 5 秒采样一次，连续两次为 0（约 10 秒）后关闭。
func DefaultConfig() Config {
	return Config{
		Mode:                ModePoll,
		PollInterval:        5 * time.Second,
		IdleSamples:         2,
		MinTotalConnections: 2,
	}
}

type Coordinator struct {
	cfg      Config
	activity Activity
	signal   *Signal
	log      *zap.Logger
	metrics  Metrics

	mu          sync.Mutex
	zeroSamples int
}

func NewCoordinator(cfg Config, activity Activity, signal *Signal) (*Coordinator, error) {
	if activity == nil {
		return nil, fmt.Errorf("activity source is required")
	}
	switch cfg.Mode {
	case ModePoll, ModeEvent, ModeOff:
	case "":
		cfg.Mode = ModePoll
	default:
		return nil, fmt.Errorf("unknown shutdown mode %q", cfg.Mode)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.IdleSamples <= 0 {
		cfg.IdleSamples = DefaultConfig().IdleSamples
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if signal == nil {
		signal = NewSignal()
	}
	return &Coordinator{
		cfg:      cfg,
		activity: activity,
		signal:   signal,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

func (c *Coordinator) Signal() *Signal { return c.signal }

func (c *Coordinator) Mode() Mode { return c.cfg.Mode }

// NotifyIdle is the registry's idle callback.
func (c *Coordinator) NotifyIdle() {
	if c.cfg.Mode != ModeEvent {
		c.log.Debug("idle notification ignored", zap.String("mode", string(c.cfg.Mode)))
		return
	}
	if !c.guardSatisfied() {
		return
	}
	c.trigger(ReasonLastGone)
}

// Sample performs one polling step and reports whether shutdown has fired.
func (c *Coordinator) Sample() bool {
	if c.signal.Triggered() {
		return true
	}
	// ActiveCount prunes stale clients; in event mode that may call NotifyIdle.
	active := c.activity.ActiveCount()
	if c.cfg.Mode != ModePoll {
		return c.signal.Triggered()
	}

	// zero readings only count once the guard holds
	counted := active == 0 && c.guardSatisfied()

	c.mu.Lock()
	if !counted {
		c.zeroSamples = 0
		c.mu.Unlock()
		return false
	}
	c.zeroSamples++
	zeros := c.zeroSamples
	c.mu.Unlock()

	c.log.Debug("no active clients", zap.Int("consecutive", zeros), zap.Int("required", c.cfg.IdleSamples))
	if zeros < c.cfg.IdleSamples {
		return false
	}
	c.log.Info("no active clients, initiating shutdown",
		zap.Duration("idle_for", time.Duration(zeros)*c.cfg.PollInterval))
	c.trigger(ReasonIdle)
	return true
}

// Run samples every PollInterval until ctx is done or the signal fires.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.signal.Done():
			return nil
		case <-ticker.C:
			if c.Sample() {
				return nil
			}
		}
	}
}

// ConsecutiveZeroSamples exposes the hysteresis counter.
func (c *Coordinator) ConsecutiveZeroSamples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zeroSamples
}

func (c *Coordinator) guardSatisfied() bool {
	total := c.activity.TotalConnections()
	if total < c.cfg.MinTotalConnections {
		c.log.Debug("idle ignored, not enough connections seen",
			zap.Uint64("total", total),
			zap.Uint64("min", c.cfg.MinTotalConnections))
		return false
	}
	return true
}

func (c *Coordinator) trigger(reason string) {
	if c.signal.Trigger(reason) {
		c.metrics.ShutdownTriggered(reason)
		c.log.Info("shutdown signalled", zap.String("reason", reason))
	}
}
