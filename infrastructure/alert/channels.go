package alert

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogChannel writes alerts through zap at a level matching the alert.
type LogChannel struct {
	name   string
	logger *zap.Logger
}

func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{name: name, logger: logger}
}

func (c *LogChannel) Send(a Alert) error {
	fields := make([]zap.Field, 0, len(a.Fields)+2)
	fields = append(fields, zap.String("alert_level", string(a.Level)), zap.Time("alert_time", a.Timestamp))
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := c.logger.Check(zapLevel(a.Level), "[ALERT] "+a.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError, LevelCritical:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// MemoryChannel 保存告警，测试用
type MemoryChannel struct {
	name    string
	alerts  []Alert
	failing bool
	mu      sync.Mutex
}

func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("memory channel failing")
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *MemoryChannel) Name() string { return c.name }

func (c *MemoryChannel) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

func (c *MemoryChannel) SetFailing(v bool) {
	c.mu.Lock()
	c.failing = v
	c.mu.Unlock()
}
