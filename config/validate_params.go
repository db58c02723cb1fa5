package config

import "fmt"

// ValidateParams 额外验证生命周期与推流参数。
func ValidateParams(cfg AppConfig) error {
	l := cfg.Lifecycle
	switch l.ShutdownMode {
	case "poll", "event", "off":
	default:
		return ErrInvalid(fmt.Sprintf("lifecycle.shutdownMode %q must be poll, event or off", l.ShutdownMode))
	}
	if l.PollIntervalMs <= 0 {
		return ErrInvalid("lifecycle.pollIntervalMs must be > 0")
	}
	if l.IdleSamples <= 0 {
		return ErrInvalid("lifecycle.idleSamples must be > 0")
	}
	if l.MinTotalConnections < 0 {
		return ErrInvalid("lifecycle.minTotalConnections must be >= 0")
	}
	if l.StalenessWindowMs <= 0 {
		return ErrInvalid("lifecycle.stalenessWindowMs must be > 0")
	}
	if l.DrainTimeoutMs < 0 {
		return ErrInvalid("lifecycle.drainTimeoutMs must be >= 0")
	}
	if cfg.Stream.IntervalMs <= 0 {
		return ErrInvalid("stream.intervalMs must be > 0")
	}
	if cfg.Stream.Buffer <= 0 {
		return ErrInvalid("stream.buffer must be > 0")
	}
	if cfg.Limits.MaxCount <= 0 {
		return ErrInvalid("limits.maxCount must be > 0")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }
