package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "config/config.yaml"

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string          `yaml:"env"`
	Server    EndpointConfig  `yaml:"server"`
	Client    EndpointConfig  `yaml:"client"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Stream    StreamConfig    `yaml:"stream"`
	Limits    LimitsConfig    `yaml:"limits"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// EndpointConfig is a resolved host/port pair to bind or dial.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr joins host and port.
func (e EndpointConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// LifecycleConfig 控制连接存活判定与空闲自动关闭。
type LifecycleConfig struct {
	ShutdownMode        string `yaml:"shutdownMode"`        // poll | event | off
	PollIntervalMs      int    `yaml:"pollIntervalMs"`      // 空闲采样周期
	IdleSamples         int    `yaml:"idleSamples"`         // 连续为 0 的采样次数达到后关闭
	MinTotalConnections int    `yaml:"minTotalConnections"` // 累计连接数未达到时不触发关闭，0 表示不设防
	StalenessWindowMs   int    `yaml:"stalenessWindowMs"`   // 超过该时长无活动视为断开
	DrainTimeoutMs      int    `yaml:"drainTimeoutMs"`      // 优雅关闭最长等待
}

// StreamConfig 控制 StreamPrices 推流节奏。
type StreamConfig struct {
	IntervalMs int `yaml:"intervalMs"`
	Buffer     int `yaml:"buffer"`
}

// LimitsConfig 请求参数上限。
type LimitsConfig struct {
	MaxCount int `yaml:"maxCount"` // GetMultiplePrices 单次最多生成的价格数
}

// HTTPConfig is the side port serving /metrics, /healthz and the websocket feed.
// An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
}

// Default returns the configuration used when no file is present.
func Default() AppConfig {
	return AppConfig{
		Env:    "dev",
		Server: EndpointConfig{Host: "0.0.0.0", Port: 50051},
		Client: EndpointConfig{Host: "127.0.0.1", Port: 50051},
		Lifecycle: LifecycleConfig{
			ShutdownMode:        "poll",
			PollIntervalMs:      5000,
			IdleSamples:         2,
			MinTotalConnections: 2,
			StalenessWindowMs:   30000,
			DrainTimeoutMs:      10000,
		},
		Stream: StreamConfig{IntervalMs: 1000, Buffer: 32},
		Limits: LimitsConfig{MaxCount: 10000},
		HTTP:   HTTPConfig{Addr: ":9100"},
		Log:    LogConfig{Level: "info", Format: "json", Outputs: []string{"stdout"}},
	}
}

// Durations derived from the millisecond fields.

func (l LifecycleConfig) PollInterval() time.Duration {
	return time.Duration(l.PollIntervalMs) * time.Millisecond
}

func (l LifecycleConfig) StalenessWindow() time.Duration {
	return time.Duration(l.StalenessWindowMs) * time.Millisecond
}

func (l LifecycleConfig) DrainTimeout() time.Duration {
	return time.Duration(l.DrainTimeoutMs) * time.Millisecond
}

func (s StreamConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// ResolvePath honors CONFIG_PATH.
func ResolvePath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads YAML config from path on top of Default and applies validation.
// A missing file is not an error: defaults are returned.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, Validate(cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides endpoint fields from env vars if present.
// A .env file in the working directory is loaded first; real env vars win over it.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	_ = godotenv.Load()
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("GRPC_CLIENT_HOST"); v != "" {
		cfg.Client.Host = v
	}
	if v := os.Getenv("FIN_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if err := portFromEnv("FIN_SERVER_PORT", &cfg.Server.Port); err != nil {
		return cfg, err
	}
	if err := portFromEnv("FIN_CLIENT_PORT", &cfg.Client.Port); err != nil {
		return cfg, err
	}
	if v := os.Getenv("FIN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}

func portFromEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	port, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = port
	return nil
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Server.Host == "" {
		return ErrInvalid("server.host is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return ErrInvalid(fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Client.Host == "" {
		return ErrInvalid("client.host is required")
	}
	if cfg.Client.Port <= 0 || cfg.Client.Port > 65535 {
		return ErrInvalid(fmt.Sprintf("client.port %d out of range", cfg.Client.Port))
	}
	return ValidateParams(cfg)
}
