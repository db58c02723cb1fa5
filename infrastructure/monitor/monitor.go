package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 连接指标
	activeClients    prometheus.Gauge
	connectionsTotal prometheus.Counter
	disconnects      *prometheus.CounterVec

	// RPC 指标
	rpcRequests *prometheus.CounterVec
	rpcErrors   *prometheus.CounterVec
	rpcLatency  *prometheus.HistogramVec

	// 行情指标
	pricesGenerated *prometheus.CounterVec

	// 推流指标
	streamSessions prometheus.Gauge
	streamUpdates  *prometheus.CounterVec

	// 生命周期指标
	shutdowns *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "finance",
		Subsystem: "server",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		activeClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "active_clients",
			Help:      "当前活跃客户端数",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connections_total",
			Help:      "累计连接客户端数",
		}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "disconnects_total",
			Help:      "客户端断开次数（按原因）",
		}, []string{"reason"}),

		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rpc_requests_total",
			Help:      "RPC 请求数量",
		}, []string{"method"}),
		rpcErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rpc_errors_total",
			Help:      "RPC 错误数量",
		}, []string{"method", "code"}),
		rpcLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rpc_latency_seconds",
			Help:      "RPC 耗时分布（秒）",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1.0},
		}, []string{"method"}),

		pricesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "prices_generated_total",
			Help:      "生成的价格数量",
		}, []string{"ticker"}),

		streamSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_sessions_active",
			Help:      "当前推流会话数",
		}),
		streamUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_updates_total",
			Help:      "推送的价格更新数量",
		}, []string{"ticker"}),

		shutdowns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "shutdown_triggered_total",
			Help:      "触发优雅关闭的次数（按原因）",
		}, []string{"reason"}),
	}
}

// 连接指标

func (m *Monitor) ConnectionOpened() {
	m.connectionsTotal.Inc()
}

func (m *Monitor) ConnectionClosed(reason string) {
	m.disconnects.WithLabelValues(reason).Inc()
}

func (m *Monitor) ActiveClients(n int) {
	m.activeClients.Set(float64(n))
}

// RPC 指标

func (m *Monitor) RecordRPC(method, code string, seconds float64) {
	m.rpcRequests.WithLabelValues(method).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(seconds)
	if code != "OK" {
		m.rpcErrors.WithLabelValues(method, code).Inc()
	}
}

// 行情指标

func (m *Monitor) PricesGenerated(ticker string, n int) {
	m.pricesGenerated.WithLabelValues(ticker).Add(float64(n))
}

// 推流指标

func (m *Monitor) SessionStarted(ticker string) {
	m.streamSessions.Inc()
}

func (m *Monitor) SessionEnded(ticker string) {
	m.streamSessions.Dec()
}

func (m *Monitor) UpdateSent(ticker string) {
	m.streamUpdates.WithLabelValues(ticker).Inc()
}

// 生命周期指标

func (m *Monitor) ShutdownTriggered(reason string) {
	m.shutdowns.WithLabelValues(reason).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层注册表
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
