// Package metrics 提供 ws.Metrics 的 Prometheus 实现
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config 指标配置
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{Enabled: true, Path: "/metrics", Namespace: "pawchat"}
}

// Prometheus 实时通道指标
type Prometheus struct {
	registry *prometheus.Registry

	connections      prometheus.Gauge
	connectsTotal    prometheus.Counter
	disconnectsTotal prometheus.Counter
	replacedTotal    prometheus.Counter

	messagesTotal  *prometheus.CounterVec
	messageErrors  *prometheus.CounterVec
	messageLatency *prometheus.HistogramVec

	rooms            prometheus.Gauge
	broadcastLatency prometheus.Histogram
	droppedTotal     prometheus.Counter

	readErrors    prometheus.Counter
	writeErrors   prometheus.Counter
	invalidFrames prometheus.Counter
}

// New 创建并注册指标，namespace 为空时使用 pawchat
func New(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "pawchat"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: "ws", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "ws", Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}

	p := &Prometheus{
		registry:         reg,
		connections:      gauge("connections", "Currently registered connections."),
		connectsTotal:    counter("connects_total", "Sessions that became active."),
		disconnectsTotal: counter("disconnects_total", "Sessions that finished teardown."),
		replacedTotal:    counter("replaced_sessions_total", "Sessions evicted by a newer connection of the same user."),
		rooms:            gauge("rooms", "Rooms with at least one subscriber."),
		droppedTotal:     counter("dropped_deliveries_total", "Deliveries dropped because the recipient was gone or too slow."),
		readErrors:       counter("read_errors_total", "Transport read failures."),
		writeErrors:      counter("write_errors_total", "Transport write failures."),
		invalidFrames:    counter("invalid_frames_total", "Inbound frames rejected before routing."),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "events_total", Help: "Inbound events routed, by type.",
		}, []string{"type"}),
		messageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "event_errors_total", Help: "Inbound events whose handler failed, by type.",
		}, []string{"type"}),
		messageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ws", Name: "event_duration_seconds", Help: "Handler latency, by type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		broadcastLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ws", Name: "broadcast_duration_seconds", Help: "Room fan-out latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	reg.MustRegister(p.messagesTotal, p.messageErrors, p.messageLatency, p.broadcastLatency)
	return p
}

// Registry 底层注册表
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler 暴露 /metrics
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) IncrementConnections() { p.connectsTotal.Inc() }

func (p *Prometheus) DecrementConnections() { p.disconnectsTotal.Inc() }

func (p *Prometheus) SetConnectionCount(count int) { p.connections.Set(float64(count)) }

func (p *Prometheus) IncrementReplacedSessions() { p.replacedTotal.Inc() }

func (p *Prometheus) IncrementMessageCount(msgType string) {
	p.messagesTotal.WithLabelValues(msgType).Inc()
}

func (p *Prometheus) RecordMessageLatency(msgType string, d time.Duration) {
	p.messageLatency.WithLabelValues(msgType).Observe(d.Seconds())
}

func (p *Prometheus) IncrementMessageErrors(msgType string) {
	p.messageErrors.WithLabelValues(msgType).Inc()
}

func (p *Prometheus) SetRoomCount(count int) { p.rooms.Set(float64(count)) }

func (p *Prometheus) RecordBroadcastLatency(d time.Duration) {
	p.broadcastLatency.Observe(d.Seconds())
}

func (p *Prometheus) IncrementDroppedMessages() { p.droppedTotal.Inc() }

func (p *Prometheus) IncrementReadErrors() { p.readErrors.Inc() }

func (p *Prometheus) IncrementWriteErrors() { p.writeErrors.Inc() }

func (p *Prometheus) IncrementInvalidMessages() { p.invalidFrames.Inc() }
