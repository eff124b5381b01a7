package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 进程内 Prometheus 指标，nil 接收者上的方法均为空操作
type Metrics struct {
	registry         *prometheus.Registry
	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	bytesSavedTotal  prometheus.Counter
	queueDepth       prometheus.Gauge
	rateLimitedTotal prometheus.Counter
	compressionCount prometheus.Gauge
	broadcastTotal   *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到独立 registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_compressor_jobs_total",
			Help: "Compression jobs by target format and outcome.",
		}, []string{"format", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "image_compressor_job_duration_seconds",
			Help:    "End-to-end duration of a compression job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_compressor_bytes_saved_total",
			Help: "Total bytes saved across successful jobs.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_compressor_queue_depth",
			Help: "Jobs waiting in the worker queue.",
		}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_compressor_rate_limited_total",
			Help: "Requests rejected by the per-user cooldown.",
		}),
		compressionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_compressor_upstream_compression_count",
			Help: "Last Compression-Count reported by the upstream API.",
		}),
		broadcastTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_compressor_broadcast_messages_total",
			Help: "Broadcast deliveries by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.bytesSavedTotal,
		m.queueDepth,
		m.rateLimitedTotal,
		m.compressionCount,
		m.broadcastTotal,
	)
	return m
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 registry（测试读取用）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveJob 记录一次压缩任务
func (m *Metrics) ObserveJob(format, outcome string, took time.Duration, bytesSaved int64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(format, outcome).Inc()
	m.jobDuration.WithLabelValues(outcome).Observe(took.Seconds())
	if bytesSaved > 0 {
		m.bytesSavedTotal.Add(float64(bytesSaved))
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

func (m *Metrics) SetCompressionCount(n int) {
	if m == nil || n < 0 {
		return
	}
	m.compressionCount.Set(float64(n))
}

func (m *Metrics) IncBroadcast(result string) {
	if m == nil {
		return
	}
	m.broadcastTotal.WithLabelValues(result).Inc()
}
