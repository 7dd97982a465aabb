// Package metrics prometheus 指标：缓存命中、重算耗时、库存修改结果
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合，实现 cache.Observer 与 service.MutationObserver
type Metrics struct {
	registry     *prometheus.Registry
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	mutations    *prometheus.CounterVec
}

// New 创建独立 registry 并注册所有指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mes_cache_hits_total",
				Help: "Number of cache reads served without reloading",
			},
			[]string{"cache"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mes_cache_misses_total",
				Help: "Number of cache reads that triggered a reload",
			},
			[]string{"cache"},
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mes_cache_load_duration_seconds",
				Help:    "Duration of workbook extraction per cache",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cache"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mes_mutations_total",
				Help: "Inventory mutations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.loadDuration,
		m.mutations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Hit 缓存命中
func (m *Metrics) Hit(name string) { m.cacheHits.WithLabelValues(name).Inc() }

// Miss 缓存失效
func (m *Metrics) Miss(name string) { m.cacheMisses.WithLabelValues(name).Inc() }

// Loaded 重算完成
func (m *Metrics) Loaded(name string, d time.Duration) {
	m.loadDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveMutation 记录一次修改的结果
func (m *Metrics) ObserveMutation(op, outcome string) {
	m.mutations.WithLabelValues(op, outcome).Inc()
}

// GaugeFunc 注册一个按需取值的 gauge，例如 SSE 连接数
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
