package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"

	"github.com/sawpanic/bookscope/internal/application/analysis"
)

// MetricsRegistry holds the bookscope Prometheus metrics. It implements client.Observer for
// upstream telemetry and analysis.Recorder for engine results.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Upstream API
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec
	UsedWeight       *prometheus.GaugeVec

	// Response cache
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheHitRatio prometheus.Gauge

	// Engine
	Analyses         *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	SpreadPercent    *prometheus.GaugeVec
	OrderBookImbal   *prometheus.GaugeVec
	PressureIndex    *prometheus.GaugeVec
	LiquidityScore   *prometheus.GaugeVec

	cacheMu   sync.Mutex
	cacheSeen map[string]struct{}
}

// NewMetricsRegistry creates and registers every metric on a private registry
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscope_upstream_requests_total",
				Help: "Upstream API requests by endpoint and HTTP status (0 = transport failure)",
			},
			[]string{"endpoint", "status"},
		),

		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookscope_upstream_request_duration_seconds",
				Help:    "Upstream API request latency in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),

		UpstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscope_upstream_retries_total",
				Help: "Rate limited upstream responses (429/418) by endpoint",
			},
			[]string{"endpoint", "status"},
		),

		UsedWeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookscope_upstream_used_weight",
				Help: "Request weight used in the current minute as reported by the venue",
			},
			[]string{"host"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscope_cache_hits_total",
				Help: "Response cache hits by endpoint",
			},
			[]string{"endpoint"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscope_cache_misses_total",
				Help: "Response cache misses by endpoint",
			},
			[]string{"endpoint"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookscope_cache_hit_ratio",
				Help: "Response cache hit ratio across endpoints (0.0 to 1.0)",
			},
		),

		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookscope_analyses_total",
				Help: "Symbol analyses by result",
			},
			[]string{"symbol", "result"},
		),

		AnalysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookscope_analysis_duration_seconds",
				Help:    "Fetch plus analysis time per symbol",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		SpreadPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookscope_spread_percent",
				Help: "Latest bid/ask spread as a percent of mid",
			},
			[]string{"symbol"},
		),

		OrderBookImbal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookscope_order_book_imbalance",
				Help: "Latest near-touch order book imbalance (-1 to 1)",
			},
			[]string{"symbol"},
		),

		PressureIndex: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookscope_pressure_index",
				Help: "Latest market pressure index (-1 to 1)",
			},
			[]string{"symbol"},
		),

		LiquidityScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookscope_liquidity_score",
				Help: "Latest liquidity score (0 to 1)",
			},
			[]string{"symbol"},
		),

		cacheSeen: make(map[string]struct{}),
	}

	m.registry.MustRegister(
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.UpstreamRetries,
		m.UsedWeight,
		m.CacheHits,
		m.CacheMisses,
		m.CacheHitRatio,
		m.Analyses,
		m.AnalysisDuration,
		m.SpreadPercent,
		m.OrderBookImbal,
		m.PressureIndex,
		m.LiquidityScore,
		collectors.NewGoCollector(),
	)

	return m
}

// ObserveRequest records one upstream attempt
func (m *MetricsRegistry) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	m.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveRetry records a rate limited response
func (m *MetricsRegistry) ObserveRetry(endpoint string, status int) {
	m.UpstreamRetries.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObserveWeight records the venue's used request weight for host
func (m *MetricsRegistry) ObserveWeight(host string, used int) {
	m.UsedWeight.WithLabelValues(host).Set(float64(used))
}

// ObserveCache records a cache lookup and refreshes the hit ratio
func (m *MetricsRegistry) ObserveCache(endpoint string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(endpoint).Inc()
	} else {
		m.CacheMisses.WithLabelValues(endpoint).Inc()
	}

	m.cacheMu.Lock()
	m.cacheSeen[endpoint] = struct{}{}
	m.cacheMu.Unlock()

	m.updateCacheHitRatio()
}

// RecordAnalysis publishes the headline metrics of an analysis
func (m *MetricsRegistry) RecordAnalysis(symbol string, report *analysis.Report, elapsed time.Duration, err error) {
	m.AnalysisDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.Analyses.WithLabelValues(symbol, "error").Inc()
		return
	}
	m.Analyses.WithLabelValues(symbol, "ok").Inc()

	res := report.Analysis
	setGauge(m.SpreadPercent, symbol, res.Market.SpreadPercent.Valid, res.Market.SpreadPercent.Decimal.InexactFloat64())
	setGauge(m.OrderBookImbal, symbol, res.OBI.Valid, res.OBI.Decimal.InexactFloat64())
	setGauge(m.PressureIndex, symbol, res.PressureIndex.Valid, res.PressureIndex.Decimal.InexactFloat64())
	setGauge(m.LiquidityScore, symbol, res.LiquidityScore.Valid, res.LiquidityScore.Decimal.InexactFloat64())
}

// setGauge drops the series when the metric is undefined rather than publishing a fake zero
func setGauge(g *prometheus.GaugeVec, symbol string, valid bool, v float64) {
	if !valid {
		g.DeleteLabelValues(symbol)
		return
	}
	g.WithLabelValues(symbol).Set(v)
}

// updateCacheHitRatio sums hits and misses over every endpoint seen so far
func (m *MetricsRegistry) updateCacheHitRatio() {
	m.cacheMu.Lock()
	endpoints := make([]string, 0, len(m.cacheSeen))
	for endpoint := range m.cacheSeen {
		endpoints = append(endpoints, endpoint)
	}
	m.cacheMu.Unlock()

	totalHits, totalMisses := 0.0, 0.0
	for _, endpoint := range endpoints {
		totalHits += counterValue(m.CacheHits, endpoint)
		totalMisses += counterValue(m.CacheMisses, endpoint)
	}

	if total := totalHits + totalMisses; total > 0 {
		m.CacheHitRatio.Set(totalHits / total)
	}
}

func counterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	metric := &io_prometheus_client.Metric{}
	if err := counter.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}

// Gather exposes the registry for tests and embedding
func (m *MetricsRegistry) Gather() ([]*io_prometheus_client.MetricFamily, error) {
	return m.registry.Gather()
}

// MetricsHandler returns an HTTP handler for the private registry
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
