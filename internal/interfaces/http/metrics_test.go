package http

import (
	"errors"
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, m *MetricsRegistry, name string) *io_prometheus_client.MetricFamily {
	t.Helper()
	families, err := m.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func labelsOf(metric *io_prometheus_client.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range metric.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestMetrics_UpstreamObserver(t *testing.T) {
	m := NewMetricsRegistry()
	m.ObserveRequest("/api/v3/depth", 200, 80*time.Millisecond)
	m.ObserveRequest("/api/v3/depth", 429, 10*time.Millisecond)
	m.ObserveRetry("/api/v3/depth", 429)

	requests := family(t, m, "bookscope_upstream_requests_total")
	require.NotNil(t, requests)
	assert.Len(t, requests.GetMetric(), 2)
	for _, metric := range requests.GetMetric() {
		assert.Equal(t, "/api/v3/depth", labelsOf(metric)["endpoint"])
		assert.Equal(t, 1.0, metric.GetCounter().GetValue())
	}

	latency := family(t, m, "bookscope_upstream_request_duration_seconds")
	require.NotNil(t, latency)
	assert.Equal(t, uint64(2), latency.GetMetric()[0].GetHistogram().GetSampleCount())

	retries := family(t, m, "bookscope_upstream_retries_total")
	require.NotNil(t, retries)
	assert.Equal(t, "429", labelsOf(retries.GetMetric()[0])["status"])

	m.ObserveWeight("api.binance.com", 12)
	m.ObserveWeight("api.binance.com", 57)
	weight := family(t, m, "bookscope_upstream_used_weight")
	require.NotNil(t, weight)
	assert.Equal(t, 57.0, weight.GetMetric()[0].GetGauge().GetValue())
}

func TestMetrics_CacheHitRatio(t *testing.T) {
	m := NewMetricsRegistry()
	m.ObserveCache("/api/v3/exchangeInfo", false)
	m.ObserveCache("/api/v3/exchangeInfo", true)
	m.ObserveCache("/api/v3/exchangeInfo", true)
	m.ObserveCache("/api/v3/depth", false)

	ratio := family(t, m, "bookscope_cache_hit_ratio")
	require.NotNil(t, ratio)
	assert.InDelta(t, 0.5, ratio.GetMetric()[0].GetGauge().GetValue(), 1e-9)
}

func TestMetrics_RecordAnalysis(t *testing.T) {
	m := NewMetricsRegistry()
	m.RecordAnalysis("BTCUSDT", sampleReport(), 200*time.Millisecond, nil)

	spread := family(t, m, "bookscope_spread_percent")
	require.NotNil(t, spread)
	assert.InDelta(t, 0.995, spread.GetMetric()[0].GetGauge().GetValue(), 1e-9)

	obi := family(t, m, "bookscope_order_book_imbalance")
	require.NotNil(t, obi)
	assert.InDelta(t, 0.25, obi.GetMetric()[0].GetGauge().GetValue(), 1e-9)

	assert.Nil(t, family(t, m, "bookscope_pressure_index"), "undefined metrics publish no series")

	m.RecordAnalysis("BTCUSDT", nil, time.Second, errors.New("venue down"))
	analyses := family(t, m, "bookscope_analyses_total")
	require.NotNil(t, analyses)
	results := map[string]float64{}
	for _, metric := range analyses.GetMetric() {
		results[labelsOf(metric)["result"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"ok": 1, "error": 1}, results)

	duration := family(t, m, "bookscope_analysis_duration_seconds")
	require.NotNil(t, duration)
	assert.Equal(t, uint64(2), duration.GetMetric()[0].GetHistogram().GetSampleCount())
}
