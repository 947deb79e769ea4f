package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/bookscope/internal/application/analysis"
	"github.com/sawpanic/bookscope/internal/data/exchanges/binance"
	"github.com/sawpanic/bookscope/internal/execution"
	"github.com/sawpanic/bookscope/internal/microstructure"
	"github.com/sawpanic/bookscope/internal/net/circuit"
	"github.com/sawpanic/bookscope/internal/net/client"
	"github.com/sawpanic/bookscope/internal/net/ratelimit"
)

type stubAnalyzer struct {
	reports map[string]*analysis.Report
	errs    map[string]error
	symbols []string
}

func (a *stubAnalyzer) Analyze(ctx context.Context, symbol string) (*analysis.Report, error) {
	a.symbols = append(a.symbols, symbol)
	if err := a.errs[symbol]; err != nil {
		return nil, err
	}
	return a.reports[symbol], nil
}

type stubHealth struct {
	health binance.Health
}

func (h stubHealth) Health() binance.Health { return h.health }

func sampleReport() *analysis.Report {
	spread := decimal.NewNullDecimal(decimal.RequireFromString("0.995"))
	return &analysis.Report{
		Symbol: "BTCUSDT",
		Analysis: &microstructure.AnalysisResult{
			Symbol: "BTCUSDT",
			Market: microstructure.MarketAnalysis{SpreadPercent: spread},
			OBI:    decimal.NewNullDecimal(decimal.RequireFromString("0.25")),
		},
		Recommendation: execution.OrderTypeLimit,
	}
}

func newTestServer(analyzer Analyzer, health HealthReporter) *Server {
	return NewServer(DefaultServerConfig(), analyzer, health, NewMetricsRegistry(), "test")
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestServer_Analyze(t *testing.T) {
	analyzer := &stubAnalyzer{reports: map[string]*analysis.Report{"BTCUSDT": sampleReport()}}
	s := newTestServer(analyzer, nil)

	rr := serve(t, s, "/analyze/btcusdt")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Len(t, rr.Header().Get("X-Request-ID"), 8)
	assert.Equal(t, []string{"BTCUSDT"}, analyzer.symbols)

	var body struct {
		Symbol         string `json:"symbol"`
		Recommendation string `json:"recommendation"`
		Analysis       struct {
			OBI  *string `json:"obi"`
			WOBI *string `json:"wobi"`
		} `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "BTCUSDT", body.Symbol)
	assert.Equal(t, "limit", body.Recommendation)
	require.NotNil(t, body.Analysis.OBI)
	assert.Equal(t, "0.25", *body.Analysis.OBI)
	assert.Nil(t, body.Analysis.WOBI, "undefined metrics are null")
}

func TestServer_AnalyzeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid_book", fmt.Errorf("analyze: %w", &microstructure.InputError{Field: "asks", Reason: "crossed"}), http.StatusUnprocessableEntity},
		{"unknown_symbol", &binance.APIError{StatusCode: 400, Code: -1121, Message: "Invalid symbol."}, http.StatusBadRequest},
		{"rate_limited", &client.ProviderError{Provider: "binance", Type: client.ErrorTypeRateLimit, StatusCode: 429}, http.StatusTooManyRequests},
		{"circuit_open", &client.ProviderError{Provider: "binance", Type: client.ErrorTypeCircuit, Err: circuit.ErrCircuitOpen}, http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("order book: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"venue_down", &binance.APIError{StatusCode: 502}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubAnalyzer{errs: map[string]error{"XUSDT": tt.err}}, nil)
			rr := serve(t, s, "/analyze/XUSDT")
			assert.Equal(t, tt.want, rr.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, "analysis failed", body.Error)
			assert.NotEmpty(t, body.Details)
		})
	}
}

func TestServer_Health(t *testing.T) {
	t.Run("no_upstream", func(t *testing.T) {
		rr := serve(t, newTestServer(&stubAnalyzer{}, nil), "/health")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "test", resp.Version)
		assert.NotEmpty(t, resp.System.GoVersion)
		assert.Positive(t, resp.System.NumGoroutines)
		assert.Nil(t, resp.Upstream)
	})

	t.Run("breaker_open", func(t *testing.T) {
		health := stubHealth{binance.Health{Breaker: circuit.Stats{Name: "binance", State: "open"}}}
		rr := serve(t, newTestServer(&stubAnalyzer{}, health), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), `"degraded"`)
	})

	t.Run("throttled", func(t *testing.T) {
		health := stubHealth{binance.Health{
			Breaker: circuit.Stats{Name: "binance", State: "closed"},
			Limits: map[string]ratelimit.LimiterStats{
				"api.binance.com": {Host: "api.binance.com", BlockedUntil: time.Now().Add(time.Minute)},
			},
		}}
		rr := serve(t, newTestServer(&stubAnalyzer{}, health), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(&stubAnalyzer{}, nil)
	s.metrics.RecordAnalysis("BTCUSDT", sampleReport(), 120*time.Millisecond, nil)

	rr := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `bookscope_spread_percent{symbol="BTCUSDT"} 0.995`))
	assert.Contains(t, string(body), `bookscope_analyses_total{result="ok",symbol="BTCUSDT"} 1`)
}

func TestServer_NotFound(t *testing.T) {
	rr := serve(t, newTestServer(&stubAnalyzer{}, nil), "/candidates")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
}

func TestServer_Run(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Port = 0
	s := NewServer(cfg, &stubAnalyzer{}, nil, NewMetricsRegistry(), "test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultServerConfig().Validate())
	assert.Error(t, ServerConfig{Port: 70000}.Validate())
}
