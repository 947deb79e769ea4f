// Package http serves the monitor endpoints: health, Prometheus metrics and on-demand analysis.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/bookscope/internal/application/analysis"
	"github.com/sawpanic/bookscope/internal/data/exchanges/binance"
	"github.com/sawpanic/bookscope/internal/microstructure"
	"github.com/sawpanic/bookscope/internal/net/client"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Analyzer produces a report for one symbol
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*analysis.Report, error)
}

// HealthReporter exposes upstream transport health
type HealthReporter interface {
	Health() binance.Health
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultServerConfig listens on localhost only
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Validate checks the listen address and timeouts
func (c ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Port)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("server request_timeout must be >= 0")
	}
	return nil
}

// Server is the read-only monitor server
type Server struct {
	router    *mux.Router
	server    *http.Server
	config    ServerConfig
	analyzer  Analyzer
	health    HealthReporter
	metrics   *MetricsRegistry
	version   string
	startTime time.Time
}

// NewServer wires routes and middleware. health may be nil.
func NewServer(config ServerConfig, analyzer Analyzer, health HealthReporter, metrics *MetricsRegistry, version string) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		config:    config,
		analyzer:  analyzer,
		health:    health,
		metrics:   metrics,
		version:   version,
		startTime: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         net.JoinHostPort(config.Host, fmt.Sprintf("%d", config.Port)),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.Handle("/metrics", s.metrics.MetricsHandler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/analyze/{symbol}", s.handleAnalyze).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, http.StatusNotFound, "not found", r.URL.Path)
	})
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("port %d is busy or unavailable: %w", s.config.Port, err)
	}
	log.Info().Str("addr", listener.Addr().String()).Msg("monitor server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down monitor server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HealthResponse is the /health payload
type HealthResponse struct {
	Status    string          `json:"status"` // "healthy", "degraded"
	Timestamp time.Time       `json:"timestamp"`
	Uptime    string          `json:"uptime"`
	Version   string          `json:"version"`
	System    SystemInfo      `json:"system"`
	Upstream  *binance.Health `json:"upstream,omitempty"`
}

// SystemInfo is process-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   s.version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
	}

	if s.health != nil {
		upstream := s.health.Health()
		resp.Upstream = &upstream
		if !upstream.Breaker.IsHealthy() {
			resp.Status = "degraded"
		}
		for _, l := range upstream.Limits {
			if l.IsThrottled() {
				resp.Status = "degraded"
			}
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	report, err := s.analyzer.Analyze(r.Context(), symbol)
	if err != nil {
		status := statusFor(err)
		log.Warn().Err(err).Str("symbol", symbol).Int("status", status).
			Interface("request_id", r.Context().Value(requestIDKey)).Msg("analysis failed")
		writeError(w, status, "analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// statusFor maps engine and transport failures onto HTTP statuses
func statusFor(err error) int {
	var (
		apiErr      *binance.APIError
		providerErr *client.ProviderError
	)
	switch {
	case errors.Is(err, microstructure.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return http.StatusBadRequest
	case errors.As(err, &providerErr) && providerErr.IsRateLimited():
		return http.StatusTooManyRequests
	case errors.As(err, &providerErr) && providerErr.IsCircuitOpen():
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// requestIDMiddleware adds a short request ID to the context and response
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs every request with its status and duration
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Interface("request_id", r.Context().Value(requestIDKey)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// responseWrapper captures the status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
