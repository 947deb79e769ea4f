package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/bookscope/internal/net/circuit"
	"github.com/sawpanic/bookscope/internal/net/ratelimit"
)

const (
	DefaultUserAgent  = "binance-skill"
	DefaultMaxRetries = 3

	// UsedWeightHeader carries Binance's per-IP request weight for the current minute
	UsedWeightHeader = "X-MBX-USED-WEIGHT-1M"

	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 8 * time.Second
	maxJitter   = 100 * time.Millisecond
)

// Error types carried by ProviderError
const (
	ErrorTypeRateLimit = "rate_limit"
	ErrorTypeCircuit   = "circuit"
	ErrorTypeTransport = "transport"
	ErrorTypeHTTP      = "http_error"
	ErrorTypeDecode    = "decode"
)

// Cache stores raw GET response bodies
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Observer receives request telemetry
type Observer interface {
	ObserveRequest(endpoint string, status int, elapsed time.Duration)
	ObserveRetry(endpoint string, status int)
	ObserveCache(endpoint string, hit bool)
	ObserveWeight(host string, used int)
}

// WrapperConfig configures the HTTP client wrapper
type WrapperConfig struct {
	Provider       string
	UserAgent      string
	MaxRetries     int
	RateLimiter    *ratelimit.Limiter
	CircuitBreaker *circuit.Breaker
	Cache          Cache
	CacheTTL       time.Duration
	Observer       Observer

	// Weigher prices a request in rate limit units; nil charges 1 per request
	Weigher func(*http.Request) int
}

// Wrapper is an http.RoundTripper adding user agent, caching, per-host rate limiting,
// circuit breaking and 429/418 retries in front of a transport
type Wrapper struct {
	config    WrapperConfig
	transport http.RoundTripper
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() time.Duration
}

// NewWrapper creates a wrapper around transport (http.DefaultTransport when nil)
func NewWrapper(config WrapperConfig, transport http.RoundTripper) *Wrapper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &Wrapper{
		config:    config,
		transport: transport,
		sleep:     sleepContext,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
}

// RoundTrip implements http.RoundTripper. Non-2xx responses other than exhausted rate
// limits are returned to the caller so it can decode the venue's error body.
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", w.config.UserAgent)
	}

	cacheable := w.config.Cache != nil && req.Method == http.MethodGet
	if cacheable {
		if data, found := w.config.Cache.Get(ctx, w.cacheKey(req)); found {
			w.observeCache(endpoint, true)
			return cachedResponse(req, data), nil
		}
		w.observeCache(endpoint, false)
	}

	weight := 1
	if w.config.Weigher != nil {
		weight = w.config.Weigher(req)
	}

	for attempt := 0; ; attempt++ {
		if w.config.RateLimiter != nil {
			if err := w.config.RateLimiter.WaitN(ctx, req.URL.Host, weight); err != nil {
				return nil, &ProviderError{
					Provider: w.config.Provider,
					Type:     ErrorTypeRateLimit,
					Err:      fmt.Errorf("rate limit wait failed: %w", err),
				}
			}
		}

		resp, err := w.execute(req)
		if err != nil {
			return nil, err
		}

		if !isRateLimited(resp.StatusCode) {
			if cacheable && resp.StatusCode == http.StatusOK {
				w.store(req, resp)
			}
			return resp, nil
		}

		if w.config.Observer != nil {
			w.config.Observer.ObserveRetry(endpoint, resp.StatusCode)
		}
		if attempt >= w.config.MaxRetries {
			return nil, &ProviderError{
				Provider:   w.config.Provider,
				Type:       ErrorTypeRateLimit,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("rate limited (%d) after %d attempts", resp.StatusCode, attempt+1),
			}
		}

		delay := w.retryDelay(resp.Header.Get("Retry-After"), attempt)
		log.Warn().
			Str("provider", w.config.Provider).
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("rate limited, backing off")

		if w.config.RateLimiter != nil {
			w.config.RateLimiter.Penalize(req.URL.Host, delay)
		}
		if err := w.sleep(ctx, delay); err != nil {
			return nil, &ProviderError{Provider: w.config.Provider, Type: ErrorTypeRateLimit, Err: err}
		}
	}
}

// execute performs one attempt through the breaker. The body is read inside the call so the
// breaker's request timeout also bounds the download.
func (w *Wrapper) execute(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	start := time.Now()

	call := func(ctx context.Context) error {
		r, err := w.transport.RoundTrip(req.Clone(ctx))
		if err != nil {
			return err
		}
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		resp = r

		if r.StatusCode >= http.StatusInternalServerError {
			return &ProviderError{Provider: w.config.Provider, Type: ErrorTypeHTTP, StatusCode: r.StatusCode,
				Err: fmt.Errorf("HTTP %d", r.StatusCode)}
		}
		return nil
	}

	var err error
	if w.config.CircuitBreaker != nil {
		err = w.config.CircuitBreaker.Call(req.Context(), call)
	} else {
		err = call(req.Context())
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
		w.observeWeight(req.URL.Host, resp.Header)
	}
	if w.config.Observer != nil {
		w.config.Observer.ObserveRequest(req.URL.Path, status, time.Since(start))
	}

	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, circuit.ErrCircuitOpen):
		return nil, &ProviderError{Provider: w.config.Provider, Type: ErrorTypeCircuit, Err: err}
	case resp != nil:
		// 5xx: counted by the breaker, still handed back for the caller to decode
		return resp, nil
	default:
		return nil, &ProviderError{Provider: w.config.Provider, Type: ErrorTypeTransport, Err: err}
	}
}

// retryDelay honors Retry-After seconds, else min(500ms·2^attempt, 8s) plus jitter
func (w *Wrapper) retryDelay(retryAfter string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	backoff := maxBackoff
	if attempt < 5 {
		backoff = baseBackoff << uint(attempt)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return backoff + w.jitter()
}

func (w *Wrapper) cacheKey(req *http.Request) string {
	return fmt.Sprintf("%s:%s:%s", w.config.Provider, req.Method, req.URL.String())
}

func (w *Wrapper) store(req *http.Request, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	w.config.Cache.Set(req.Context(), w.cacheKey(req), body, w.config.CacheTTL)
}

func (w *Wrapper) observeCache(endpoint string, hit bool) {
	if w.config.Observer != nil {
		w.config.Observer.ObserveCache(endpoint, hit)
	}
}

func (w *Wrapper) observeWeight(host string, h http.Header) {
	raw := h.Get(UsedWeightHeader)
	if raw == "" {
		return
	}
	used, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	if w.config.Observer != nil {
		w.config.Observer.ObserveWeight(host, used)
	}
	log.Debug().Str("provider", w.config.Provider).Str("host", host).Int("used_weight", used).Msg("request weight")
}

func cachedResponse(req *http.Request, data []byte) *http.Response {
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"X-Cache": []string{"HIT"}},
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
		Request:       req,
	}
}

func isRateLimited(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusTeapot
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProviderError is a failure talking to an upstream API
type ProviderError struct {
	Provider   string `json:"provider"`
	Type       string `json:"type"` // "rate_limit", "circuit", "transport", "http_error", "decode"
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s %s error (HTTP %d): %v", e.Provider, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s error: %v", e.Provider, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns true if the error is due to rate limiting
func (e *ProviderError) IsRateLimited() bool {
	return e.Type == ErrorTypeRateLimit
}

// IsCircuitOpen returns true if the breaker rejected the call
func (e *ProviderError) IsCircuitOpen() bool {
	return e.Type == ErrorTypeCircuit
}

// UserFriendlyReason explains the error for CLI output
func (e *ProviderError) UserFriendlyReason() string {
	switch e.Type {
	case ErrorTypeRateLimit:
		return fmt.Sprintf("Rate limited by %s - too many requests", e.Provider)
	case ErrorTypeCircuit:
		return fmt.Sprintf("Service %s temporarily unavailable (circuit breaker open)", e.Provider)
	case ErrorTypeHTTP:
		return fmt.Sprintf("HTTP error from %s (status %d)", e.Provider, e.StatusCode)
	case ErrorTypeTransport:
		return fmt.Sprintf("Network error connecting to %s", e.Provider)
	case ErrorTypeDecode:
		return fmt.Sprintf("Unexpected response from %s", e.Provider)
	default:
		return fmt.Sprintf("Error from provider %s", e.Provider)
	}
}

// IsBreakerFailure reports whether err should count against a circuit breaker:
// transport failures and 5xx do, client-side 4xx do not.
func IsBreakerFailure(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Type != ErrorTypeHTTP || pe.StatusCode >= http.StatusInternalServerError
	}
	return true
}
