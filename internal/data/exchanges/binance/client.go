package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/bookscope/internal/net/circuit"
	"github.com/sawpanic/bookscope/internal/net/client"
	"github.com/sawpanic/bookscope/internal/net/ratelimit"
)

const (
	DefaultSpotBaseURL      = "https://api.binance.com"
	DefaultFuturesBaseURL   = "https://fapi.binance.com"
	DefaultSpotStreamURL    = "wss://stream.binance.com:9443/ws"
	DefaultFuturesStreamURL = "wss://fstream.binance.com/ws"

	DefaultDepthLimit  = 100
	DefaultTradesLimit = 500

	provider = "binance"
)

// Config holds endpoints and transport policy for the public market data API
type Config struct {
	SpotBaseURL      string         `yaml:"spot_base_url"`
	FuturesBaseURL   string         `yaml:"futures_base_url"`
	SpotStreamURL    string         `yaml:"spot_stream_url"`
	FuturesStreamURL string         `yaml:"futures_stream_url"`
	UserAgent        string         `yaml:"user_agent"`
	MaxRetries       int            `yaml:"max_retries"`
	Timeout          time.Duration  `yaml:"timeout"`
	WeightPerMinute  int            `yaml:"weight_per_minute"`
	WeightBurst      int            `yaml:"weight_burst"`
	DepthLimit       int            `yaml:"depth_limit"`
	TradesLimit      int            `yaml:"trades_limit"`
	Breaker          circuit.Config `yaml:"breaker"`
}

// DefaultConfig targets the production spot and USDT-M futures hosts
func DefaultConfig() Config {
	return Config{
		SpotBaseURL:      DefaultSpotBaseURL,
		FuturesBaseURL:   DefaultFuturesBaseURL,
		SpotStreamURL:    DefaultSpotStreamURL,
		FuturesStreamURL: DefaultFuturesStreamURL,
		UserAgent:        client.DefaultUserAgent,
		MaxRetries:       client.DefaultMaxRetries,
		Timeout:          10 * time.Second,
		WeightPerMinute:  DefaultWeightPerMinute,
		WeightBurst:      DefaultWeightBurst,
		DepthLimit:       DefaultDepthLimit,
		TradesLimit:      DefaultTradesLimit,
		Breaker:          circuit.DefaultConfig(provider),
	}
}

// Validate checks the endpoints parse and limits are sane
func (c Config) Validate() error {
	for name, raw := range map[string]string{"spot_base_url": c.SpotBaseURL, "futures_base_url": c.FuturesBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("binance %s %q is not an absolute URL", name, raw)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("binance max_retries must be >= 0")
	}
	if c.WeightPerMinute <= 0 || c.WeightBurst <= 0 {
		return fmt.Errorf("binance weight_per_minute and weight_burst must be > 0")
	}
	return nil
}

// Option customizes a Client
type Option func(*options)

type options struct {
	cache     client.Cache
	cacheTTL  time.Duration
	observer  client.Observer
	transport http.RoundTripper
	now       func() time.Time
}

// WithCache caches successful GET bodies for ttl
func WithCache(c client.Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithObserver reports request, retry and cache telemetry
func WithObserver(obs client.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithTransport replaces the underlying round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// Client calls the Binance public REST API. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *circuit.Breaker
	now     func() time.Time
}

// NewClient builds a client with rate limiting, circuit breaking and retries wired in
func NewClient(cfg Config, opts ...Option) *Client {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	limiter := ratelimit.PerMinute(cfg.WeightPerMinute, cfg.WeightBurst)
	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = provider
	}
	breakerCfg.IsFailure = client.IsBreakerFailure
	breaker := circuit.NewBreaker(breakerCfg)

	wrapper := client.NewWrapper(client.WrapperConfig{
		Provider:       provider,
		UserAgent:      cfg.UserAgent,
		MaxRetries:     cfg.MaxRetries,
		RateLimiter:    limiter,
		CircuitBreaker: breaker,
		Cache:          o.cache,
		CacheTTL:       o.cacheTTL,
		Observer:       o.observer,
		Weigher:        requestWeight,
	}, o.transport)

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Transport: wrapper, Timeout: cfg.Timeout},
		limiter: limiter,
		breaker: breaker,
		now:     o.now,
	}
}

// Config returns the client's configuration
func (c *Client) Config() Config {
	return c.cfg
}

// Health summarizes the transport guards for monitoring
func (c *Client) Health() Health {
	return Health{
		Breaker: c.breaker.Stats(),
		Limits:  c.limiter.Stats(),
	}
}

// Health is the client's transport state
type Health struct {
	Breaker circuit.Stats                     `json:"breaker"`
	Limits  map[string]ratelimit.LimiterStats `json:"limits"`
}

// APIError is a non-2xx answer from the venue
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       int    `json:"code,omitempty"`
	Message    string `json:"msg,omitempty"`
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("API Error: %s", e.Message)
	case e.Code != 0:
		return fmt.Sprintf("API Error: code %d", e.Code)
	default:
		return fmt.Sprintf("HTTP Error: %d", e.StatusCode)
	}
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Code    *int   `json:"code"`
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}
	apiErr.Message = payload.Msg
	if apiErr.Message == "" {
		apiErr.Message = payload.Message
	}
	if payload.Code != nil {
		apiErr.Code = *payload.Code
	}
	return apiErr
}

// getJSON performs a GET against base+path and decodes the body into out.
// Unset params are omitted from the query string.
func (c *Client) getJSON(ctx context.Context, base, path string, params url.Values, out interface{}) error {
	endpoint := strings.TrimRight(base, "/") + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return unwrapURLError(err)
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 300 {
		return &client.ProviderError{Provider: provider, Type: client.ErrorTypeDecode, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("read %s: %w", path, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, body)
		log.Debug().Str("endpoint", path).Int("status", resp.StatusCode).Int("code", apiErr.Code).Msg("binance api error")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &client.ProviderError{Provider: provider, Type: client.ErrorTypeDecode, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return nil
}

// unwrapURLError strips *url.Error so callers see the ProviderError message directly
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var pe *client.ProviderError
		if errors.As(urlErr.Err, &pe) {
			return pe
		}
	}
	return err
}

func withLimit(params url.Values, limit int) url.Values {
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	return params
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
