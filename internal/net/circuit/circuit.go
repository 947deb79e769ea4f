package circuit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State mirrors the gobreaker states
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Config controls when an API host is considered down
type Config struct {
	Name             string        `yaml:"name"`
	FailureThreshold uint32        `yaml:"failure_threshold"` // consecutive failures to open
	SuccessThreshold uint32        `yaml:"success_threshold"` // consecutive half-open successes to close
	Timeout          time.Duration `yaml:"timeout"`           // open -> half-open
	Interval         time.Duration `yaml:"interval"`          // closed-state count reset; 0 never resets
	RequestTimeout   time.Duration `yaml:"request_timeout"`

	// IsFailure decides whether an error counts against the breaker. Nil counts every error.
	IsFailure func(error) bool `yaml:"-"`
}

// DefaultConfig trips after 5 consecutive failures and probes again after 30s
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		Interval:         60 * time.Second,
		RequestTimeout:   10 * time.Second,
	}
}

// Breaker guards calls to one API host
type Breaker struct {
	cb             *gobreaker.CircuitBreaker
	requestTimeout time.Duration
}

// NewBreaker creates a breaker from config
func NewBreaker(config Config) *Breaker {
	threshold := config.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}
	isFailure := config.IsFailure

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.SuccessThreshold,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if isFailure == nil {
				return false
			}
			return !isFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := log.Info()
			if to == gobreaker.StateOpen {
				event = log.Warn()
			}
			event.Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state change")
		},
	}

	return &Breaker{
		cb:             gobreaker.NewCircuitBreaker(settings),
		requestTimeout: config.RequestTimeout,
	}
}

// Call runs fn when the breaker allows it, bounded by the request timeout
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if b.requestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.requestTimeout)
			defer cancel()
		}
		return nil, fn(callCtx)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.cb.Name(), ErrCircuitOpen)
	}
	return err
}

// State returns the current breaker state
func (b *Breaker) State() State {
	return b.cb.State()
}

// Stats returns a point-in-time view of the breaker
func (b *Breaker) Stats() Stats {
	counts := b.cb.Counts()
	return Stats{
		Name:                b.cb.Name(),
		State:               b.cb.State().String(),
		Requests:            counts.Requests,
		TotalSuccesses:      counts.TotalSuccesses,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
}

// Stats describes one breaker
type Stats struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalSuccesses      uint32 `json:"total_successes"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// IsHealthy returns true unless the breaker is open
func (s Stats) IsHealthy() bool {
	return s.State != gobreaker.StateOpen.String()
}
