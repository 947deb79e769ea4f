package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failure")

func testConfig() Config {
	return Config{
		Name:             "api.binance.com",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          100 * time.Millisecond,
		RequestTimeout:   50 * time.Millisecond,
	}
}

func fail(ctx context.Context) error    { return errUpstream }
func succeed(ctx context.Context) error { return nil }

func TestBreaker_ClosedState(t *testing.T) {
	breaker := NewBreaker(testConfig())
	assert.Equal(t, StateClosed, breaker.State())

	require.NoError(t, breaker.Call(context.Background(), succeed))
	assert.Equal(t, StateClosed, breaker.State())
	assert.True(t, breaker.Stats().IsHealthy())
}

func TestBreaker_OpensOnConsecutiveFailures(t *testing.T) {
	breaker := NewBreaker(testConfig())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, breaker.Call(context.Background(), fail), errUpstream)
	}
	assert.Equal(t, StateOpen, breaker.State())

	err := breaker.Call(context.Background(), succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "api.binance.com")

	stats := breaker.Stats()
	assert.False(t, stats.IsHealthy())
	assert.Equal(t, "open", stats.State)
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	breaker := NewBreaker(testConfig())
	for i := 0; i < 3; i++ {
		_ = breaker.Call(context.Background(), fail)
	}
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Call(context.Background(), succeed))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	errClient := errors.New("bad request")
	cfg := testConfig()
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, errClient) }
	breaker := NewBreaker(cfg)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, breaker.Call(context.Background(), func(ctx context.Context) error {
			return errClient
		}), errClient)
	}
	assert.Equal(t, StateClosed, breaker.State(), "client errors do not trip the breaker")
}

func TestBreaker_RequestTimeout(t *testing.T) {
	breaker := NewBreaker(testConfig())

	err := breaker.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint32(1), breaker.Stats().ConsecutiveFailures)
}
