package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/server/metrics"
	"go.uber.org/zap/zaptest"
)

var errUpstream = errors.New("upstream failed")

func testConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 3,
	}
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	m := metrics.NewMetrics()
	cb := NewCircuitBreaker("completion", testConfig(), zaptest.NewLogger(t), m)

	calls := 0
	failing := func() error {
		calls++
		return errUpstream
	}

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errUpstream)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.True(t, cb.IsOpen())

	// Open breaker refuses without calling through.
	assert.ErrorIs(t, cb.Execute(failing), ErrCircuitOpen)
	assert.Equal(t, 3, calls)

	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(m.CircuitState.WithLabelValues("completion")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitTrips.WithLabelValues("completion")))
}

func TestCircuitBreakerRecovers(t *testing.T) {
	m := metrics.NewMetrics()
	cb := NewCircuitBreaker("completion", testConfig(), zaptest.NewLogger(t), m)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errUpstream })
	}
	require.True(t, cb.IsOpen())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, float64(gobreaker.StateClosed), testutil.ToFloat64(m.CircuitState.WithLabelValues("completion")))
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("completion", testConfig(), zaptest.NewLogger(t), nil)

	_ = cb.Execute(func() error { return errUpstream })
	_ = cb.Execute(func() error { return errUpstream })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errUpstream })

	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("completion", testConfig(), zaptest.NewLogger(t), nil)

	for i := 0; i < 5; i++ {
		err := cb.Execute(func() error { return context.Canceled })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreakerCountsDeadlines(t *testing.T) {
	cb := NewCircuitBreaker("completion", testConfig(), zaptest.NewLogger(t), nil)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return context.DeadlineExceeded })
	}
	assert.True(t, cb.IsOpen())
	assert.Equal(t, "completion", cb.Name())
}
