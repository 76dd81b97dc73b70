package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/server/metrics"
	"go.uber.org/zap"
)

// CircuitBreaker guards calls to the completion backend. It fails fast once
// FailureThreshold consecutive calls have failed and lets a probe through
// after Timeout.
type CircuitBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCircuitBreaker creates a breaker from cfg. m may be nil.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig, logger *zap.Logger, m *metrics.Metrics) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:    name,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: m,
	}
	// gobreaker falls back to 60s for a zero timeout
	if cb.timeout <= 0 {
		cb.timeout = 60 * time.Second
	}

	threshold := cfg.FailureThreshold
	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up says nothing about the backend's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: cb.onStateChange,
	})

	if m != nil {
		m.CircuitState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
		m.CircuitTrips.WithLabelValues(name).Add(0)
	}
	return cb
}

func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	if cb.metrics != nil {
		cb.metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		if to == gobreaker.StateOpen {
			cb.metrics.CircuitTrips.WithLabelValues(name).Inc()
		}
	}

	if to == gobreaker.StateOpen {
		cb.logger.Warn("circuit breaker tripped",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.Time("retry_after", time.Now().Add(cb.timeout)),
		)
		return
	}
	cb.logger.Info("circuit breaker state changed",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// Execute runs f if the breaker allows it. ErrCircuitOpen is returned without
// calling f while the breaker is open or the half-open probe budget is spent.
func (cb *CircuitBreaker) Execute(f func() error) error {
	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, f()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// Name returns the breaker name used in logs and metric labels.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

// Counts returns the counters of the current generation.
func (cb *CircuitBreaker) Counts() gobreaker.Counts {
	return cb.breaker.Counts()
}

// IsOpen reports whether calls are currently refused.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}
