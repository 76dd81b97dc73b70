package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teilomillet/assure/server/circuitbreaker"
	"github.com/teilomillet/assure/server/metrics"
	"go.uber.org/zap"
)

// Guard coordinates a completion call: it bounds it with a timeout, routes
// it through the circuit breaker and records health and metrics.
type Guard struct {
	completer Completer
	breaker   *circuitbreaker.CircuitBreaker
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	health HealthStatus
}

// NewGuard wraps completer. breaker and m may be nil; a zero timeout leaves
// the call bounded by the caller's context only.
func NewGuard(completer Completer, breaker *circuitbreaker.CircuitBreaker, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Guard {
	return &Guard{
		completer: completer,
		breaker:   breaker,
		timeout:   timeout,
		logger:    logger,
		metrics:   m,
		health:    HealthStatus{Healthy: true},
	}
}

func (g *Guard) Name() string  { return g.completer.Name() }
func (g *Guard) Model() string { return g.completer.Model() }

// Timeout returns the per-call timeout.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// Complete calls the backend. Errors are classified:
//   - ErrUnavailable while the breaker is open
//   - ErrTimeout when the call outlived the timeout or the caller's deadline
//   - the caller's context error when the caller went away
//   - the wrapped backend error otherwise
func (g *Guard) Complete(ctx context.Context, messages []Message) (string, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	var reply string
	run := func() error {
		// Always check context before executing operation
		if err := callCtx.Err(); err != nil {
			return err
		}
		var err error
		reply, err = g.completer.Complete(callCtx, messages)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(run)
	} else {
		err = run()
	}
	duration := time.Since(start)

	err = g.classify(ctx, callCtx, err)
	g.record(duration, err)

	if err != nil {
		fields := []zap.Field{
			zap.String("provider", g.completer.Name()),
			zap.Error(err),
			zap.Duration("duration", duration),
		}
		if g.breaker != nil {
			fields = append(fields,
				zap.String("breaker_state", g.breaker.State().String()),
				zap.Uint32("consecutive_failures", g.breaker.Counts().ConsecutiveFailures))
		}
		g.logger.Debug("completion failed", fields...)
		return "", err
	}

	g.logger.Debug("completion succeeded",
		zap.String("provider", g.completer.Name()),
		zap.Duration("duration", duration),
		zap.Int("reply_length", len(reply)),
	)
	return reply, nil
}

func (g *Guard) classify(parent, callCtx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		// the request ran out of write budget before llm.timeout
		return fmt.Errorf("%w: request deadline: %w", ErrTimeout, err)
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %v: %w", ErrTimeout, g.timeout, err)
	default:
		return fmt.Errorf("%s completion: %w", g.completer.Name(), err)
	}
}
