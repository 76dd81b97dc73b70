package provider

import (
	"context"
	"errors"
	"time"
)

// Completion outcomes used as metric label values.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeCanceled    = "canceled"
)

// Outcome maps a Complete error to its metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

func (g *Guard) record(duration time.Duration, err error) {
	outcome := Outcome(err)
	if outcome != OutcomeCanceled && outcome != OutcomeUnavailable {
		g.updateHealthStatus(duration, err != nil)
	}

	if g.metrics == nil {
		return
	}
	name := g.completer.Name()
	g.metrics.CompletionsTotal.WithLabelValues(name, outcome).Inc()
	if outcome != OutcomeUnavailable {
		g.metrics.CompletionDuration.WithLabelValues(name).Observe(duration.Seconds())
	}
}
