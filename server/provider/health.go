package provider

import "time"

// HealthStatus represents the current health state of the provider as seen
// from real traffic.
type HealthStatus struct {
	Healthy          bool          `json:"healthy"`
	LastCheck        time.Time     `json:"last_check"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	Latency          time.Duration `json:"latency"`
	ErrorCount       int64         `json:"error_count"`
	RequestCount     int64         `json:"request_count"`
	Circuit          string        `json:"circuit"`
}

// Health returns a snapshot of the provider status. Healthy is false while
// the circuit breaker is open.
func (g *Guard) Health() HealthStatus {
	g.mu.RLock()
	status := g.health
	g.mu.RUnlock()

	status.Circuit = "closed"
	if g.breaker != nil {
		status.Circuit = g.breaker.State().String()
		if g.breaker.IsOpen() {
			status.Healthy = false
		}
	}
	return status
}

// updateHealthStatus folds the outcome of one call into the status.
// Callers that merely went away are not counted.
func (g *Guard) updateHealthStatus(latency time.Duration, failed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.health.LastCheck = time.Now()
	g.health.Latency = latency
	g.health.RequestCount++
	if failed {
		g.health.Healthy = false
		g.health.ConsecutiveFails++
		g.health.ErrorCount++
		return
	}
	g.health.Healthy = true
	g.health.ConsecutiveFails = 0
}
