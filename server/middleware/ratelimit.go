package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/errors"
	"github.com/teilomillet/assure/server/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// visitorIdleTTL is how long an idle client keeps its bucket.
const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	logger *zap.Logger
	m      *metrics.Metrics

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing cfg.RequestsPerMinute per client
// with bursts of cfg.Burst. m may be nil.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger, m *metrics.Metrics) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		logger:   logger,
		m:        m,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// limiterFor returns the bucket for ip, pruning idle buckets at most once
// per TTL.
func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > visitorIdleTTL {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(rl.visitors, key)
			}
		}
		rl.lastPrune = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Handler rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		limiter := rl.limiterFor(ip)

		now := rl.now()
		if !limiter.AllowN(now, 1) {
			retryAfter := rl.retryAfter(limiter, now)
			requestID := GetRequestID(r.Context())
			if rl.m != nil {
				rl.m.RateLimitHits.WithLabelValues(ip).Inc()
			}
			apiErr := errors.NewRateLimitError(requestID, retryAfter)
			errors.LogError(rl.logger, apiErr, requestID)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			errors.WriteError(w, apiErr)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter is the number of whole seconds until a token is available.
func (rl *RateLimiter) retryAfter(limiter *rate.Limiter, now time.Time) int {
	if rl.limit <= 0 || rl.limit == rate.Inf {
		return 1
	}
	missing := 1 - limiter.TokensAt(now)
	seconds := int(math.Ceil(missing / float64(rl.limit)))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// clientIP strips the port from r.RemoteAddr. chi's RealIP middleware runs
// earlier and may already have replaced it with a bare address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
