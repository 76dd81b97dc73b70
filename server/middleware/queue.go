package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/eapache/queue/v2"
	"github.com/teilomillet/assure/config"
	"github.com/teilomillet/assure/errors"
	"github.com/teilomillet/assure/server/metrics"
	"go.uber.org/zap"
)

// QueueMiddleware bounds how many chat requests run at once.
// Core Design:
// 1. Admission:
//   - A request runs immediately when a processing slot is free and nobody
//     is waiting ahead of it
//   - Otherwise it joins a FIFO queue if fewer than maxWaiting are waiting
//   - When the queue is full the request is rejected with 503 queue_full
//   - A waiter gives up after maxWait, or when its context deadline passes,
//     and is answered with 503 queue_full so the client never sees a
//     dropped connection
//
// 2. Hand-off:
//   - A finishing request passes its slot directly to the oldest waiter, so
//     the number of processing requests never exceeds maxConcurrent
//   - Waiters whose client went away are marked abandoned and skipped
//
// 3. Thread Safety:
//   - One mutex protects the queue and both counters
//   - Each waiter owns a ready channel closed exactly once on hand-off
type QueueMiddleware struct {
	mu            sync.Mutex
	waiters       *queue.Queue[*waiter]
	waiting       int // live waiters; abandoned entries stay queued until popped
	processing    int
	maxConcurrent int
	maxWaiting    int
	maxWait       time.Duration // zero waits until the context ends
	idle          chan struct{} // closed and replaced whenever the queue drains

	metrics *metrics.Metrics
	logger  *zap.Logger
}

type waiter struct {
	ready     chan struct{}
	abandoned bool
	enqueued  time.Time
}

// NewQueueMiddleware creates the queue from cfg. m may be nil.
func NewQueueMiddleware(cfg config.QueueConfig, logger *zap.Logger, m *metrics.Metrics) *QueueMiddleware {
	qm := &QueueMiddleware{
		waiters: queue.New[*waiter](),
		metrics: m,
		logger:  logger,
		idle:    make(chan struct{}),
	}
	qm.setLimitsLocked(cfg.MaxConcurrent, cfg.MaxWaiting)
	qm.maxWait = cfg.MaxWait
	return qm
}

// SetLimits changes the limits at runtime. Raising maxConcurrent admits
// waiters immediately; lowering it lets in-flight requests finish.
func (qm *QueueMiddleware) SetLimits(maxConcurrent, maxWaiting int) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.setLimitsLocked(maxConcurrent, maxWaiting)
	for qm.processing < qm.maxConcurrent && qm.handOffLocked() {
		qm.processing++
	}
	qm.observeLocked()
}

// SetMaxWait changes how long later requests may wait for a slot.
func (qm *QueueMiddleware) SetMaxWait(d time.Duration) {
	qm.mu.Lock()
	qm.maxWait = d
	qm.mu.Unlock()
}

func (qm *QueueMiddleware) setLimitsLocked(maxConcurrent, maxWaiting int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxWaiting < 0 {
		maxWaiting = 0
	}
	qm.maxConcurrent = maxConcurrent
	qm.maxWaiting = maxWaiting
}

// Stats returns the number of processing and waiting requests.
func (qm *QueueMiddleware) Stats() (processing, waiting int) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.processing, qm.waiting
}

var (
	// ErrQueueFull is returned by acquire when no waiting room is left.
	ErrQueueFull = errors.New("queue full")

	// ErrQueueTimeout is returned by acquire when the wait outlived maxWait
	// or the request deadline.
	ErrQueueTimeout = errors.New("queue wait timed out")
)

// acquire blocks until the caller owns a processing slot.
func (qm *QueueMiddleware) acquire(ctx context.Context) error {
	qm.mu.Lock()
	if qm.processing < qm.maxConcurrent && qm.waiting == 0 {
		qm.processing++
		qm.mu.Unlock()
		return nil
	}
	if qm.waiting >= qm.maxWaiting {
		qm.mu.Unlock()
		return ErrQueueFull
	}
	w := &waiter{ready: make(chan struct{}), enqueued: time.Now()}
	qm.waiters.Add(w)
	qm.waiting++
	qm.observeLocked()
	maxWait := qm.maxWait
	qm.mu.Unlock()

	var expired <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		expired = timer.C
	}

	var cause error
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		cause = ctx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = ErrQueueTimeout
		}
	case <-expired:
		cause = ErrQueueTimeout
	}

	qm.mu.Lock()
	select {
	case <-w.ready:
		// The slot arrived together with the cancellation; pass it on.
		qm.mu.Unlock()
		qm.release()
	default:
		w.abandoned = true
		qm.waiting--
		qm.observeLocked()
		qm.mu.Unlock()
	}
	return cause
}

// release gives the caller's slot to the oldest live waiter or frees it.
func (qm *QueueMiddleware) release() {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	if qm.processing > qm.maxConcurrent || !qm.handOffLocked() {
		qm.processing--
	}
	if qm.processing == 0 && qm.waiting == 0 {
		close(qm.idle)
		qm.idle = make(chan struct{})
	}
	qm.observeLocked()
}

// handOffLocked wakes the oldest live waiter. The slot count is unchanged
// since the slot moves from the releaser to the waiter; SetLimits callers
// account for the new slot themselves.
func (qm *QueueMiddleware) handOffLocked() bool {
	for qm.waiters.Length() > 0 {
		w := qm.waiters.Remove()
		if w.abandoned {
			continue
		}
		qm.waiting--
		close(w.ready)
		if qm.metrics != nil {
			qm.metrics.QueueWaitDuration.Observe(time.Since(w.enqueued).Seconds())
		}
		return true
	}
	return false
}

func (qm *QueueMiddleware) observeLocked() {
	if qm.metrics == nil {
		return
	}
	qm.metrics.QueueWaiting.Set(float64(qm.waiting))
	qm.metrics.ActiveRequests.WithLabelValues("processing").Set(float64(qm.processing))
}

// Handler processes requests through the queue.
func (qm *QueueMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		start := time.Now()
		if err := qm.acquire(r.Context()); err != nil {
			var apiErr *errors.APIError
			switch err {
			case ErrQueueFull:
				qm.mu.Lock()
				maxWaiting := qm.maxWaiting
				qm.mu.Unlock()
				apiErr = errors.NewQueueFullError(requestID, maxWaiting)
			case ErrQueueTimeout:
				apiErr = errors.NewQueueTimeoutError(requestID, time.Since(start))
			default:
				qm.logger.Debug("client left while queued",
					zap.String("request_id", requestID),
					zap.Error(err),
				)
				return
			}
			if qm.metrics != nil {
				qm.metrics.QueueRejected.Inc()
			}
			errors.LogError(qm.logger, apiErr, requestID)
			errors.WriteError(w, apiErr)
			return
		}
		defer qm.release()

		next.ServeHTTP(w, r)
	})
}

// Shutdown waits until no request is processing or waiting, or ctx ends.
func (qm *QueueMiddleware) Shutdown(ctx context.Context) error {
	for {
		qm.mu.Lock()
		if qm.processing == 0 && qm.waiting == 0 {
			qm.mu.Unlock()
			return nil
		}
		idle := qm.idle
		qm.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
