// Package ratelimit provides the asynchronous rate limiter gating every
// refresh attempt. Unlike the teacher's hand-rolled token bucket
// (internal/ratelimit/token_bucket.go in the example pack), this limiter
// is a thin async wrapper around the ecosystem's own golang.org/x/time/rate
// token bucket.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinDelay is the minimum interval enforced between consecutive
// granted permits for a single instance (MIN_REFRESH_DELAY_MS in spec.md §6).
const DefaultMinDelay = 30 * time.Second

// Limiter gates refresh attempts for a single instance. A caller suspends
// on AcquireAsync until a permit is available; bursting beyond a single
// permit is never allowed (the underlying bucket has burst size 1).
type Limiter interface {
	// AcquireAsync returns a channel that is closed once a permit has been
	// granted. The wait is implemented with a scheduled timer, never by
	// blocking a goroutine on a lock, so it is safe to call from a worker
	// pool task.
	//
	// Cancelling ctx stops the caller's wait but does not release the
	// reservation: the permit is still consumed at its scheduled time,
	// preserving the limiter's backpressure against a failing admin API.
	AcquireAsync(ctx context.Context) <-chan struct{}
}

// asyncLimiter adapts rate.Limiter's Reservation API into the
// non-blocking, scheduled-completion shape the Refresher needs.
type asyncLimiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter that grants at most one permit per minDelay,
// FIFO, across all callers for one instance.
func New(minDelay time.Duration) Limiter {
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	return &asyncLimiter{
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
	}
}

// AcquireAsync implements Limiter.
func (l *asyncLimiter) AcquireAsync(ctx context.Context) <-chan struct{} {
	ready := make(chan struct{})

	reservation := l.limiter.Reserve()
	delay := reservation.Delay()

	if delay <= 0 {
		close(ready)
		return ready
	}

	timer := time.AfterFunc(delay, func() {
		close(ready)
	})

	// If the context is cancelled first, stop waiting for the timer but do
	// not call reservation.Cancel(): the permit stays consumed, matching
	// the "cancellation releases no reservation" contract.
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-ready:
			}
		}()
	}

	return ready
}
