package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/observability"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/ratelimit"
)

// DefaultFetchTimeout bounds a single admin API round trip, independent of
// whatever deadline a GetData caller applies to its own wait.
const DefaultFetchTimeout = 60 * time.Second

// Operation performs one admin API fetch for the instance this Refresher
// owns. It is supplied by adminapi.Repository.Fetch, bound to one
// FetchRequest, so this package never needs to know about HTTP, OAuth, or
// the wire format.
type Operation func(ctx context.Context) (*adminapi.InstanceData, error)

// Refresher is the per-instance state machine of spec.md §4.4. It keeps
// exactly one fetch in flight at a time, schedules the next attempt for
// roughly the midpoint of the current certificate's remaining lifetime
// (RefreshCalculator), and serves the most recently completed result to
// GetData callers without ever blocking them on network I/O.
//
// All mutable state is guarded by mu; currentInstanceData and
// nextInstanceData are themselves cells, so readers can wait on them
// without holding mu.
type Refresher struct {
	name    string
	op      Operation
	limiter ratelimit.Limiter
	spawn   func(func())
	logger  *zap.Logger
	timeout time.Duration

	mu             sync.Mutex
	current        *cell
	next           *cell
	refreshRunning bool
	lastFailure    error
	closed         bool

	// bootstrapTarget is current itself, for as long as current has never
	// been backed by a successful fetch. Every attempt -- the first one
	// and every retry after it -- forwards its eventual success into this
	// same cell instead of resolving it with an error, so GetData callers
	// keep waiting (and time out, not fail immediately) through however
	// many failures precede the first success (spec.md §4.4, P4/P5). It is
	// cleared the moment the first success arrives; failures after that
	// point leave current (the last known good value) untouched.
	bootstrapTarget *cell
}

// Option configures a Refresher at construction time.
type Option func(*Refresher)

// WithLogger attaches structured logging to refresh attempts.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Refresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFetchTimeout bounds each individual admin API fetch attempt.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Refresher for one instance and immediately starts its
// first refresh attempt, exactly as the Java client's constructor does:
// currentInstanceData stays pending, chained through however many
// retries it takes, until the first successful fetch resolves it (I2 in
// spec.md).
//
// limiter gates every attempt, including the first. spawn dispatches the
// goroutine that performs the blocking admin API call; pass a bounded
// worker pool's Submit method, or simply `func(f func()) { go f() }` if no
// pool is in use.
func New(name string, op Operation, limiter ratelimit.Limiter, spawn func(func()), opts ...Option) *Refresher {
	r := &Refresher{
		name:    name,
		op:      op,
		limiter: limiter,
		spawn:   spawn,
		logger:  zap.NewNop(),
		timeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.mu.Lock()
	r.current = newCell()
	r.bootstrapTarget = r.current
	r.next = r.startRefreshAttemptLocked()
	r.mu.Unlock()

	return r
}

// GetData waits up to timeout for the currently published InstanceData. If
// the wait expires and a prior refresh attempt is known to have failed,
// the returned error wraps that failure instead of a bare deadline error
// (spec.md §7).
func (r *Refresher) GetData(ctx context.Context, timeout time.Duration) (*adminapi.InstanceData, error) {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := cur.Get(waitCtx)
	if err == nil {
		return data, nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		r.mu.Lock()
		lastFailure := r.lastFailure
		r.mu.Unlock()
		if lastFailure != nil {
			return nil, &adminapi.ConnectionFailedError{Conn: r.name, Cause: lastFailure}
		}
		return nil, adminapi.ErrConnectionFailedTimeout
	}

	// The published cell resolved with a fetch error of its own (this only
	// happens if current itself was replaced by a failed attempt, which
	// handleRefreshResult never does -- current only ever moves forward on
	// success). Surface it unchanged regardless.
	return nil, err
}

// ForceRefresh requests an immediate refresh, replacing whatever attempt
// is currently scheduled (but not yet started) for this instance. It is a
// no-op while a refresh is already running, matching the Java client's
// dedup of concurrent force-refresh requests (spec.md §4.4, I4).
func (r *Refresher) ForceRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceRefreshLocked()
}

func (r *Refresher) forceRefreshLocked() {
	if r.refreshRunning {
		return
	}
	if r.next != nil {
		r.next.Cancel()
	}
	r.next = r.startRefreshAttemptLocked()
}

// Close releases this Refresher's held resources. Pending network calls
// already dispatched via spawn still run to completion; Close only stops
// a timer waiting to start the next one.
func (r *Refresher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.next != nil {
		r.next.Cancel()
	}
}

// Current reports the state of the cell currently served to GetData
// callers, for tests and diagnostics: its value and error, and whether it
// has resolved yet. It never blocks.
func (r *Refresher) Current() (*adminapi.InstanceData, error, bool) {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	select {
	case <-cur.done:
		return cur.value, cur.err, true
	default:
		return nil, nil, false
	}
}

// startRefreshAttemptLocked dispatches one admin API fetch, gated by the
// rate limiter, and returns a cell that resolves when it finishes. Callers
// must hold mu.
func (r *Refresher) startRefreshAttemptLocked() *cell {
	r.refreshRunning = true
	attempt := newCell()

	r.spawn(func() {
		ready := r.limiter.AcquireAsync(context.Background())
		<-ready

		spanCtx, span := observability.StartClientSpan(context.Background(), "cloudsqlconn.refresh",
			observability.InstanceAttribute(r.name))
		ctx, cancel := context.WithTimeout(spanCtx, r.timeout)
		defer cancel()

		start := time.Now()
		data, err := r.op(ctx)
		observability.EndSpan(span, err)
		observability.ObserveRefresh(r.name, time.Since(start), err)

		r.handleRefreshResult(attempt, data, err)
	})

	return attempt
}

// handleRefreshResult runs once a dispatched fetch completes. On success
// it publishes current (resolving whatever cell the pending bootstrap
// wait is parked on, the very first time) and schedules the next attempt
// for the midpoint of the new certificate's lifetime. On failure it
// records lastFailure and immediately starts a retry, still gated by the
// rate limiter so a persistently failing instance does not exceed the
// configured refresh rate -- but it never resolves current with that
// failure: until a fetch has succeeded at least once, current stays
// pending rather than surfacing a bare fetch error to every GetData
// caller (spec.md §4.4, P4/P5).
func (r *Refresher) handleRefreshResult(attempt *cell, data *adminapi.InstanceData, err error) {
	if err != nil {
		r.logger.Warn("refresh attempt failed", zap.String("instance", r.name), zap.Error(err))

		r.mu.Lock()
		r.lastFailure = err
		var retry *cell
		if !r.closed {
			retry = r.startRefreshAttemptLocked()
			r.next = retry
		} else {
			r.refreshRunning = false
		}
		r.mu.Unlock()

		attempt.resolve(nil, err)
		return
	}

	delay := SecondsUntilNextRefresh(time.Now(), data.Expiration)
	r.logger.Debug("refresh attempt succeeded",
		zap.String("instance", r.name),
		zap.Time("expiration", data.Expiration),
		zap.Duration("next_attempt_in", delay),
	)

	r.mu.Lock()
	r.refreshRunning = false
	r.lastFailure = nil
	if r.bootstrapTarget != nil {
		r.bootstrapTarget.resolve(data, nil)
		r.current = r.bootstrapTarget
		r.bootstrapTarget = nil
	} else {
		r.current = resolvedCell(data)
	}
	if !r.closed {
		r.next = r.scheduleNextLocked(delay)
	}
	r.mu.Unlock()

	attempt.resolve(data, nil)
}

// scheduleNextLocked arranges for startRefreshAttemptLocked to run after
// delay and returns a cell that forwards that attempt's eventual result.
// The returned cell's Cancel stops the timer if it has not yet fired;
// ForceRefresh uses this to preempt a scheduled-but-not-started attempt
// without disturbing one already running. Callers must hold mu.
func (r *Refresher) scheduleNextLocked(delay time.Duration) *cell {
	outer := newCell()

	timer := time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		inner := r.startRefreshAttemptLocked()
		r.next = inner
		r.mu.Unlock()

		data, err := inner.Get(context.Background())
		outer.resolve(data, err)
	})

	outer.setStopTimer(timer.Stop)
	return outer
}
