package refresh

import (
	"context"
	"sync"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
)

// cell is this package's stand-in for the Java client's ListenableFuture:
// Go has no first-class future type, so currentInstanceData and
// nextInstanceData are each represented by a cell that is created empty
// and resolved exactly once, from whichever goroutine finishes the work
// it stands for.
//
// A cell may also carry a stopTimer hook. It is set only on the cell
// returned for a scheduled-but-not-yet-started refresh attempt, and lets
// Cancel remove that pending timer. Cancelling a cell never stops or
// interrupts a refresh attempt that has already started; the spec
// requires that an in-flight admin API call always run to completion.
type cell struct {
	mu        sync.Mutex
	done      chan struct{}
	value     *adminapi.InstanceData
	err       error
	resolved  bool
	stopTimer func() bool
}

func newCell() *cell {
	return &cell{done: make(chan struct{})}
}

// resolvedCell returns a cell that is already resolved with data, used to
// replace currentInstanceData on every successful refresh after the first
// (the first success resolves the pending bootstrap cell instead).
func resolvedCell(data *adminapi.InstanceData) *cell {
	c := newCell()
	c.resolve(data, nil)
	return c
}

func (c *cell) resolve(data *adminapi.InstanceData, err error) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	c.value = data
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// Get blocks until the cell resolves or ctx is done, whichever comes
// first. A ctx timeout does not cancel the work the cell stands for.
func (c *cell) Get(ctx context.Context) (*adminapi.InstanceData, error) {
	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// setStopTimer records the hook Cancel should invoke. It is a no-op once
// the cell already resolved.
func (c *cell) setStopTimer(stop func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return
	}
	c.stopTimer = stop
}

// Cancel removes a pending, not-yet-fired scheduled refresh without
// interrupting one already running. It is always safe to call on a cell
// with no stopTimer set.
func (c *cell) Cancel() {
	c.mu.Lock()
	stop := c.stopTimer
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}
