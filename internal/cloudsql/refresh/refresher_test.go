package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/ratelimit"
)

func goSpawn(f func()) { go f() }

func dataExpiringIn(d time.Duration) *adminapi.InstanceData {
	return &adminapi.InstanceData{Expiration: time.Now().Add(d)}
}

func TestNewPerformsImmediateFirstRefresh(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		calls.Add(1)
		return dataExpiringIn(4 * time.Hour), nil
	}

	r := New("proj:region:inst", op, ratelimit.New(time.Millisecond), goSpawn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := r.GetData(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetDataTimesOutWithoutRecordedFailure(t *testing.T) {
	wantErr := errors.New("admin api unreachable")
	block := make(chan struct{})

	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		<-block
		return nil, wantErr
	}

	r := New("proj:region:inst", op, ratelimit.New(time.Millisecond), goSpawn)

	ctx := context.Background()
	_, err := r.GetData(ctx, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, adminapi.ErrConnectionFailedTimeout)

	close(block)
}

func TestForceRefreshIsNoOpWhileRunning(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})

	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		calls.Add(1)
		<-block
		return dataExpiringIn(4 * time.Hour), nil
	}

	r := New("proj:region:inst", op, ratelimit.New(time.Millisecond), goSpawn)

	// The constructor's own attempt is still running (blocked on <-block).
	r.ForceRefresh()
	r.ForceRefresh()

	close(block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.GetData(ctx, time.Second)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestForceRefreshReplacesScheduledAttempt(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		calls.Add(1)
		// Long lifetime so the real scheduled next attempt would not fire
		// for hours; any second call must come from an explicit
		// ForceRefresh, not the timer.
		return dataExpiringIn(6 * time.Hour), nil
	}

	r := New("proj:region:inst", op, ratelimit.New(time.Millisecond), goSpawn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.GetData(ctx, time.Second)
	require.NoError(t, err)

	// The first attempt has resolved, so refreshRunning is now false and
	// r.next is the scheduled-but-dormant timer cell; ForceRefresh must
	// cancel that timer and start a fresh attempt instead.
	r.ForceRefresh()

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestRefresherRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		n := calls.Add(1)
		if n == 1 {
			return nil, errors.New("transient failure")
		}
		return dataExpiringIn(4 * time.Hour), nil
	}

	r := New("proj:region:inst", op, ratelimit.New(time.Millisecond), goSpawn)

	require.Eventually(t, func() bool {
		_, _, ok := r.Current()
		return ok
	}, time.Second, 5*time.Millisecond)

	data, err, ok := r.Current()
	require.True(t, ok)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestGetDataNeverReturnsBareFetchErrorBeforeFirstSuccess(t *testing.T) {
	wantErr := errors.New("admin api unreachable")
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		return nil, wantErr
	}

	r := New("proj:region:inst", op, ratelimit.New(time.Millisecond), goSpawn)

	// Give the refresher a few failed attempts before GetData samples
	// current, so current would be the cell resolved by one of those
	// failures if it were ever wrongly aliased to it.
	require.Eventually(t, func() bool {
		r.mu.Lock()
		failure := r.lastFailure
		r.mu.Unlock()
		return failure != nil
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	_, err := r.GetData(ctx, 20*time.Millisecond)
	require.Error(t, err)

	var connFailed *adminapi.ConnectionFailedError
	require.ErrorAs(t, err, &connFailed)
	assert.ErrorIs(t, connFailed.Cause, wantErr)
}

func TestCloseStopsScheduledRetries(t *testing.T) {
	var calls atomic.Int32
	op := func(ctx context.Context) (*adminapi.InstanceData, error) {
		calls.Add(1)
		return dataExpiringIn(4 * time.Hour), nil
	}

	r := New("proj:region:inst", op, ratelimit.New(time.Millisecond), goSpawn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.GetData(ctx, time.Second)
	require.NoError(t, err)

	r.Close()
	calls.Store(0)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}
