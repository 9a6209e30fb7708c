package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireAsyncFirstCallIsImmediate(t *testing.T) {
	l := New(30 * time.Millisecond)

	start := time.Now()
	<-l.AcquireAsync(context.Background())
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestAcquireAsyncEnforcesMinDelay(t *testing.T) {
	minDelay := 40 * time.Millisecond
	l := New(minDelay)

	<-l.AcquireAsync(context.Background())

	start := time.Now()
	<-l.AcquireAsync(context.Background())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, minDelay-5*time.Millisecond)
}

func TestAcquireAsyncDoesNotBlockCaller(t *testing.T) {
	l := New(50 * time.Millisecond)
	<-l.AcquireAsync(context.Background())

	ch := l.AcquireAsync(context.Background())
	select {
	case <-ch:
		t.Fatal("second acquire should not be ready immediately")
	case <-time.After(5 * time.Millisecond):
	}
}

func TestAcquireAsyncCancellationDoesNotFreeReservation(t *testing.T) {
	minDelay := 40 * time.Millisecond
	l := New(minDelay)
	<-l.AcquireAsync(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	ch := l.AcquireAsync(ctx)
	cancel()

	// A new caller still has to wait out the reservation consumed by the
	// cancelled acquire; the slot was not released.
	start := time.Now()
	<-l.AcquireAsync(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), minDelay/2)

	select {
	case <-ch:
	default:
	}
}
