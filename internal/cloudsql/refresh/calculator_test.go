package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSecondsUntilNextRefreshHalvesRemainingLifetime(t *testing.T) {
	now := time.Unix(0, 0)
	expiration := now.Add(4 * time.Hour)

	got := SecondsUntilNextRefresh(now, expiration)
	assert.Equal(t, 2*time.Hour, got)
}

func TestSecondsUntilNextRefreshBelowBufferRefreshesImmediately(t *testing.T) {
	now := time.Unix(0, 0)
	expiration := now.Add(30 * time.Minute)

	got := SecondsUntilNextRefresh(now, expiration)
	assert.Equal(t, time.Duration(0), got)
}

func TestSecondsUntilNextRefreshNeverNegative(t *testing.T) {
	now := time.Unix(0, 0)
	expiration := now.Add(-5 * time.Minute) // already expired

	got := SecondsUntilNextRefresh(now, expiration)
	assert.Equal(t, time.Duration(0), got)
}

func TestSecondsUntilNextRefreshAtExactBuffer(t *testing.T) {
	now := time.Unix(0, 0)
	expiration := now.Add(time.Hour)

	got := SecondsUntilNextRefresh(now, expiration)
	assert.Equal(t, 30*time.Minute, got)
}
