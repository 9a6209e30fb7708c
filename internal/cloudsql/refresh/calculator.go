// Package refresh implements the Refresher state machine: the async,
// self-scheduling loop that keeps one instance's InstanceData current
// without ever blocking a caller of GetData on network I/O.
package refresh

import "time"

// refreshBuffer is the minimum remaining certificate lifetime below which
// RefreshCalculator stops scheduling a delay and instead refreshes
// immediately (spec.md §4.2).
const refreshBuffer = time.Hour

// SecondsUntilNextRefresh computes how long to wait, from now, before
// starting the next refresh attempt for a certificate that expires at
// expiration. If the remaining lifetime is already under one hour it
// returns 0 (refresh immediately); otherwise it returns half the
// remaining lifetime, never negative.
func SecondsUntilNextRefresh(now, expiration time.Time) time.Duration {
	lifetime := expiration.Sub(now)
	if lifetime < refreshBuffer {
		return 0
	}
	delay := lifetime / 2
	if delay < 0 {
		return 0
	}
	return delay
}
