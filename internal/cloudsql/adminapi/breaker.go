package adminapi

import (
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// newBreaker builds the fail-fast guard placed in front of admin API
// fetches. It plays the same role as the teacher's hand-rolled
// circuitbreaker.CircuitBreaker, but here is backed directly by
// sony/gobreaker instead of a reimplementation: this package only needs
// fail-fast protection around one outbound call, not the broader registry
// of named breakers the gateway manages.
//
// The breaker only ever short-circuits individual fetch attempts; it never
// participates in the Refresher's retry/backoff decisions, which remain
// governed solely by the rate limiter.
func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker[*InstanceData] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("admin api circuit breaker state change",
				zap.String("instance", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return gobreaker.NewCircuitBreaker[*InstanceData](settings)
}
