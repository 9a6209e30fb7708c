// Package observability provides this module's structured logging,
// metrics, and tracing, wrapping go.uber.org/zap, the prometheus client,
// and OpenTelemetry the way the teacher's internal/observability package
// wraps them for the gateway.
package observability

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger embeds *zap.Logger so callers get the full zap API, plus the
// context-carried correlation helpers this module adds on top.
type Logger struct {
	*zap.Logger
}

var (
	globalMu     sync.RWMutex
	globalLogger = Logger{zap.NewNop()}
)

// SetGlobal installs logger as the process-wide default returned by
// Global. A Registry built without an explicit logger falls back to it.
func SetGlobal(logger *zap.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = Logger{logger}
}

// Global returns the process-wide default logger.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

type correlationKey struct{}

// WithCorrelationID attaches a fresh correlation ID to ctx, which
// Logger.FromContext then adds to log lines. The registry, cache,
// refresher, and repository do not call it themselves.
func WithCorrelationID(ctx context.Context) context.Context {
	return context.WithValue(ctx, correlationKey{}, uuid.NewString())
}

// CorrelationID returns the correlation ID attached by WithCorrelationID,
// or "" if ctx carries none.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// FromContext returns logger annotated with ctx's correlation ID field,
// if any, following the teacher's Logger.WithContext pattern.
func (l Logger) FromContext(ctx context.Context) Logger {
	id := CorrelationID(ctx)
	if id == "" {
		return l
	}
	return Logger{l.Logger.With(zap.String("correlation_id", id))}
}
