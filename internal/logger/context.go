package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single dispatched
// frame: which connection it arrived on, which method it targets, and when
// processing started.
type LogContext struct {
	TraceID     string
	SpanID      string
	ClientIP    string
	MethodIndex uint32
	RequestID   uint32
	StartTime   time.Time
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:     lc.TraceID,
		SpanID:      lc.SpanID,
		ClientIP:    lc.ClientIP,
		MethodIndex: lc.MethodIndex,
		RequestID:   lc.RequestID,
		StartTime:   lc.StartTime,
	}
}

// WithFrame returns a copy with the dispatched method/request id set.
func (lc *LogContext) WithFrame(methodIndex, requestID uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.MethodIndex = methodIndex
		clone.RequestID = requestID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
