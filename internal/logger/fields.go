package logger

import "log/slog"

// Standard field keys for structured logging across the RPC core.
// Use these keys consistently so log aggregation and querying stays uniform
// between the event loop, worker pool, connection handlers, and client.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Endpoint & connection
	KeyEndpoint     = "endpoint"
	KeyFD           = "fd"
	KeyConnectionID = "connection_id"
	KeyClientIP     = "client_ip"

	// Frame / dispatch
	KeyMethodIndex    = "method_index"
	KeyRequestID      = "request_id"
	KeyMessageLength  = "message_length"
	KeyBytesRead      = "bytes_read"
	KeyBytesWritten   = "bytes_written"

	// Worker pool / event loop
	KeyWorkerID     = "worker_id"
	KeyPendingLen   = "pending_len"
	KeyWorkingLen   = "working_len"
	KeyNumWorkers   = "num_workers"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// TraceID returns a slog.Attr for the request's trace id.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// Endpoint returns a slog.Attr for a bound endpoint's URL form.
func Endpoint(url string) slog.Attr { return slog.String(KeyEndpoint, url) }

// FD returns a slog.Attr for a file descriptor.
func FD(fd int) slog.Attr { return slog.Int(KeyFD, fd) }

// MethodIndex returns a slog.Attr for the dispatched method index.
func MethodIndex(i uint32) slog.Attr { return slog.Uint64(KeyMethodIndex, uint64(i)) }

// RequestID returns a slog.Attr for the frame's request id.
func RequestID(id uint32) slog.Attr { return slog.Uint64(KeyRequestID, uint64(id)) }

// DurationMs returns a slog.Attr for an operation's duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr wrapping an error's message. A nil error yields an
// empty attr so it can be passed unconditionally in defer/log call sites.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
