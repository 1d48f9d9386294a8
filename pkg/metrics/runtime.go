package metrics

import "time"

// RuntimeMetrics provides observability for the RPC event loop, worker
// pool, connection lifecycle, and client round trips.
//
// Implementations can collect metrics about frame dispatch, throughput,
// and errors. This interface is optional - pass nil to disable metrics
// collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewRuntimeMetrics()
//	srv := server.New(svc)
//	srv.SetMetrics(m)
//
//	// Without metrics (zero overhead: never call SetMetrics)
//	srv := server.New(svc)
type RuntimeMetrics interface {
	// RecordFrame records a completed frame dispatch with its method index,
	// duration, and outcome.
	//
	// Parameters:
	//   - methodIndex: dispatched method index as a string (for label cardinality control)
	//   - duration: time taken to process the request
	//   - errKind: sentinel error kind if dispatch failed, empty if successful
	RecordFrame(methodIndex string, duration time.Duration, errKind string)

	// RecordBytesTransferred records bytes read or written on a connection.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: number of bytes transferred
	RecordBytesTransferred(direction string, bytes uint64)

	// SetConnectionCount updates the current active connection count.
	SetConnectionCount(count int)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// SetPendingListDepth updates the current depth of the pending (not
	// yet dispatched) connection list.
	SetPendingListDepth(depth int)

	// SetWorkingListDepth updates the current depth of the working
	// (currently dispatching) connection list.
	SetWorkingListDepth(depth int)

	// SetWorkerUtilization updates the fraction of the worker pool
	// currently busy, in the range [0, 1].
	SetWorkerUtilization(fraction float64)

	// RecordClientRoundTrip records how long a client's Invoke call
	// waited for a reply, and whether it timed out.
	//
	// Parameters:
	//   - methodIndex: invoked method index as a string
	//   - duration: time elapsed waiting for the reply
	//   - timedOut: true if the call gave up waiting
	RecordClientRoundTrip(methodIndex string, duration time.Duration, timedOut bool)
}
