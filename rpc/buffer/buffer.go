// Package buffer implements the per-connection growable receive and send
// buffers the connection handler drives under partial-I/O conditions.
// Backing storage is borrowed from pkg/bufpool to cut allocations under
// sustained connection churn.
package buffer

import "github.com/marmos91/gorpcd/pkg/bufpool"

// Buffer is a growable byte vector with an append operation, direct
// access to its contents, and compaction support for the receive side.
// It is not safe for concurrent use — each connection's buffers are
// touched only by the worker currently owning that connection.
type Buffer struct {
	data []byte
}

// New returns an empty Buffer with no preallocated storage.
func New() *Buffer {
	return &Buffer{}
}

// Append copies b onto the end of the buffer, growing the backing store
// via the shared buffer pool as needed.
func (buf *Buffer) Append(b []byte) {
	if len(b) == 0 {
		return
	}

	need := len(buf.data) + len(b)
	if cap(buf.data) < need {
		grown := bufpool.Get(need)
		n := copy(grown, buf.data)
		buf.data = grown[:n]
	}
	buf.data = append(buf.data, b...)
}

// Bytes returns the buffer's current contents. The slice is only valid
// until the next mutating call.
func (buf *Buffer) Bytes() []byte {
	return buf.data
}

// Len returns the number of bytes currently held.
func (buf *Buffer) Len() int {
	return len(buf.data)
}

// Compact drops the first n bytes, sliding any remaining tail to the
// front in order. Used after a frame of n == 12+message_length bytes has
// been consumed from the receive buffer.
func (buf *Buffer) Compact(n int) {
	if n <= 0 {
		return
	}
	if n >= len(buf.data) {
		buf.data = buf.data[:0]
		return
	}
	remaining := copy(buf.data, buf.data[n:])
	buf.data = buf.data[:remaining]
}

// Reset empties the buffer without releasing its backing storage.
func (buf *Buffer) Reset() {
	buf.data = buf.data[:0]
}

// Release returns the buffer's backing storage to the shared pool. The
// Buffer must not be used afterward.
func (buf *Buffer) Release() {
	if cap(buf.data) > 0 {
		bufpool.Put(buf.data[:cap(buf.data)])
	}
	buf.data = nil
}
