// Package loop implements the readiness-driven event loop that sits at
// the center of the RPC server: the callback registry (pending/working
// lists), the bounded worker pool that drains them, and the epoll-backed
// readiness primitive that feeds them.
package loop

import "sync"

// Handler is the uniform callback contract driven by the event loop. It
// returns 0 to keep the record's fd registered (re-parked in pending), or
// a negative value to drop it — the handler itself is responsible for
// closing the fd and releasing any per-connection resources first.
type Handler func(fd int, userData any) int

// Record is a callback record: {fd, handler, user-data}. A Record lives
// in exactly one of the registry's pending or working lists, never both.
// A nil Handler marks a sentinel record — it occupies a poll slot (used
// for the self-pipe) but is never dispatched.
type Record struct {
	FD       int
	Handler  Handler
	UserData any
}

// Registry holds the pending and working lists shared between the event
// loop and the worker pool. All mutation happens under its mutex.
type Registry struct {
	mu      sync.Mutex
	pending []*Record
	working []*Record
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AppendPending appends rec to the tail of the pending list.
func (r *Registry) AppendPending(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, rec)
}

// RemoveByFD removes and returns the first pending record with the given
// fd, or nil if none is found.
func (r *Registry) RemoveByFD(fd int) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.pending {
		if rec.FD == fd {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return rec
		}
	}
	return nil
}

// PendingLen returns the current length of the pending list.
func (r *Registry) PendingLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// WorkingLen returns the current length of the working list.
func (r *Registry) WorkingLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.working)
}

// SnapshotPending copies the current pending list in order, for use as a
// poll batch. The returned slice is safe to read without the lock.
func (r *Registry) SnapshotPending() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.pending))
	copy(out, r.pending)
	return out
}

// MoveToWorking moves rec from pending to working. It is a no-op if rec
// is not currently present in pending (already moved by a concurrent
// caller under the same lock discipline, which should not happen but is
// defended against defensively).
func (r *Registry) MoveToWorking(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.pending {
		if p == rec {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			r.working = append(r.working, rec)
			return
		}
	}
}

// PopWorking removes and returns the first record from working, or nil
// if working is empty.
func (r *Registry) PopWorking() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.working) == 0 {
		return nil
	}
	rec := r.working[0]
	r.working = r.working[1:]
	return rec
}

// ReturnToPending re-appends rec to pending, used by a worker after it
// finishes a handler invocation that returned 0 (keep).
func (r *Registry) ReturnToPending(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, rec)
}

// Lock/Unlock expose the registry's mutex to the event loop, which needs
// to walk pending and working in lockstep with a previously taken poll
// batch without an intervening mutation.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

// PendingLenLocked returns len(pending) assuming the caller already holds
// the lock via Lock().
func (r *Registry) PendingLenLocked() int {
	return len(r.pending)
}

// PendingAtLocked returns the pending record at index i, assuming the
// caller already holds the lock.
func (r *Registry) PendingAtLocked(i int) *Record {
	if i < 0 || i >= len(r.pending) {
		return nil
	}
	return r.pending[i]
}

// MoveToWorkingLocked is MoveToWorking for a caller that already holds
// the lock.
func (r *Registry) MoveToWorkingLocked(rec *Record) {
	for i, p := range r.pending {
		if p == rec {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			r.working = append(r.working, rec)
			return
		}
	}
}

// CopyPendingToWorkingLocked implements the no-worker-pool path: every
// pending record is moved into working in one step, for inline dispatch
// on the loop thread.
func (r *Registry) CopyPendingToWorkingLocked() []*Record {
	out := r.pending
	r.pending = nil
	r.working = append(r.working, out...)
	return out
}

// ClearWorkingLocked empties working after the inline-dispatch path has
// finished invoking every handler in it.
func (r *Registry) ClearWorkingLocked() {
	r.working = r.working[:0]
}

// AppendPendingLocked is AppendPending for a caller already holding the
// lock.
func (r *Registry) AppendPendingLocked(rec *Record) {
	r.pending = append(r.pending, rec)
}

// RemoveByFDLocked is RemoveByFD for a caller already holding the lock.
func (r *Registry) RemoveByFDLocked(fd int) *Record {
	for i, rec := range r.pending {
		if rec.FD == fd {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return rec
		}
	}
	return nil
}
