package loop

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gorpcd/pkg/metrics"
)

// shutdownGrace bounds how long Close waits for in-flight worker handlers
// to notice shutdown before giving up on them.
const shutdownGrace = 5 * time.Second

// Loop drives the registry's pending list against a Poller, either
// handing ready records off to a WorkerPool or, when none is configured,
// dispatching them inline on the loop's own goroutine.
//
// The self-pipe is the loop's only concurrency-safe way to interrupt a
// blocked Wait() call: a worker that re-parks a record, or Stop(), writes
// one byte to it so the next Wait() returns immediately instead of
// sleeping on a pending list that has already changed underneath it.
type Loop struct {
	registry *Registry
	poller   Poller
	pool     *WorkerPool

	selfPipeRead  int
	selfPipeWrite int
	hasSelfPipe   bool

	metrics metrics.RuntimeMetrics

	running atomic.Bool
}

// New builds a Loop. numWorkers == 0 runs every handler inline on the
// loop goroutine with no self-pipe; numWorkers > 0 starts a WorkerPool
// and reserves pending[0] for the self-pipe's read end, per the
// event-loop algorithm's "index 0 is always the self-pipe" invariant. m
// may be nil to disable depth/utilization recording.
func New(registry *Registry, numWorkers int, m metrics.RuntimeMetrics) (*Loop, error) {
	poller, err := NewPoller()
	if err != nil {
		return nil, fmt.Errorf("creating poller: %w", err)
	}

	l := &Loop{registry: registry, poller: poller, metrics: m}
	l.running.Store(true)

	if numWorkers > 0 {
		readFD, writeFD, err := selfPipe()
		if err != nil {
			_ = poller.Close()
			return nil, fmt.Errorf("creating self-pipe: %w", err)
		}
		l.selfPipeRead = readFD
		l.selfPipeWrite = writeFD
		l.hasSelfPipe = true

		if err := poller.Add(readFD); err != nil {
			_ = poller.Close()
			return nil, fmt.Errorf("registering self-pipe: %w", err)
		}
		registry.AppendPending(&Record{FD: readFD, Handler: nil})

		l.pool = NewWorkerPool(registry, numWorkers, l.Wake, m)
		l.pool.Start()
	}

	return l, nil
}

// Register adds a new callback record to both the poller and the pending
// list. Called by the server when a listen socket is bound or a
// connection is accepted.
func (l *Loop) Register(fd int, handler Handler, userData any) error {
	if err := l.poller.Add(fd); err != nil {
		return err
	}
	l.registry.AppendPending(&Record{FD: fd, Handler: handler, UserData: userData})
	return nil
}

// Unregister removes fd from both the poller and pending. Used when a
// handler's own teardown path (rather than a negative return value) must
// pull a record out of rotation.
func (l *Loop) Unregister(fd int) {
	l.registry.RemoveByFD(fd)
	_ = l.poller.Remove(fd)
}

// Running reports whether the loop should keep iterating.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Wake writes one byte to the self-pipe, if configured, to interrupt a
// blocked Wait(). With no worker pool there is no self-pipe and Wake does
// nothing: a loop blocked in Wait() stays blocked until the next readiness
// event on a registered fd.
func (l *Loop) Wake() {
	if !l.hasSelfPipe {
		return
	}
	buf := [1]byte{1}
	for {
		_, err := unix.Write(l.selfPipeWrite, buf[:])
		if err == unix.EINTR {
			continue
		}
		// EAGAIN means the pipe is already full of wake bytes, which is
		// equivalent to having woken the loop already.
		return
	}
}

// Stop flags the loop to exit after its current iteration and, when a
// worker pool is configured, wakes it if it is blocked in Wait(). Without a
// worker pool a blocked loop exits only after its next readiness event.
// Safe to call from any goroutine, including a worker running the stop-fd
// handler.
func (l *Loop) Stop() {
	l.running.Store(false)
	l.Wake()
}

// Close tears down the poller, self-pipe and worker pool. Must only be
// called after Run has returned.
func (l *Loop) Close() {
	if l.pool != nil {
		l.pool.Stop(shutdownGrace)
	}
	if l.hasSelfPipe {
		_ = unix.Close(l.selfPipeRead)
		_ = unix.Close(l.selfPipeWrite)
	}
	_ = l.poller.Close()
}

// Run executes the event loop until Stop is called. It returns once the
// running flag is observed false at the top of an iteration.
func (l *Loop) Run() error {
	if l.pool != nil {
		return l.runWithPool()
	}
	return l.runInline()
}

// runWithPool implements the with-worker-pool half of the event-loop
// algorithm: snapshot pending, poll, and on a stable batch walk pending
// and the ready set in lockstep, handing ready records to the pool.
func (l *Loop) runWithPool() error {
	for l.Running() {
		batch := l.registry.SnapshotPending()
		n := len(batch)

		ready, err := l.poller.Wait()
		if err != nil {
			return fmt.Errorf("poll wait: %w", err)
		}

		if l.drainSelfPipeIfReady(ready) {
			// pending has mutated out from under this batch; restart.
			continue
		}

		if n != l.registry.PendingLen() {
			// A worker already re-parked or dropped a record; the batch we
			// took is stale. Restart rather than walk it against a list
			// that has since shifted.
			continue
		}

		readySet := toSet(ready)

		l.registry.Lock()
		for _, rec := range batch {
			if rec.Handler == nil {
				continue
			}
			if _, ok := readySet[rec.FD]; !ok {
				continue
			}
			l.registry.MoveToWorkingLocked(rec)
			l.pool.Post()
		}
		l.registry.Unlock()

		l.recordDepths()
	}
	return nil
}

// recordDepths reports the current pending/working list depths, if a
// metrics recorder is attached.
func (l *Loop) recordDepths() {
	if l.metrics == nil {
		return
	}
	l.metrics.SetPendingListDepth(l.registry.PendingLen())
	l.metrics.SetWorkingListDepth(l.registry.WorkingLen())
}

// runInline implements the no-worker-pool half: every iteration copies
// pending into working, dispatches ready handlers on this goroutine, and
// folds survivors back into pending before clearing working.
func (l *Loop) runInline() error {
	for l.Running() {
		ready, err := l.poller.Wait()
		if err != nil {
			return fmt.Errorf("poll wait: %w", err)
		}
		readySet := toSet(ready)

		l.registry.Lock()
		batch := l.registry.CopyPendingToWorkingLocked()
		l.registry.Unlock()

		for _, rec := range batch {
			drop := false
			if rec.Handler != nil {
				if _, ok := readySet[rec.FD]; ok {
					rv := rec.Handler(rec.FD, rec.UserData)
					if rv < 0 {
						drop = true
					}
				}
			}
			if drop {
				// The handler already closed rec.FD; the kernel drops the
				// epoll registration along with the last close of the fd,
				// so no explicit Remove here — calling it against a
				// possibly-already-reused fd number would be a race.
				continue
			}
			l.registry.Lock()
			l.registry.AppendPendingLocked(rec)
			l.registry.Unlock()
		}

		l.registry.Lock()
		l.registry.ClearWorkingLocked()
		l.registry.Unlock()

		l.recordDepths()
	}
	return nil
}

func (l *Loop) drainSelfPipeIfReady(ready []int) bool {
	if !l.hasSelfPipe {
		return false
	}
	for _, fd := range ready {
		if fd != l.selfPipeRead {
			continue
		}
		var buf [1]byte
		for {
			_, err := unix.Read(l.selfPipeRead, buf[:])
			if err == unix.EINTR {
				continue
			}
			break
		}
		return true
	}
	return false
}

func toSet(fds []int) map[int]struct{} {
	set := make(map[int]struct{}, len(fds))
	for _, fd := range fds {
		set[fd] = struct{}{}
	}
	return set
}
