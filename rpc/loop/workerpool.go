package loop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/gorpcd/internal/logger"
	"github.com/marmos91/gorpcd/pkg/metrics"
)

// WorkerPool is a fixed-size pool of goroutines that drain the working
// list, invoke each record's handler, and re-park or free the record
// based on the handler's return value.
type WorkerPool struct {
	registry   *Registry
	numWorkers int
	sem        chan struct{}
	wake       func()
	metrics    metrics.RuntimeMetrics

	busy atomic.Int64

	runningMu sync.Mutex
	running   bool

	wg sync.WaitGroup
}

// NewWorkerPool creates a pool of numWorkers goroutines operating on
// registry. wake is called after a handler returns 0 (keep), to signal
// the event loop's self-pipe that pending has grown. m may be nil to
// disable utilization recording.
func NewWorkerPool(registry *Registry, numWorkers int, wake func(), m metrics.RuntimeMetrics) *WorkerPool {
	return &WorkerPool{
		registry:   registry,
		numWorkers: numWorkers,
		sem:        make(chan struct{}, numWorkers),
		wake:       wake,
		metrics:    m,
		running:    true,
	}
}

// Post releases one worker to pick up a record from working. Called by
// the event loop once per record it moves from pending to working.
func (p *WorkerPool) Post() {
	select {
	case p.sem <- struct{}{}:
	default:
		// The loop posts once per dispatched record, so posts outrun the
		// buffer whenever more records are ready than workers can take;
		// hand the post to a goroutine rather than block the loop thread.
		go func() { p.sem <- struct{}{} }()
	}
}

// Start spawns the worker goroutines.
func (p *WorkerPool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func (p *WorkerPool) run(id int) {
	defer p.wg.Done()

	for {
		<-p.sem

		if !p.isRunning() {
			return
		}

		rec := p.registry.PopWorking()
		if rec == nil {
			continue
		}
		if rec.Handler == nil {
			// Sentinel record should never land in working, but guard anyway.
			continue
		}

		busy := p.busy.Add(1)
		if p.metrics != nil {
			p.metrics.SetWorkerUtilization(float64(busy) / float64(p.numWorkers))
		}

		rv := rec.Handler(rec.FD, rec.UserData)
		if rv == 0 {
			p.registry.ReturnToPending(rec)
			p.wake()
		}
		// Negative: the handler already tore down the connection; the
		// record is simply dropped (not re-registered anywhere).

		busy = p.busy.Add(-1)
		if p.metrics != nil {
			p.metrics.SetWorkerUtilization(float64(busy) / float64(p.numWorkers))
		}
		_ = id
	}
}

func (p *WorkerPool) isRunning() bool {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	return p.running
}

// Stop releases every worker once via the semaphore, waits a short grace
// period for them to notice shutdown and exit, then returns regardless —
// the caller (server shutdown) does not block indefinitely on stuck
// workers.
func (p *WorkerPool) Stop(grace time.Duration) {
	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	for i := 0; i < p.numWorkers; i++ {
		p.sem <- struct{}{}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("worker pool did not shut down within grace period", logger.DurationMs(float64(grace.Milliseconds())))
	}
}
