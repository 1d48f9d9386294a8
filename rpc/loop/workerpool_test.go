package loop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_DispatchesAndReparks(t *testing.T) {
	r := NewRegistry()
	var invocations int32
	var wakes int32

	pool := NewWorkerPool(r, 2, func() { atomic.AddInt32(&wakes, 1) }, nil)
	pool.Start()
	defer pool.Stop(time.Second)

	rec := &Record{FD: 1, Handler: func(int, any) int {
		atomic.AddInt32(&invocations, 1)
		return 0
	}}
	r.AppendPending(rec)
	r.MoveToWorking(rec)
	pool.Post()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&invocations) == 1
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return r.PendingLen() == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&wakes))
}

func TestWorkerPool_NegativeReturnDropsRecord(t *testing.T) {
	r := NewRegistry()
	pool := NewWorkerPool(r, 1, func() {}, nil)
	pool.Start()
	defer pool.Stop(time.Second)

	rec := &Record{FD: 2, Handler: func(int, any) int { return -1 }}
	r.AppendPending(rec)
	r.MoveToWorking(rec)
	pool.Post()

	require.Eventually(t, func() bool {
		return r.WorkingLen() == 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, r.PendingLen())
}

func TestWorkerPool_StopExitsWorkers(t *testing.T) {
	r := NewRegistry()
	pool := NewWorkerPool(r, 3, func() {}, nil)
	pool.Start()

	done := make(chan struct{})
	go func() {
		pool.Stop(time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}
