// Package queue is the in-process work queue behind the ledger's dispatcher.
// The ledger's store is the single source of truth for request state; the
// queue only tracks which units are in flight and their cancel functions, and
// the ledger's Resume rebuilds it after a restart.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sublingo/sublingo/pkg/log"
)

// Executor runs one translation unit to a terminal state. It must convert
// every failure into a ledger transition; an error return here is only
// logged.
type Executor func(ctx context.Context, requestID string) error

type job struct {
	handle    string
	requestID string
	ctx       context.Context
	cancel    context.CancelFunc
}

// Queue fans translation units out to a fixed worker pool. Each unit gets
// its own cancellable context keyed by an opaque job handle; delivery is
// at-least-once and the executor tolerates redelivered terminal requests.
type Queue struct {
	workerCount int

	mu        sync.Mutex
	jobs      map[string]*job
	started   bool
	idCounter uint64

	pending  chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(workerCount int) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Queue{
		workerCount: workerCount,
		jobs:        make(map[string]*job),
		pending:     make(chan string, 1024),
		stopCh:      make(chan struct{}),
	}
}

// Enqueue registers a unit of work for requestID and returns its job handle.
// Safe before Start; queued units are drained once workers come up.
func (q *Queue) Enqueue(requestID string) (string, error) {
	handle := fmt.Sprintf("job-%d", atomic.AddUint64(&q.idCounter, 1))
	ctx, cancel := context.WithCancel(context.Background())

	q.mu.Lock()
	q.jobs[handle] = &job{handle: handle, requestID: requestID, ctx: ctx, cancel: cancel}
	q.mu.Unlock()

	select {
	case q.pending <- handle:
	default:
		// The channel is sized far beyond realistic backlogs; spill to a
		// goroutine rather than block the caller holding ledger state.
		go func() { q.pending <- handle }()
	}
	return handle, nil
}

// Cancel signals the unit behind handle to stop. Returns false when the
// handle is unknown or the unit already finished.
func (q *Queue) Cancel(handle string) bool {
	q.mu.Lock()
	j, ok := q.jobs[handle]
	q.mu.Unlock()
	if !ok {
		return false
	}
	j.cancel()
	return true
}

// Start spins up the worker pool. Calling Start twice is a no-op.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels every in-flight unit and waits for the workers to drain.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)

		q.mu.Lock()
		for _, j := range q.jobs {
			j.cancel()
		}
		q.mu.Unlock()

		q.wg.Wait()
	})
}

// InFlight reports how many units are registered and not yet finished.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case handle := <-q.pending:
			q.mu.Lock()
			j, ok := q.jobs[handle]
			q.mu.Unlock()
			if !ok {
				continue
			}

			if err := exec(j.ctx, j.requestID); err != nil {
				log.Error("Job %s for request %s finished with error: %v", j.handle, j.requestID, err)
			}

			q.mu.Lock()
			delete(q.jobs, handle)
			q.mu.Unlock()
			j.cancel()
		}
	}
}
