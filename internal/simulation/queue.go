// ABOUTME: FIFO run queue with a single consumer goroutine.
package simulation

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/examload/examload/internal/models"
)

var (
	// ErrQueueClosed is returned when enqueueing after shutdown.
	ErrQueueClosed = errors.New("run queue closed")
	// ErrRunNotActive is returned when aborting a run that is not the one
	// currently executing.
	ErrRunNotActive = errors.New("run is not active")
)

// Executor runs one simulation run to a terminal state. Execute must respect
// ctx cancellation and must not return before the run has been persisted in
// a terminal state.
type Executor interface {
	Execute(ctx context.Context, run *models.SimulationRun)
}

// RunQueue serializes run execution. Runs are consumed strictly in enqueue
// order by a single consumer goroutine, so at most one run is active at any
// time.
type RunQueue struct {
	executor Executor
	logger   *log.Logger
	metrics  *Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*models.SimulationRun
	paused  bool
	closed  bool
	started bool

	activeID     string
	activeCancel context.CancelFunc
}

// NewRunQueue creates a queue feeding runs to executor. The consumer does
// not start until Start is called.
func NewRunQueue(executor Executor, logger *log.Logger, metrics *Metrics) *RunQueue {
	if logger == nil {
		logger = log.Default()
	}
	q := &RunQueue{
		executor: executor,
		logger:   logger,
		metrics:  metrics,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the consumer goroutine. The queue shuts down when ctx is
// cancelled; the active run is aborted and pending runs stay QUEUED for
// recovery on the next start.
func (q *RunQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return errors.New("run queue already started")
	}
	q.started = true
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		q.close()
	}()
	go q.consume(ctx)
	return nil
}

func (q *RunQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.activeCancel != nil {
		q.activeCancel()
	}
	q.cond.Broadcast()
}

func (q *RunQueue) consume(ctx context.Context) {
	for {
		q.mu.Lock()
		for !q.closed && (q.paused || len(q.pending) == 0) {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		run := q.pending[0]
		q.pending = q.pending[1:]
		q.metrics.SetQueueDepth(len(q.pending))

		runCtx, cancel := context.WithCancel(ctx)
		q.activeID = run.ID
		q.activeCancel = cancel
		q.mu.Unlock()

		q.logger.Printf("run %s: dequeued for execution", run.ID)
		q.executor.Execute(runCtx, run)
		cancel()

		q.mu.Lock()
		q.activeID = ""
		q.activeCancel = nil
		q.mu.Unlock()
	}
}

// Enqueue appends a run to the back of the queue.
func (q *RunQueue) Enqueue(run *models.SimulationRun) error {
	if run == nil || run.ID == "" {
		return errors.New("enqueue run: missing run id")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, run)
	q.metrics.SetQueueDepth(len(q.pending))
	q.cond.Signal()
	return nil
}

// RemoveIfQueued removes a still-pending run from the queue. It reports
// whether the run was found; the active run is never removed.
func (q *RunQueue) RemoveIfQueued(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, run := range q.pending {
		if run.ID == runID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.metrics.SetQueueDepth(len(q.pending))
			return true
		}
	}
	return false
}

// AbortActive cancels the context of the currently executing run. The
// executor drives the run to CANCELLED; the consumer then moves on to the
// next queued run.
func (q *RunQueue) AbortActive(runID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.activeID == "" || q.activeID != runID {
		return ErrRunNotActive
	}
	q.activeCancel()
	return nil
}

// Pause stops the consumer from picking up further runs once the active run
// finishes. Queued runs are retained.
func (q *RunQueue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
}

// Resume lets a paused consumer continue.
func (q *RunQueue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	q.cond.Broadcast()
}

// ActiveRunID returns the id of the currently executing run, or "".
func (q *RunQueue) ActiveRunID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeID
}

// QueuedIDs returns the ids of pending runs in consumption order.
func (q *RunQueue) QueuedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, len(q.pending))
	for i, run := range q.pending {
		ids[i] = run.ID
	}
	return ids
}
