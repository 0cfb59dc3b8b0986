// Package dispatch provides the bounded-concurrency fan-out primitive used
// to drive a load phase across all simulated participants.
//
// The dispatcher isolates participants from each other: a failing or
// panicking task contributes zero samples and never aborts its siblings or
// the calling phase. Completeness is guaranteed for every non-failing task;
// ordering across tasks is not.
package dispatch

import (
	"context"
	"log"
	"runtime"
	"sync"

	"github.com/examload/examload/internal/lms"
	"golang.org/x/sync/semaphore"
)

// Task is one independent unit of work, typically one participant's part of
// a load phase. It returns the samples it observed.
type Task func(ctx context.Context) ([]lms.RequestSample, error)

// Limit computes the worker bound for a fan-out phase:
// min(GOMAXPROCS * perCPU, tasks), but at least 1.
func Limit(perCPU, tasks int) int {
	limit := runtime.GOMAXPROCS(0) * perCPU
	if tasks < limit {
		limit = tasks
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// RunAll executes all tasks with at most limit running concurrently and
// returns the flattened samples of every task that completed without error.
//
// Task errors and panics are logged and swallowed. If ctx is already
// cancelled, RunAll returns immediately with no samples. If ctx is
// cancelled mid-flight, in-flight tasks are interrupted cooperatively and
// the samples collected so far are returned. All workers have exited by the
// time RunAll returns.
func RunAll(ctx context.Context, tasks []Task, limit int, logger *log.Logger) []lms.RequestSample {
	if logger == nil {
		logger = log.Default()
	}
	if len(tasks) == 0 || ctx.Err() != nil {
		return nil
	}
	if limit > len(tasks) {
		limit = len(tasks)
	}
	if limit < 1 {
		limit = 1
	}

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var samples []lms.RequestSample

	for i, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a slot; the remaining
			// tasks are never started.
			break
		}
		wg.Add(1)
		go func(index int, task Task) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					logger.Printf("dispatch: task %d panicked: %v", index, r)
				}
			}()
			result, err := task(ctx)
			if err != nil {
				logger.Printf("dispatch: task %d failed: %v", index, err)
				return
			}
			mu.Lock()
			samples = append(samples, result...)
			mu.Unlock()
		}(i, task)
	}

	wg.Wait()
	return samples
}
