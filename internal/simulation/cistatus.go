// ABOUTME: Build queue watcher keeping CI status visible after a run.
package simulation

import (
	"context"
	"log"
	"time"

	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/lms"
	"github.com/examload/examload/internal/models"
)

// DefaultWatchInterval is the build queue poll interval.
const DefaultWatchInterval = time.Minute

// BuildQueueWatcher polls the target's CI build queue after a run finished
// without cleanup, so operators can watch the queue drain without the run
// blocking the queue consumer.
type BuildQueueWatcher struct {
	Store    *db.Store
	Notifier Notifier
	Logger   *log.Logger

	// Interval overrides the poll interval, mainly in tests.
	Interval time.Duration
}

func (w *BuildQueueWatcher) interval() time.Duration {
	if w.Interval > 0 {
		return w.Interval
	}
	return DefaultWatchInterval
}

func (w *BuildQueueWatcher) logger() *log.Logger {
	if w.Logger == nil {
		return log.Default()
	}
	return w.Logger
}

// Watch polls the build queue until it drains or ctx is cancelled, updating
// the run's CI status after every poll. The initial status row is expected
// to exist already; Watch rewrites it in place.
func (w *BuildQueueWatcher) Watch(ctx context.Context, run *models.SimulationRun, admin lms.AdminActions, courseID int64) {
	status, err := w.Store.GetCiStatus(ctx, run.ID)
	if err != nil {
		w.logger().Printf("run %s: load ci status: %v", run.ID, err)
		return
	}

	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		queued, err := admin.GetBuildQueueSize(ctx, courseID)
		if err != nil {
			w.logger().Printf("run %s: poll build queue: %v", run.ID, err)
			continue
		}

		status.QueuedJobs = queued
		status.TimeInMinutes++
		processed := status.TotalJobs - queued
		if processed < 0 {
			// The queue grew past the initial snapshot, widen the total.
			status.TotalJobs = queued
			processed = 0
		}
		status.AvgJobsPerMinute = float64(processed) / float64(status.TimeInMinutes)
		status.Finished = queued == 0

		if err := w.Store.UpsertCiStatus(ctx, status); err != nil {
			w.logger().Printf("run %s: persist ci status: %v", run.ID, err)
		}
		if w.Notifier != nil {
			w.Notifier.CiStatusChanged(run, status)
		}
		if status.Finished {
			return
		}
	}
}
