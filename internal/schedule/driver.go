package schedule

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/examload/examload/internal/models"
)

// DefaultCheckInterval is how often the driver looks for due schedules.
const DefaultCheckInterval = time.Minute

// Store is the subset of persistence the driver needs.
type Store interface {
	DueSchedules(now time.Time) ([]*models.SimulationSchedule, error)
	UpdateScheduleNextRun(scheduleID string, next time.Time) error
	DeleteSchedule(scheduleID string) error
}

// Enqueuer creates and queues a run on behalf of a fired schedule.
type Enqueuer interface {
	QueueScheduledRun(schedule *models.SimulationSchedule) error
}

// Driver periodically fires due schedules: each due rule queues one run and
// is rescheduled to its next occurrence, or deleted once its end date is
// behind it.
type Driver struct {
	Store    Store
	Enqueuer Enqueuer
	Logger   *log.Logger
	Interval time.Duration
}

// Start runs the check loop until ctx is cancelled.
func (d *Driver) Start(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.Tick(now.UTC())
		}
	}
}

// Tick fires every schedule whose next-run time is at or before now.
func (d *Driver) Tick(now time.Time) {
	due, err := d.Store.DueSchedules(now)
	if err != nil {
		d.Logger.Printf("schedule: list due schedules: %v", err)
		return
	}
	for _, rule := range due {
		if err := d.Enqueuer.QueueScheduledRun(rule); err != nil {
			d.Logger.Printf("schedule %s: queue run: %v", rule.ID, err)
		}
		d.reschedule(rule, now)
	}
}

func (d *Driver) reschedule(rule *models.SimulationSchedule, now time.Time) {
	// The fire just consumed the current slot, so look strictly past it.
	next, err := NextFire(rule, now.Add(time.Second))
	switch {
	case errors.Is(err, ErrExpired):
		if err := d.Store.DeleteSchedule(rule.ID); err != nil {
			d.Logger.Printf("schedule %s: delete expired: %v", rule.ID, err)
		}
	case err != nil:
		d.Logger.Printf("schedule %s: compute next run: %v", rule.ID, err)
	default:
		if err := d.Store.UpdateScheduleNextRun(rule.ID, next); err != nil {
			d.Logger.Printf("schedule %s: update next run: %v", rule.ID, err)
		}
	}
}
