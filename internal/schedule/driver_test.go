package schedule

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/examload/examload/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	due        []*models.SimulationSchedule
	dueErr     error
	nextRuns   map[string]time.Time
	deleted    []string
	updateErrs map[string]error
}

func (f *fakeStore) DueSchedules(now time.Time) ([]*models.SimulationSchedule, error) {
	return f.due, f.dueErr
}

func (f *fakeStore) UpdateScheduleNextRun(id string, next time.Time) error {
	if err := f.updateErrs[id]; err != nil {
		return err
	}
	if f.nextRuns == nil {
		f.nextRuns = make(map[string]time.Time)
	}
	f.nextRuns[id] = next
	return nil
}

func (f *fakeStore) DeleteSchedule(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeEnqueuer struct {
	queued []string
	errs   map[string]error
}

func (f *fakeEnqueuer) QueueScheduledRun(rule *models.SimulationSchedule) error {
	if err := f.errs[rule.ID]; err != nil {
		return err
	}
	f.queued = append(f.queued, rule.ID)
	return nil
}

func TestDriverTickQueuesAndReschedules(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{due: []*models.SimulationSchedule{{
		ID:            "sched-1",
		SimulationID:  "sim-1",
		Cycle:         models.CycleDaily,
		TimeOfDay:     clockTime(9, 0),
		StartDateTime: now.AddDate(0, 0, -1),
		NextRun:       now,
	}}}
	enq := &fakeEnqueuer{}
	driver := &Driver{Store: store, Enqueuer: enq, Logger: log.New(io.Discard, "", 0)}

	driver.Tick(now)

	assert.Equal(t, []string{"sched-1"}, enq.queued)
	require.Contains(t, store.nextRuns, "sched-1")
	// The 09:00 slot was just consumed, so the rule moves to tomorrow.
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), store.nextRuns["sched-1"])
	assert.Empty(t, store.deleted)
}

func TestDriverTickDeletesExpiredSchedule(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)
	store := &fakeStore{due: []*models.SimulationSchedule{{
		ID:            "sched-1",
		Cycle:         models.CycleDaily,
		TimeOfDay:     clockTime(9, 0),
		StartDateTime: now.AddDate(0, 0, -1),
		EndDateTime:   &end,
		NextRun:       now,
	}}}
	enq := &fakeEnqueuer{}
	driver := &Driver{Store: store, Enqueuer: enq, Logger: log.New(io.Discard, "", 0)}

	driver.Tick(now)

	// The final occurrence still queues a run before the rule is removed.
	assert.Equal(t, []string{"sched-1"}, enq.queued)
	assert.Equal(t, []string{"sched-1"}, store.deleted)
	assert.Empty(t, store.nextRuns)
}

func TestDriverTickEnqueueFailureStillReschedules(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{due: []*models.SimulationSchedule{{
		ID:            "sched-1",
		Cycle:         models.CycleDaily,
		TimeOfDay:     clockTime(9, 0),
		StartDateTime: now.AddDate(0, 0, -1),
		NextRun:       now,
	}}}
	enq := &fakeEnqueuer{errs: map[string]error{"sched-1": errors.New("queue closed")}}
	driver := &Driver{Store: store, Enqueuer: enq, Logger: log.New(io.Discard, "", 0)}

	driver.Tick(now)

	assert.Empty(t, enq.queued)
	assert.Contains(t, store.nextRuns, "sched-1")
}
