package simulation

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/models"
	testutil "github.com/examload/examload/internal/testing"
)

func newWatcherFixture(t *testing.T) (*db.Store, *models.SimulationRun) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sim := testutil.NewTestSimulation(testutil.SimulationOpts{})
	require.NoError(t, store.CreateSimulation(context.Background(), sim))
	run := testutil.NewTestRun(testutil.RunOpts{SimulationID: sim.ID})
	require.NoError(t, store.CreateRun(context.Background(), run))
	return store, &run
}

func TestBuildQueueWatcherDrains(t *testing.T) {
	store, run := newWatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCiStatus(ctx, models.CiStatus{
		RunID:      run.ID,
		TotalJobs:  10,
		QueuedJobs: 10,
	}))

	admin := testutil.NewMockAdmin()
	admin.BuildQueueSizes = []int{6, 2, 0}

	watcher := &BuildQueueWatcher{
		Store:    store,
		Logger:   testLogger(),
		Interval: 5 * time.Millisecond,
	}
	watcher.Watch(ctx, run, admin, 100)

	status, err := store.GetCiStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, status.Finished)
	assert.Equal(t, 0, status.QueuedJobs)
	assert.Equal(t, 10, status.TotalJobs)
	assert.Equal(t, 3, status.TimeInMinutes)
	assert.InDelta(t, 10.0/3.0, status.AvgJobsPerMinute, 0.001)
}

func TestBuildQueueWatcherWidensGrownQueue(t *testing.T) {
	store, run := newWatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertCiStatus(ctx, models.CiStatus{
		RunID:      run.ID,
		TotalJobs:  4,
		QueuedJobs: 4,
	}))

	admin := testutil.NewMockAdmin()
	admin.BuildQueueSizes = []int{9, 0}

	watcher := &BuildQueueWatcher{
		Store:    store,
		Logger:   testLogger(),
		Interval: 5 * time.Millisecond,
	}
	watcher.Watch(ctx, run, admin, 100)

	status, err := store.GetCiStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, status.Finished)
	assert.Equal(t, 9, status.TotalJobs)
	assert.Equal(t, 2, status.TimeInMinutes)
}

func TestBuildQueueWatcherStopsOnCancel(t *testing.T) {
	store, run := newWatcherFixture(t)

	require.NoError(t, store.UpsertCiStatus(context.Background(), models.CiStatus{
		RunID:      run.ID,
		TotalJobs:  4,
		QueuedJobs: 4,
	}))

	admin := testutil.NewMockAdmin()
	admin.BuildQueueSizes = []int{4}

	watcher := &BuildQueueWatcher{
		Store:    store,
		Logger:   testLogger(),
		Interval: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watcher.Watch(ctx, run, admin, 100)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestBuildQueueWatcherMissingStatusReturns(t *testing.T) {
	store, run := newWatcherFixture(t)

	watcher := &BuildQueueWatcher{
		Store:    store,
		Logger:   testLogger(),
		Interval: 5 * time.Millisecond,
	}
	watcher.Watch(context.Background(), run, testutil.NewMockAdmin(), 100)

	_, err := store.GetCiStatus(context.Background(), run.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
}
