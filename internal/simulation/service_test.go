package simulation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/models"
	"github.com/examload/examload/internal/secrets"
	testutil "github.com/examload/examload/internal/testing"
)

type serviceFixture struct {
	store   *db.Store
	queue   *RunQueue
	service *Service
}

func newServiceFixture(t *testing.T, cipher *secrets.Cipher) *serviceFixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	targets := map[models.TargetServer]config.Target{
		testutil.TestServer: stagingTarget(),
		"production": {
			URL:             "https://lms.example.edu",
			Production:      true,
			UsernamePattern: "student{i}",
			PasswordPattern: "pass{i}",
		},
	}
	// The consumer is never started; enqueued runs stay visible.
	queue := NewRunQueue(&recordingExecutor{}, testLogger(), nil)
	service := NewService(store, queue, targets, cipher, nil, testLogger())
	return &serviceFixture{store: store, queue: queue, service: service}
}

func (f *serviceFixture) createSimulation(t *testing.T, opts testutil.SimulationOpts) models.Simulation {
	t.Helper()
	sim := testutil.NewTestSimulation(opts)
	require.NoError(t, f.store.CreateSimulation(context.Background(), sim))
	return sim
}

func TestCreateSimulationValidation(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	ctx := context.Background()

	base := func() models.Simulation {
		return models.Simulation{
			Name:                "load test",
			NumberOfUsers:       5,
			Server:              testutil.TestServer,
			Mode:                models.ModeCreateCourseAndExam,
			OnlineIDEPercentage: 100,
			CommitsFrom:         8,
			CommitsTo:           15,
		}
	}

	t.Run("valid simulation gets id and creation date", func(t *testing.T) {
		created, err := fixture.service.CreateSimulation(ctx, base())
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreationDate.IsZero())

		stored, err := fixture.store.GetSimulation(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "load test", stored.Name)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		sim := base()
		sim.Name = "  "
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorContains(t, err, "name")
	})

	t.Run("unknown server rejected", func(t *testing.T) {
		sim := base()
		sim.Server = "nowhere"
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorIs(t, err, ErrUnknownTarget)
	})

	t.Run("invalid mode rejected", func(t *testing.T) {
		sim := base()
		sim.Mode = "SOMETHING_ELSE"
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorContains(t, err, "mode")
	})

	t.Run("existing course mode requires ids", func(t *testing.T) {
		sim := base()
		sim.Mode = models.ModeExistingCoursePreparedExam
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorContains(t, err, "course")
	})

	t.Run("negative percentage rejected", func(t *testing.T) {
		sim := base()
		sim.OnlineIDEPercentage = 120
		sim.PasswordPercentage = -20
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorContains(t, err, "negative")
	})

	t.Run("percentages must sum to 100", func(t *testing.T) {
		sim := base()
		sim.OnlineIDEPercentage = 50
		sim.PasswordPercentage = 30
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorContains(t, err, "sum to 100")
	})

	t.Run("zero mix defaults to online IDE", func(t *testing.T) {
		sim := base()
		sim.OnlineIDEPercentage = 0
		created, err := fixture.service.CreateSimulation(ctx, sim)
		require.NoError(t, err)
		assert.Equal(t, float64(100), created.OnlineIDEPercentage)
	})

	t.Run("custom range derives user count", func(t *testing.T) {
		sim := base()
		sim.CustomizeUserRange = true
		sim.UserRange = "1-3,10"
		sim.NumberOfUsers = 0
		created, err := fixture.service.CreateSimulation(ctx, sim)
		require.NoError(t, err)
		assert.Equal(t, 4, created.NumberOfUsers)
	})

	t.Run("invalid custom range rejected", func(t *testing.T) {
		sim := base()
		sim.CustomizeUserRange = true
		sim.UserRange = "0-5"
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorContains(t, err, "user range")
	})

	t.Run("commit range defaults applied", func(t *testing.T) {
		sim := base()
		sim.CommitsFrom = 0
		sim.CommitsTo = 0
		created, err := fixture.service.CreateSimulation(ctx, sim)
		require.NoError(t, err)
		assert.Equal(t, 8, created.CommitsFrom)
		assert.Equal(t, 15, created.CommitsTo)
	})

	t.Run("inverted commit range rejected", func(t *testing.T) {
		sim := base()
		sim.CommitsFrom = 10
		sim.CommitsTo = 5
		_, err := fixture.service.CreateSimulation(ctx, sim)
		require.ErrorContains(t, err, "commit range")
	})
}

func TestCreateSimulationEncryptsInstructorPassword(t *testing.T) {
	cipher, err := secrets.GenerateKey(filepath.Join(t.TempDir(), "age.key"))
	require.NoError(t, err)
	fixture := newServiceFixture(t, cipher)
	ctx := context.Background()

	sim := models.Simulation{
		Name:               "prod run",
		NumberOfUsers:      5,
		CourseID:           42,
		ExamID:             7,
		Server:             "production",
		Mode:               models.ModeExistingCourseUnpreparedExam,
		InstructorUsername: "instructor",
		InstructorPassword: "plain-secret",
	}
	created, err := fixture.service.CreateSimulation(ctx, sim)
	require.NoError(t, err)

	stored, err := fixture.store.GetSimulation(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "plain-secret", stored.InstructorPassword)
	assert.True(t, secrets.IsEncrypted(stored.InstructorPassword))

	decrypted, err := cipher.Decrypt(stored.InstructorPassword)
	require.NoError(t, err)
	assert.Equal(t, "plain-secret", decrypted)
}

func TestCreateAndQueueRun(t *testing.T) {
	ctx := context.Background()

	t.Run("queues a run for a staging target", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		sim := fixture.createSimulation(t, testutil.SimulationOpts{})

		run, err := fixture.service.CreateAndQueueRun(ctx, sim.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, models.RunQueued, run.Status)
		assert.Equal(t, []string{run.ID}, fixture.queue.QueuedIDs())

		stored, err := fixture.store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunQueued, stored.Status)
	})

	t.Run("production without credentials rejected", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		sim := fixture.createSimulation(t, testutil.SimulationOpts{
			Server:   "production",
			Mode:     models.ModeExistingCourseCreateExam,
			CourseID: 42,
		})

		_, err := fixture.service.CreateAndQueueRun(ctx, sim.ID, nil)
		require.ErrorIs(t, err, ErrAdminRequired)
		assert.Empty(t, fixture.queue.QueuedIDs())
	})

	t.Run("production with operator account accepted", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		sim := fixture.createSimulation(t, testutil.SimulationOpts{
			Server:   "production",
			Mode:     models.ModeExistingCourseCreateExam,
			CourseID: 42,
		})

		run, err := fixture.service.CreateAndQueueRun(ctx, sim.ID, &models.Account{Username: "op", Password: "secret"})
		require.NoError(t, err)
		require.NotNil(t, run.AdminAccount)
	})

	t.Run("prepared exam mode needs no credentials on production", func(t *testing.T) {
		fixture := newServiceFixture(t, nil)
		sim := fixture.createSimulation(t, testutil.SimulationOpts{
			Server:   "production",
			Mode:     models.ModeExistingCoursePreparedExam,
			CourseID: 42,
			ExamID:   7,
		})

		_, err := fixture.service.CreateAndQueueRun(ctx, sim.ID, nil)
		require.NoError(t, err)
	})
}

func TestRecoverQueuedRuns(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	ctx := context.Background()
	sim := fixture.createSimulation(t, testutil.SimulationOpts{})

	early := testutil.NewTestRun(testutil.RunOpts{ID: "run-early", SimulationID: sim.ID, StartTime: testutil.FixedTime})
	late := testutil.NewTestRun(testutil.RunOpts{ID: "run-late", SimulationID: sim.ID, StartTime: testutil.FixedTime.Add(time.Hour)})
	require.NoError(t, fixture.store.CreateRun(ctx, late))
	require.NoError(t, fixture.store.CreateRun(ctx, early))

	require.NoError(t, fixture.service.RecoverQueuedRuns(ctx))
	assert.Equal(t, []string{"run-early", "run-late"}, fixture.queue.QueuedIDs())
}

func TestRemoveQueuedRun(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	ctx := context.Background()
	sim := fixture.createSimulation(t, testutil.SimulationOpts{})

	run, err := fixture.service.CreateAndQueueRun(ctx, sim.ID, nil)
	require.NoError(t, err)

	require.NoError(t, fixture.service.RemoveQueuedRun(ctx, run.ID))
	assert.Empty(t, fixture.queue.QueuedIDs())
	_, err = fixture.store.GetRun(ctx, run.ID)
	require.Error(t, err)

	require.ErrorContains(t, fixture.service.RemoveQueuedRun(ctx, run.ID), "not queued")
}

func TestCancelActiveRunRequiresRunning(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	ctx := context.Background()
	sim := fixture.createSimulation(t, testutil.SimulationOpts{})

	run, err := fixture.service.CreateAndQueueRun(ctx, sim.ID, nil)
	require.NoError(t, err)

	require.ErrorContains(t, fixture.service.CancelActiveRun(ctx, run.ID), "not RUNNING")
}

func TestDeleteSimulationGuardsActiveRuns(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	ctx := context.Background()
	sim := fixture.createSimulation(t, testutil.SimulationOpts{})

	run, err := fixture.service.CreateAndQueueRun(ctx, sim.ID, nil)
	require.NoError(t, err)

	require.ErrorIs(t, fixture.service.DeleteSimulation(ctx, sim.ID), ErrSimulationActive)

	require.NoError(t, fixture.store.UpdateRunStatus(ctx, run.ID, models.RunFinished))
	require.NoError(t, fixture.service.DeleteSimulation(ctx, sim.ID))
}

func TestScheduleLifecycle(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	ctx := context.Background()
	sim := fixture.createSimulation(t, testutil.SimulationOpts{})

	now := time.Now().UTC()
	rule := models.SimulationSchedule{
		SimulationID:  sim.ID,
		Cycle:         models.CycleDaily,
		TimeOfDay:     time.Date(0, 1, 1, 18, 0, 0, 0, time.UTC),
		StartDateTime: now,
	}

	created, err := fixture.service.CreateSchedule(ctx, rule)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.NextRun.IsZero())
	assert.Equal(t, 18, created.NextRun.Hour())

	sub, err := fixture.service.Subscribe(ctx, created.ID, "ops@example.edu")
	require.NoError(t, err)
	assert.NotEmpty(t, sub.Key)

	require.NoError(t, fixture.service.Unsubscribe(ctx, sub.Key))
	require.Error(t, fixture.service.Unsubscribe(ctx, sub.Key))

	created.TimeOfDay = time.Date(0, 1, 1, 6, 0, 0, 0, time.UTC)
	updated, err := fixture.service.UpdateSchedule(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.NextRun.Hour())

	require.NoError(t, fixture.service.DeleteSchedule(ctx, created.ID))
	_, err = fixture.store.GetSchedule(ctx, created.ID)
	require.Error(t, err)
}

func TestScheduleProductionRequiresInstructor(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	ctx := context.Background()
	sim := fixture.createSimulation(t, testutil.SimulationOpts{
		Server:   "production",
		Mode:     models.ModeExistingCourseCreateExam,
		CourseID: 42,
	})

	rule := models.SimulationSchedule{
		SimulationID:  sim.ID,
		Cycle:         models.CycleDaily,
		TimeOfDay:     time.Date(0, 1, 1, 18, 0, 0, 0, time.UTC),
		StartDateTime: time.Now().UTC(),
	}
	_, err := fixture.service.CreateSchedule(ctx, rule)
	require.ErrorIs(t, err, ErrInstructorRequired)
}

func TestSubscribeRejectsBadEmail(t *testing.T) {
	fixture := newServiceFixture(t, nil)
	_, err := fixture.service.Subscribe(context.Background(), "sched-1", "not-an-email")
	require.ErrorContains(t, err, "email")
}
