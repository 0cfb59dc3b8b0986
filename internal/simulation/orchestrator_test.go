package simulation

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/lms"
	"github.com/examload/examload/internal/models"
	testutil "github.com/examload/examload/internal/testing"
)

// fakeDrivers hands out a shared mock admin and records the participants it
// builds.
type fakeDrivers struct {
	admin *testutil.MockAdmin

	mu             sync.Mutex
	participants   []*testutil.MockParticipant
	adminRequested []models.Account
}

func (f *fakeDrivers) Admin(target config.Target, account models.Account, logger *log.Logger) lms.AdminActions {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminRequested = append(f.adminRequested, account)
	return f.admin
}

func (f *fakeDrivers) Participant(target config.Target, account models.Account, mechanism lms.AuthMechanism, sim models.Simulation, logger *log.Logger) lms.ParticipantActions {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &testutil.MockParticipant{User: account.Username, SampleDuration: 100 * time.Millisecond}
	f.participants = append(f.participants, p)
	return p
}

func stagingTarget() config.Target {
	return config.Target{
		URL:             "http://lms.local:8080",
		UsernamePattern: "student{i}",
		PasswordPattern: "pass{i}",
		AdminUsername:   "admin",
		AdminPassword:   "admin-secret",
	}
}

type orchestratorFixture struct {
	store   *db.Store
	drivers *fakeDrivers
	orch    *Orchestrator
}

func newOrchestratorFixture(t *testing.T, target config.Target) *orchestratorFixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	drivers := &fakeDrivers{admin: testutil.NewMockAdmin()}
	orch := NewOrchestrator(OrchestratorConfig{
		Store:    store,
		Targets:  map[models.TargetServer]config.Target{testutil.TestServer: target},
		Drivers:  drivers,
		Logger:   testLogger(),
		TestMode: true,
	})
	return &orchestratorFixture{store: store, drivers: drivers, orch: orch}
}

func (f *orchestratorFixture) createRun(t *testing.T, sim models.Simulation) *models.SimulationRun {
	t.Helper()
	require.NoError(t, f.store.CreateSimulation(context.Background(), sim))
	run := testutil.NewTestRun(testutil.RunOpts{SimulationID: sim.ID})
	require.NoError(t, f.store.CreateRun(context.Background(), run))
	return &run
}

func (f *orchestratorFixture) runStatus(t *testing.T, runID string) models.RunStatus {
	t.Helper()
	run, err := f.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	return run.Status
}

func TestExecuteCreateCourseAndExam(t *testing.T) {
	fixture := newOrchestratorFixture(t, stagingTarget())
	sim := testutil.NewTestSimulation(testutil.SimulationOpts{NumberOfUsers: 3})
	run := fixture.createRun(t, sim)

	fixture.orch.Execute(context.Background(), run)

	assert.Equal(t, models.RunFinished, fixture.runStatus(t, run.ID))
	assert.Equal(t, []string{
		"login",
		"createCourse",
		"registerParticipants",
		"createCourseExercise",
		"createExam",
		"createExamExercises",
		"registerParticipantsForExam",
		"prepareExam",
	}, fixture.drivers.admin.CallNames())
	assert.Equal(t, []string{"student1", "student2", "student3"}, fixture.drivers.admin.RegisteredUsernames())

	// Every participant drives all five phases.
	require.Len(t, fixture.drivers.participants, 3)
	for _, p := range fixture.drivers.participants {
		assert.Equal(t, []string{
			"login",
			"performStartupCalls",
			"beginExamParticipation",
			"participateInExam",
			"submitAndEndExam",
		}, p.Calls)
	}

	// 6 samples per participant end up aggregated under TOTAL.
	saved, err := fixture.store.GetRunStats(context.Background(), run.ID)
	require.NoError(t, err)
	var total int64
	for _, entry := range saved {
		if entry.Category == lms.CategoryTotal {
			total = entry.Count
		}
	}
	assert.Equal(t, int64(18), total)
}

func TestExecutePreparedExamSkipsAdmin(t *testing.T) {
	fixture := newOrchestratorFixture(t, stagingTarget())
	sim := testutil.NewTestSimulation(testutil.SimulationOpts{
		Mode:          models.ModeExistingCoursePreparedExam,
		CourseID:      42,
		ExamID:        7,
		NumberOfUsers: 2,
	})
	run := fixture.createRun(t, sim)

	fixture.orch.Execute(context.Background(), run)

	assert.Equal(t, models.RunFinished, fixture.runStatus(t, run.ID))
	assert.Empty(t, fixture.drivers.adminRequested)
	assert.Empty(t, fixture.drivers.admin.CallNames())
	require.Len(t, fixture.drivers.participants, 2)
}

func TestExecuteFailureAtExamRegistrationDeletesExamOnly(t *testing.T) {
	target := stagingTarget()
	target.CleanupEnabled = true
	fixture := newOrchestratorFixture(t, target)
	fixture.drivers.admin.FailOn = map[string]error{
		"registerParticipantsForExam": errors.New("registration rejected"),
	}
	sim := testutil.NewTestSimulation(testutil.SimulationOpts{
		Mode:          models.ModeExistingCourseCreateExam,
		CourseID:      42,
		NumberOfUsers: 2,
	})
	run := fixture.createRun(t, sim)

	fixture.orch.Execute(context.Background(), run)

	assert.Equal(t, models.RunFailed, fixture.runStatus(t, run.ID))
	require.Eventually(t, func() bool {
		return len(fixture.drivers.admin.DeletedExamIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, fixture.drivers.admin.DeletedCourseIDs())
}

func TestExecuteFailureAtCourseRegistrationDeletesCourse(t *testing.T) {
	target := stagingTarget()
	target.CleanupEnabled = true
	fixture := newOrchestratorFixture(t, target)
	fixture.drivers.admin.FailOn = map[string]error{
		"registerParticipants": errors.New("registration rejected"),
	}
	sim := testutil.NewTestSimulation(testutil.SimulationOpts{NumberOfUsers: 2})
	run := fixture.createRun(t, sim)

	fixture.orch.Execute(context.Background(), run)

	assert.Equal(t, models.RunFailed, fixture.runStatus(t, run.ID))
	require.Eventually(t, func() bool {
		return len(fixture.drivers.admin.DeletedCourseIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, fixture.drivers.admin.DeletedExamIDs())

	messages, err := fixture.store.ListLogMessages(context.Background(), run.ID)
	require.NoError(t, err)
	var errorEntries int
	for _, msg := range messages {
		if msg.Error {
			errorEntries++
		}
	}
	assert.GreaterOrEqual(t, errorEntries, 1)
}

func TestExecuteCancellation(t *testing.T) {
	fixture := newOrchestratorFixture(t, stagingTarget())
	sim := testutil.NewTestSimulation(testutil.SimulationOpts{NumberOfUsers: 2})
	run := fixture.createRun(t, sim)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fixture.orch.Execute(ctx, run)

	assert.Equal(t, models.RunCancelled, fixture.runStatus(t, run.ID))

	messages, err := fixture.store.ListLogMessages(context.Background(), run.ID)
	require.NoError(t, err)
	var cancelled int
	for _, msg := range messages {
		if msg.Error && msg.Message == "Run cancelled" {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)

	// No cleanup fires for a run that created nothing.
	assert.Empty(t, fixture.drivers.admin.DeletedCourseIDs())
	assert.Empty(t, fixture.drivers.admin.DeletedExamIDs())
}

func TestExecuteProductionAdminResolution(t *testing.T) {
	target := stagingTarget()
	target.Production = true

	t.Run("fails without any credentials", func(t *testing.T) {
		fixture := newOrchestratorFixture(t, target)
		sim := testutil.NewTestSimulation(testutil.SimulationOpts{
			Mode:          models.ModeExistingCourseCreateExam,
			CourseID:      42,
			NumberOfUsers: 2,
		})
		run := fixture.createRun(t, sim)

		fixture.orch.Execute(context.Background(), run)
		assert.Equal(t, models.RunFailed, fixture.runStatus(t, run.ID))
	})

	t.Run("operator account override wins", func(t *testing.T) {
		fixture := newOrchestratorFixture(t, target)
		sim := testutil.NewTestSimulation(testutil.SimulationOpts{
			Mode:          models.ModeExistingCourseCreateExam,
			CourseID:      42,
			NumberOfUsers: 2,
		})
		run := fixture.createRun(t, sim)
		run.AdminAccount = &models.Account{Username: "operator", Password: "op-secret"}

		fixture.orch.Execute(context.Background(), run)

		assert.Equal(t, models.RunFinished, fixture.runStatus(t, run.ID))
		require.Len(t, fixture.drivers.adminRequested, 1)
		assert.Equal(t, "operator", fixture.drivers.adminRequested[0].Username)
	})

	t.Run("instructor credentials fallback", func(t *testing.T) {
		fixture := newOrchestratorFixture(t, target)
		sim := testutil.NewTestSimulation(testutil.SimulationOpts{
			Mode:               models.ModeExistingCourseCreateExam,
			CourseID:           42,
			NumberOfUsers:      2,
			InstructorUsername: "instructor",
			InstructorPassword: "instructor-secret",
		})
		run := fixture.createRun(t, sim)

		fixture.orch.Execute(context.Background(), run)

		assert.Equal(t, models.RunFinished, fixture.runStatus(t, run.ID))
		require.Len(t, fixture.drivers.adminRequested, 1)
		assert.Equal(t, "instructor", fixture.drivers.adminRequested[0].Username)
	})
}

func TestExecuteUnknownTarget(t *testing.T) {
	fixture := newOrchestratorFixture(t, stagingTarget())
	sim := testutil.NewTestSimulation(testutil.SimulationOpts{Server: "nowhere"})
	run := fixture.createRun(t, sim)

	fixture.orch.Execute(context.Background(), run)
	assert.Equal(t, models.RunFailed, fixture.runStatus(t, run.ID))
}

// statusRecorder captures the status transitions the orchestrator reports.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []models.RunStatus
}

func (r *statusRecorder) RunQueued(*models.SimulationRun) {}

func (r *statusRecorder) RunStatusChanged(run *models.SimulationRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, run.Status)
}

func (r *statusRecorder) RunLogAppended(*models.SimulationRun, models.LogMessage) {}

func (r *statusRecorder) RunResultReady(*models.SimulationRun) {}

func (r *statusRecorder) CiStatusChanged(*models.SimulationRun, models.CiStatus) {}

func TestExecuteSetupFailureStillEntersRunning(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	recorder := &statusRecorder{}
	orch := NewOrchestrator(OrchestratorConfig{
		Store:    store,
		Targets:  map[models.TargetServer]config.Target{testutil.TestServer: stagingTarget()},
		Drivers:  &fakeDrivers{admin: testutil.NewMockAdmin()},
		Notifier: recorder,
		Logger:   testLogger(),
		TestMode: true,
	})

	sim := testutil.NewTestSimulation(testutil.SimulationOpts{Server: "nowhere"})
	require.NoError(t, store.CreateSimulation(context.Background(), sim))
	run := testutil.NewTestRun(testutil.RunOpts{SimulationID: sim.ID})
	require.NoError(t, store.CreateRun(context.Background(), run))

	orch.Execute(context.Background(), &run)

	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, []models.RunStatus{models.RunRunning, models.RunFailed}, recorder.statuses)
}

func TestAssignMechanisms(t *testing.T) {
	orch := NewOrchestrator(OrchestratorConfig{Logger: testLogger()})

	t.Run("pure online IDE", func(t *testing.T) {
		sim := testutil.NewTestSimulation(testutil.SimulationOpts{OnlineIDEPercentage: 100})
		for _, mechanism := range orch.assignMechanisms(sim, 50) {
			assert.Equal(t, lms.AuthOnlineIDE, mechanism)
		}
	})

	t.Run("mixed draw boundaries", func(t *testing.T) {
		sim := testutil.NewTestSimulation(testutil.SimulationOpts{
			OnlineIDEPercentage: 25,
			PasswordPercentage:  25,
			TokenPercentage:     25,
			SSHPercentage:       25,
		})
		draws := []float64{0.0, 0.249, 0.25, 0.49, 0.5, 0.74, 0.75, 0.99}
		i := 0
		orch.randFloat = func() float64 {
			draw := draws[i%len(draws)]
			i++
			return draw
		}
		got := orch.assignMechanisms(sim, len(draws))
		assert.Equal(t, []lms.AuthMechanism{
			lms.AuthOnlineIDE, lms.AuthOnlineIDE,
			lms.AuthPassword, lms.AuthPassword,
			lms.AuthToken, lms.AuthToken,
			lms.AuthSSH, lms.AuthSSH,
		}, got)
	})
}
