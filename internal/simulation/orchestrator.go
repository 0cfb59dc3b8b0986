// ABOUTME: Orchestrator driving one run through its phases to a terminal state.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/examload/examload/internal/accounts"
	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/dispatch"
	"github.com/examload/examload/internal/lms"
	"github.com/examload/examload/internal/models"
	"github.com/examload/examload/internal/secrets"
	"github.com/examload/examload/internal/stats"
)

const (
	// participationWorkersPerCPU bounds fan-out concurrency per CPU.
	participationWorkersPerCPU = 10
	// settleDelay gives downstream systems time to pick up the rewritten
	// exam start date before load begins.
	settleDelay = 5 * time.Second
	// groupSyncWait covers the target's asynchronous propagation of course
	// group membership after registration.
	groupSyncWait = time.Minute
	// cleanupJobWait sits between build job cancellation and resource
	// deletion so the CI system can settle.
	cleanupJobWait = 10 * time.Second
	// cleanupTimeout bounds the detached cleanup of created resources.
	cleanupTimeout = 5 * time.Minute
)

// ErrUnknownTarget is returned when a simulation references a target server
// that is not configured.
var ErrUnknownTarget = errors.New("unknown target server")

// OrchestratorConfig collects the collaborators of an Orchestrator.
type OrchestratorConfig struct {
	Store    *db.Store
	Targets  map[models.TargetServer]config.Target
	Drivers  DriverFactory
	Cipher   *secrets.Cipher
	Notifier Notifier
	Metrics  *Metrics
	Logger   *log.Logger

	// TestMode skips the settle, group-sync, and cleanup waits.
	TestMode bool
}

// Orchestrator executes runs one at a time. It owns the run entity while the
// run is RUNNING; nothing else mutates it concurrently.
type Orchestrator struct {
	store    *db.Store
	targets  map[models.TargetServer]config.Target
	drivers  DriverFactory
	cipher   *secrets.Cipher
	notifier Notifier
	metrics  *Metrics
	logger   *log.Logger
	testMode bool

	mu        sync.Mutex
	now       func() time.Time
	randFloat func() float64
}

var _ Executor = (*Orchestrator)(nil)

// NewOrchestrator creates an orchestrator. Notifier and Logger default to
// log-backed implementations when nil.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	return &Orchestrator{
		store:     cfg.Store,
		targets:   cfg.Targets,
		drivers:   cfg.Drivers,
		cipher:    cfg.Cipher,
		notifier:  notifier,
		metrics:   cfg.Metrics,
		logger:    logger,
		testMode:  cfg.TestMode,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// Execute runs one simulation run to a terminal state. It never returns a
// run in a non-terminal state and never panics the queue consumer.
func (o *Orchestrator) Execute(ctx context.Context, run *models.SimulationRun) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := o.now()
	err := o.simulate(ctx, run)
	elapsed := o.now().Sub(started).Seconds()
	o.metrics.SetActiveParticipants(0)

	switch {
	case err == nil:
		o.setStatus(run, models.RunFinished)
	case errors.Is(err, context.Canceled):
		o.logRun(run, "Run cancelled", true)
		o.setStatus(run, models.RunCancelled)
	default:
		o.logRun(run, fmt.Sprintf("Run failed: %v", err), true)
		o.setStatus(run, models.RunFailed)
	}
	o.metrics.RunCompleted(string(run.Status), elapsed)
}

func (o *Orchestrator) simulate(ctx context.Context, run *models.SimulationRun) error {
	// Mark the run RUNNING before any setup work so even a run that fails
	// while loading its simulation passes through the RUNNING state.
	o.setStatus(run, models.RunRunning)

	sim, err := o.store.GetSimulation(ctx, run.SimulationID)
	if err != nil {
		return fmt.Errorf("load simulation: %w", err)
	}
	target, ok := o.targets[sim.Server]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTarget, sim.Server)
	}

	o.logRun(run, fmt.Sprintf("Starting simulation %q against %s with %d users", sim.Name, sim.Server, sim.NumberOfUsers), false)

	provider := &accounts.Provider{
		Server: sim.Server,
		Pattern: accounts.Pattern{
			Username: target.UsernamePattern,
			Password: target.PasswordPattern,
		},
		Admin:      models.Account{Username: target.AdminUsername, Password: target.AdminPassword},
		Production: target.Production,
	}
	participants, err := provider.ParticipantsFor(sim)
	if err != nil {
		return fmt.Errorf("resolve participants: %w", err)
	}
	o.metrics.SetActiveParticipants(len(participants))

	var admin lms.AdminActions
	if sim.Mode != models.ModeExistingCoursePreparedExam {
		account, err := o.adminAccount(run, sim, target, provider)
		if err != nil {
			return err
		}
		admin = o.drivers.Admin(target, account, o.logger)
		if err := admin.Login(ctx); err != nil {
			return fmt.Errorf("admin login: %w", err)
		}
	}

	courseID := sim.CourseID
	examID := sim.ExamID
	var sideExerciseID int64
	var createdCourseID, createdExamID int64

	// fail wraps a fatal setup error with compensation for resources this
	// run created so far.
	fail := func(err error) error {
		o.cleanupAsync(run, target, admin, createdCourseID, createdExamID, courseID)
		return err
	}

	if sim.Mode != models.ModeExistingCoursePreparedExam {
		var course lms.Course
		if sim.Mode.CreatesCourse() {
			course, err = admin.CreateCourse(ctx)
			if err != nil {
				return fmt.Errorf("create course: %w", err)
			}
			createdCourseID = course.ID
			courseID = course.ID
			o.logRun(run, fmt.Sprintf("Created course %d", course.ID), false)

			if err := admin.RegisterParticipants(ctx, course.ID, usernames(participants)); err != nil {
				return fail(fmt.Errorf("register participants: %w", err))
			}
			o.logRun(run, fmt.Sprintf("Registered %d participants for course %d", len(participants), course.ID), false)
			if err := o.wait(ctx, groupSyncWait); err != nil {
				return fail(err)
			}
		} else {
			course, err = admin.GetCourse(ctx, sim.CourseID)
			if err != nil {
				return fmt.Errorf("fetch course %d: %w", sim.CourseID, err)
			}
		}

		side, err := admin.CreateCourseExercise(ctx, course)
		if err != nil {
			return fail(fmt.Errorf("create side exercise: %w", err))
		}
		sideExerciseID = side.ID

		if sim.Mode.CreatesExam() {
			exam, err := admin.CreateExam(ctx, course)
			if err != nil {
				return fail(fmt.Errorf("create exam: %w", err))
			}
			createdExamID = exam.ID
			examID = exam.ID
			o.logRun(run, fmt.Sprintf("Created exam %d", exam.ID), false)

			if err := admin.CreateExamExercises(ctx, course.ID, exam); err != nil {
				return fail(fmt.Errorf("create exam exercises: %w", err))
			}
			if err := admin.RegisterParticipantsForExam(ctx, course.ID, exam.ID); err != nil {
				return fail(fmt.Errorf("register participants for exam: %w", err))
			}
		}

		o.logRun(run, "Preparing exam for conduction", false)
		prepStart := o.now()
		if err := admin.PrepareExam(ctx, courseID, examID); err != nil {
			return fail(fmt.Errorf("prepare exam: %w", err))
		}
		o.metrics.PhaseCompleted("prepare_exam", o.now().Sub(prepStart).Seconds())

		if err := o.wait(ctx, settleDelay); err != nil {
			return fail(err)
		}
	}

	actors := o.buildParticipants(sim, target, participants)
	limit := dispatch.Limit(participationWorkersPerCPU, len(actors))

	var samples []lms.RequestSample
	collect := func(phase string, tasks []dispatch.Task) error {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		start := o.now()
		phaseSamples := dispatch.RunAll(ctx, tasks, limit, o.logger)
		o.metrics.PhaseCompleted(phase, o.now().Sub(start).Seconds())
		for _, sample := range phaseSamples {
			o.metrics.RequestObserved(string(sample.Category), sample.Duration.Seconds())
		}
		samples = append(samples, phaseSamples...)
		return nil
	}

	o.logRun(run, fmt.Sprintf("Logging in %d participants", len(actors)), false)
	if err := collect("login", loginTasks(actors)); err != nil {
		return err
	}
	if err := collect("startup_calls", startupTasks(actors)); err != nil {
		return err
	}

	// The build queue snapshot starts the clock at the same moment load is
	// first applied to the exam.
	if target.Local && admin != nil {
		o.snapshotBuildQueue(ctx, run, admin, courseID)
	}

	o.logRun(run, "Participants are starting the exam", false)
	if err := collect("begin_participation", beginTasks(actors, courseID, examID, sideExerciseID)); err != nil {
		return err
	}
	o.logRun(run, "Participants are working on the exam", false)
	if err := collect("participate", participateTasks(actors, courseID, examID)); err != nil {
		return err
	}
	if err := collect("submit", submitTasks(actors, courseID, examID)); err != nil {
		return err
	}

	aggregated := stats.AggregateFor(&sim, samples)
	if err := o.store.SaveRunStats(context.Background(), run.ID, aggregated); err != nil {
		return fmt.Errorf("save run stats: %w", err)
	}
	o.logRun(run, fmt.Sprintf("Collected %d request samples", len(samples)), false)
	o.notifier.RunResultReady(run)

	if target.CleanupEnabled {
		o.cleanupAsync(run, target, admin, createdCourseID, createdExamID, courseID)
	} else if target.Local && admin != nil {
		watcher := &BuildQueueWatcher{
			Store:    o.store,
			Notifier: o.notifier,
			Logger:   o.logger,
		}
		go watcher.Watch(context.Background(), run, admin, courseID)
	}
	return nil
}

// adminAccount resolves the administrative actor for the run. Operator
// override wins; production targets fall back to the simulation's instructor
// credentials; everything else uses the managed pool.
func (o *Orchestrator) adminAccount(run *models.SimulationRun, sim models.Simulation, target config.Target, provider *accounts.Provider) (models.Account, error) {
	if run.AdminAccount != nil && run.AdminAccount.Provided() {
		return *run.AdminAccount, nil
	}
	if target.Production {
		if sim.InstructorCredentialsProvided() {
			password, err := o.decrypt(sim.InstructorPassword)
			if err != nil {
				return models.Account{}, fmt.Errorf("decrypt instructor password: %w", err)
			}
			return models.Account{Username: sim.InstructorUsername, Password: password}, nil
		}
		return models.Account{}, errors.New("production target requires an admin account or instructor credentials")
	}
	return provider.AdminAccount()
}

func (o *Orchestrator) decrypt(value string) (string, error) {
	if o.cipher == nil {
		return value, nil
	}
	return o.cipher.Decrypt(value)
}

func (o *Orchestrator) buildParticipants(sim models.Simulation, target config.Target, accts []models.Account) []lms.ParticipantActions {
	mechanisms := o.assignMechanisms(sim, len(accts))
	actors := make([]lms.ParticipantActions, len(accts))
	for i, account := range accts {
		actors[i] = o.drivers.Participant(target, account, mechanisms[i], sim, o.logger)
	}
	return actors
}

// assignMechanisms draws an auth mechanism per participant according to the
// simulation's percentage mix.
func (o *Orchestrator) assignMechanisms(sim models.Simulation, n int) []lms.AuthMechanism {
	mechanisms := make([]lms.AuthMechanism, n)
	for i := range mechanisms {
		draw := o.randFloat() * 100
		switch {
		case draw < sim.OnlineIDEPercentage:
			mechanisms[i] = lms.AuthOnlineIDE
		case draw < sim.OnlineIDEPercentage+sim.PasswordPercentage:
			mechanisms[i] = lms.AuthPassword
		case draw < sim.OnlineIDEPercentage+sim.PasswordPercentage+sim.TokenPercentage:
			mechanisms[i] = lms.AuthToken
		default:
			mechanisms[i] = lms.AuthSSH
		}
	}
	return mechanisms
}

// snapshotBuildQueue writes the initial CI status row. Failures are logged,
// never fatal; CI visibility is best effort.
func (o *Orchestrator) snapshotBuildQueue(ctx context.Context, run *models.SimulationRun, admin lms.AdminActions, courseID int64) {
	size, err := admin.GetBuildQueueSize(ctx, courseID)
	if err != nil {
		o.logger.Printf("run %s: build queue snapshot: %v", run.ID, err)
		return
	}
	status := models.CiStatus{
		RunID:      run.ID,
		TotalJobs:  size,
		QueuedJobs: size,
	}
	if err := o.store.UpsertCiStatus(ctx, status); err != nil {
		o.logger.Printf("run %s: persist ci status: %v", run.ID, err)
		return
	}
	o.notifier.CiStatusChanged(run, status)
}

// cleanupAsync launches compensation for resources this run created. It runs
// detached so the queue can start the next run immediately; failures are
// logged and never change the run's terminal status.
func (o *Orchestrator) cleanupAsync(run *models.SimulationRun, target config.Target, admin lms.AdminActions, createdCourseID, createdExamID, courseID int64) {
	if !target.CleanupEnabled || admin == nil {
		return
	}
	if createdCourseID == 0 && createdExamID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		if err := admin.CancelQueuedBuildJobs(ctx); err != nil {
			o.logRun(run, fmt.Sprintf("Cleanup: cancel queued build jobs: %v", err), true)
		}
		if err := admin.CancelRunningBuildJobs(ctx); err != nil {
			o.logRun(run, fmt.Sprintf("Cleanup: cancel running build jobs: %v", err), true)
		}
		if err := o.wait(ctx, cleanupJobWait); err != nil {
			return
		}

		switch {
		case createdCourseID != 0:
			if err := admin.DeleteCourse(ctx, createdCourseID); err != nil {
				o.logRun(run, fmt.Sprintf("Cleanup: delete course %d: %v", createdCourseID, err), true)
				return
			}
			o.logRun(run, fmt.Sprintf("Cleanup: deleted course %d", createdCourseID), false)
		case createdExamID != 0:
			if err := admin.DeleteExam(ctx, courseID, createdExamID); err != nil {
				o.logRun(run, fmt.Sprintf("Cleanup: delete exam %d: %v", createdExamID, err), true)
				return
			}
			o.logRun(run, fmt.Sprintf("Cleanup: deleted exam %d", createdExamID), false)
		}
	}()
}

// wait sleeps for d unless cancelled first. Waits collapse to zero in test
// mode.
func (o *Orchestrator) wait(ctx context.Context, d time.Duration) error {
	if o.testMode {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// setStatus persists a status transition and notifies observers. Uses a
// background context so cancelled runs still reach CANCELLED durably.
func (o *Orchestrator) setStatus(run *models.SimulationRun, status models.RunStatus) {
	if err := o.store.UpdateRunStatus(context.Background(), run.ID, status); err != nil {
		o.logger.Printf("run %s: persist status %s: %v", run.ID, status, err)
	}
	run.Status = status
	if status.Terminal() {
		now := o.now()
		run.EndTime = &now
	}
	o.notifier.RunStatusChanged(run)
}

// logRun appends an operator-visible log entry to the run.
func (o *Orchestrator) logRun(run *models.SimulationRun, message string, isError bool) {
	msg, err := o.store.AppendLogMessage(context.Background(), models.LogMessage{
		RunID:     run.ID,
		Timestamp: o.now(),
		Message:   message,
		Error:     isError,
	})
	if err != nil {
		o.logger.Printf("run %s: append log: %v", run.ID, err)
		return
	}
	o.notifier.RunLogAppended(run, msg)
}

func usernames(accts []models.Account) []string {
	names := make([]string, len(accts))
	for i, account := range accts {
		names[i] = account.Username
	}
	return names
}

func loginTasks(actors []lms.ParticipantActions) []dispatch.Task {
	tasks := make([]dispatch.Task, len(actors))
	for i, actor := range actors {
		tasks[i] = actor.Login
	}
	return tasks
}

func startupTasks(actors []lms.ParticipantActions) []dispatch.Task {
	tasks := make([]dispatch.Task, len(actors))
	for i, actor := range actors {
		tasks[i] = actor.PerformStartupCalls
	}
	return tasks
}

func beginTasks(actors []lms.ParticipantActions, courseID, examID, sideExerciseID int64) []dispatch.Task {
	tasks := make([]dispatch.Task, len(actors))
	for i, actor := range actors {
		tasks[i] = func(ctx context.Context) ([]lms.RequestSample, error) {
			return actor.BeginExamParticipation(ctx, courseID, examID, sideExerciseID)
		}
	}
	return tasks
}

func participateTasks(actors []lms.ParticipantActions, courseID, examID int64) []dispatch.Task {
	tasks := make([]dispatch.Task, len(actors))
	for i, actor := range actors {
		tasks[i] = func(ctx context.Context) ([]lms.RequestSample, error) {
			return actor.ParticipateInExam(ctx, courseID, examID)
		}
	}
	return tasks
}

func submitTasks(actors []lms.ParticipantActions, courseID, examID int64) []dispatch.Task {
	tasks := make([]dispatch.Task, len(actors))
	for i, actor := range actors {
		tasks[i] = func(ctx context.Context) ([]lms.RequestSample, error) {
			return actor.SubmitAndEndExam(ctx, courseID, examID)
		}
	}
	return tasks
}
