// ABOUTME: Data service validating and persisting simulations, runs, and schedules.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/examload/examload/internal/accounts"
	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/models"
	"github.com/examload/examload/internal/schedule"
	"github.com/examload/examload/internal/secrets"
)

var (
	// ErrAdminRequired is returned when queueing a run that needs elevated
	// rights on a production target without any usable account.
	ErrAdminRequired = errors.New("production target requires an admin account or instructor credentials")
	// ErrInstructorRequired is returned when scheduling a simulation on a
	// production target without stored instructor credentials.
	ErrInstructorRequired = errors.New("scheduled simulations on production targets require instructor credentials")
	// ErrSimulationActive is returned when deleting a simulation that still
	// has queued or running runs.
	ErrSimulationActive = errors.New("simulation has active runs")
)

// Service is the validation and persistence front of the daemon. It owns
// everything up to the point a run enters the queue; the orchestrator owns
// the run from there.
type Service struct {
	store    *db.Store
	queue    *RunQueue
	targets  map[models.TargetServer]config.Target
	cipher   *secrets.Cipher
	notifier Notifier
	logger   *log.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a service. Notifier and logger default when nil.
func NewService(store *db.Store, queue *RunQueue, targets map[models.TargetServer]config.Target, cipher *secrets.Cipher, notifier Notifier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if notifier == nil {
		notifier = &LogNotifier{Logger: logger}
	}
	return &Service{
		store:    store,
		queue:    queue,
		targets:  targets,
		cipher:   cipher,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

var _ schedule.Enqueuer = (*Service)(nil)

// CreateSimulation validates, normalizes, and persists a new simulation.
// The instructor password, if present, is stored encrypted.
func (s *Service) CreateSimulation(ctx context.Context, sim models.Simulation) (models.Simulation, error) {
	if err := s.validateSimulation(&sim); err != nil {
		return models.Simulation{}, err
	}
	if sim.InstructorPassword != "" {
		encrypted, err := s.encrypt(sim.InstructorPassword)
		if err != nil {
			return models.Simulation{}, fmt.Errorf("encrypt instructor password: %w", err)
		}
		sim.InstructorPassword = encrypted
	}
	sim.ID = s.newID()
	sim.CreationDate = s.now().UTC()
	if err := s.store.CreateSimulation(ctx, sim); err != nil {
		return models.Simulation{}, err
	}
	return sim, nil
}

func (s *Service) validateSimulation(sim *models.Simulation) error {
	if strings.TrimSpace(sim.Name) == "" {
		return errors.New("simulation name must not be empty")
	}
	if !sim.Mode.Valid() {
		return fmt.Errorf("invalid simulation mode %q", sim.Mode)
	}
	if _, ok := s.targets[sim.Server]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownTarget, sim.Server)
	}

	switch sim.Mode {
	case models.ModeExistingCourseCreateExam:
		if sim.CourseID <= 0 {
			return errors.New("mode requires an existing course id")
		}
	case models.ModeExistingCourseUnpreparedExam, models.ModeExistingCoursePreparedExam:
		if sim.CourseID <= 0 || sim.ExamID <= 0 {
			return errors.New("mode requires existing course and exam ids")
		}
	}

	if sim.CustomizeUserRange {
		indices, err := accounts.ParseNumberRange(sim.UserRange)
		if err != nil {
			return fmt.Errorf("user range: %w", err)
		}
		sim.NumberOfUsers = len(indices)
	} else if sim.NumberOfUsers <= 0 {
		return errors.New("number of users must be positive")
	}

	mix := []float64{sim.OnlineIDEPercentage, sim.PasswordPercentage, sim.TokenPercentage, sim.SSHPercentage}
	var sum float64
	for _, p := range mix {
		if p < 0 {
			return errors.New("authentication percentages must not be negative")
		}
		sum += p
	}
	if sum == 0 {
		sim.OnlineIDEPercentage = 100
	} else if math.Abs(sum-100) > 1e-9 {
		return fmt.Errorf("authentication percentages must sum to 100, got %g", sum)
	}

	if sim.CommitsFrom == 0 && sim.CommitsTo == 0 {
		sim.CommitsFrom = 8
		sim.CommitsTo = 15
	}
	if sim.CommitsFrom < 1 || sim.CommitsTo <= sim.CommitsFrom {
		return errors.New("commit range must satisfy 1 <= from < to")
	}
	return nil
}

// UpdateInstructorCredentials replaces the stored instructor account of a
// simulation. The password is encrypted before it reaches the store.
func (s *Service) UpdateInstructorCredentials(ctx context.Context, simulationID, username, password string) error {
	encrypted, err := s.encrypt(password)
	if err != nil {
		return fmt.Errorf("encrypt instructor password: %w", err)
	}
	return s.store.UpdateSimulationInstructor(ctx, simulationID, username, encrypted)
}

// DeleteSimulation removes a simulation and everything attached to it, but
// refuses while any of its runs is queued or running.
func (s *Service) DeleteSimulation(ctx context.Context, id string) error {
	runs, err := s.store.ListRunsForSimulation(ctx, id)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if !run.Status.Terminal() {
			return fmt.Errorf("%w: run %s is %s", ErrSimulationActive, run.ID, run.Status)
		}
	}
	return s.store.DeleteSimulation(ctx, id)
}

// CreateAndQueueRun creates a QUEUED run for the simulation and hands it to
// the queue. adminAccount optionally overrides the managed admin credentials
// for this run only; it is never persisted.
func (s *Service) CreateAndQueueRun(ctx context.Context, simulationID string, adminAccount *models.Account) (models.SimulationRun, error) {
	sim, err := s.store.GetSimulation(ctx, simulationID)
	if err != nil {
		return models.SimulationRun{}, err
	}
	return s.queueRun(ctx, sim, adminAccount, nil)
}

// QueueScheduledRun enqueues a run fired by the schedule driver. The rule is
// carried on the run so observers can attribute it; production targets must
// have instructor credentials stored since no operator is present to supply
// an account.
func (s *Service) QueueScheduledRun(rule *models.SimulationSchedule) error {
	ctx := context.Background()
	sim, err := s.store.GetSimulation(ctx, rule.SimulationID)
	if err != nil {
		return err
	}
	_, err = s.queueRun(ctx, sim, nil, rule)
	return err
}

func (s *Service) queueRun(ctx context.Context, sim models.Simulation, adminAccount *models.Account, rule *models.SimulationSchedule) (models.SimulationRun, error) {
	target, ok := s.targets[sim.Server]
	if !ok {
		return models.SimulationRun{}, fmt.Errorf("%w %q", ErrUnknownTarget, sim.Server)
	}
	needsElevated := sim.Mode != models.ModeExistingCoursePreparedExam
	if needsElevated && target.Production {
		supplied := adminAccount != nil && adminAccount.Provided()
		if !supplied && !sim.InstructorCredentialsProvided() {
			return models.SimulationRun{}, ErrAdminRequired
		}
	}

	run := models.SimulationRun{
		ID:           s.newID(),
		SimulationID: sim.ID,
		Status:       models.RunQueued,
		StartTime:    s.now().UTC(),
		AdminAccount: adminAccount,
		Schedule:     rule,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return models.SimulationRun{}, err
	}
	s.notifier.RunQueued(&run)
	if err := s.queue.Enqueue(&run); err != nil {
		return models.SimulationRun{}, err
	}
	return run, nil
}

// RecoverQueuedRuns re-enqueues runs left QUEUED by a previous daemon
// lifetime, preserving their original order. Admin-account overrides and
// schedule attachments do not survive a restart.
func (s *Service) RecoverQueuedRuns(ctx context.Context) error {
	runs, err := s.store.ListQueuedRuns(ctx)
	if err != nil {
		return err
	}
	for i := range runs {
		if err := s.queue.Enqueue(&runs[i]); err != nil {
			return err
		}
	}
	if len(runs) > 0 {
		s.logger.Printf("recovered %d queued runs", len(runs))
	}
	return nil
}

// CancelActiveRun aborts the currently executing run. The orchestrator
// observes the cancellation and drives the run to CANCELLED; the queue
// consumer then proceeds with the next queued run.
func (s *Service) CancelActiveRun(ctx context.Context, runID string) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.RunRunning {
		return fmt.Errorf("run %s is %s, not %s", runID, run.Status, models.RunRunning)
	}
	return s.queue.AbortActive(runID)
}

// RemoveQueuedRun withdraws a run that has not started yet and deletes it.
func (s *Service) RemoveQueuedRun(ctx context.Context, runID string) error {
	if !s.queue.RemoveIfQueued(runID) {
		return fmt.Errorf("run %s is not queued", runID)
	}
	return s.store.DeleteRun(ctx, runID)
}

// CreateSchedule validates the rule, computes its first fire time, and
// persists it.
func (s *Service) CreateSchedule(ctx context.Context, rule models.SimulationSchedule) (models.SimulationSchedule, error) {
	if err := s.checkScheduleTarget(ctx, rule.SimulationID); err != nil {
		return models.SimulationSchedule{}, err
	}
	now := s.now().UTC()
	if err := schedule.Validate(&rule, now); err != nil {
		return models.SimulationSchedule{}, err
	}
	next, err := schedule.NextFire(&rule, now)
	if err != nil {
		return models.SimulationSchedule{}, err
	}
	rule.ID = s.newID()
	rule.NextRun = next
	if err := s.store.CreateSchedule(ctx, rule); err != nil {
		return models.SimulationSchedule{}, err
	}
	return rule, nil
}

// UpdateSchedule revalidates an edited rule and recomputes its next fire.
func (s *Service) UpdateSchedule(ctx context.Context, rule models.SimulationSchedule) (models.SimulationSchedule, error) {
	now := s.now().UTC()
	if err := schedule.Validate(&rule, now); err != nil {
		return models.SimulationSchedule{}, err
	}
	next, err := schedule.NextFire(&rule, now)
	if err != nil {
		return models.SimulationSchedule{}, err
	}
	rule.NextRun = next
	if err := s.store.UpdateSchedule(ctx, rule); err != nil {
		return models.SimulationSchedule{}, err
	}
	return rule, nil
}

// DeleteSchedule removes a rule and its subscribers.
func (s *Service) DeleteSchedule(ctx context.Context, scheduleID string) error {
	return s.store.DeleteSchedule(scheduleID)
}

func (s *Service) checkScheduleTarget(ctx context.Context, simulationID string) error {
	sim, err := s.store.GetSimulation(ctx, simulationID)
	if err != nil {
		return err
	}
	target, ok := s.targets[sim.Server]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTarget, sim.Server)
	}
	if target.Production && sim.Mode != models.ModeExistingCoursePreparedExam && !sim.InstructorCredentialsProvided() {
		return ErrInstructorRequired
	}
	return nil
}

// Subscribe registers an email for schedule notifications and returns the
// subscription with its unsubscribe key.
func (s *Service) Subscribe(ctx context.Context, scheduleID, email string) (models.ScheduleSubscriber, error) {
	if strings.TrimSpace(email) == "" || !strings.Contains(email, "@") {
		return models.ScheduleSubscriber{}, fmt.Errorf("invalid subscriber email %q", email)
	}
	sub := models.ScheduleSubscriber{
		ScheduleID: scheduleID,
		Email:      email,
		Key:        s.newID(),
	}
	return s.store.AddSubscriber(ctx, sub)
}

// Unsubscribe removes a subscription by its key. The key alone authorizes
// the removal.
func (s *Service) Unsubscribe(ctx context.Context, key string) error {
	removed, err := s.store.DeleteSubscriberByKey(ctx, key)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no subscription for key")
	}
	return nil
}

func (s *Service) encrypt(value string) (string, error) {
	if s.cipher == nil || value == "" {
		return value, nil
	}
	return s.cipher.Encrypt(value)
}
