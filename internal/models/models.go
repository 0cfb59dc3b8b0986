// Package models provides data structures and constants for examload.
//
// This package contains the core domain models used throughout examload:
//   - Simulation: Reusable definition of an exam load test
//   - SimulationRun: One timed execution attempt of a Simulation
//   - SimulationSchedule: Recurrence rule that re-queues runs automatically
//   - LogMessage: Operator-visible log line attached to a run
//   - CiStatus: Snapshot of the target's build queue during and after a run
//
// All models are designed for database persistence and JSON serialization.
package models

import (
	"strconv"
	"strings"
	"time"
)

// RunStatus represents the current status of a simulation run in its lifecycle.
//
// Run state transitions:
//
//	QUEUED → RUNNING → (FINISHED|FAILED|CANCELLED)
//
// Terminal states never restart; a run is never reused.
type RunStatus string

const (
	// RunQueued is the initial state when a run is created and waiting in the queue.
	RunQueued RunStatus = "QUEUED"
	// RunRunning indicates the run is actively executing. At most one run
	// is RUNNING at any time, system-wide.
	RunRunning RunStatus = "RUNNING"
	// RunFinished indicates all phases completed.
	RunFinished RunStatus = "FINISHED"
	// RunFailed indicates an unrecoverable phase error aborted the run.
	RunFailed RunStatus = "FAILED"
	// RunCancelled indicates the run was cancelled by an operator while RUNNING.
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status is one of the terminal run states.
func (s RunStatus) Terminal() bool {
	return s == RunFinished || s == RunFailed || s == RunCancelled
}

// Mode selects which setup phases a run performs against the target system.
type Mode string

const (
	// ModeCreateCourseAndExam creates a fresh course and a fresh exam.
	ModeCreateCourseAndExam Mode = "CREATE_COURSE_AND_EXAM"
	// ModeExistingCourseUnpreparedExam uses an existing course and an
	// existing exam that still needs preparation.
	ModeExistingCourseUnpreparedExam Mode = "EXISTING_COURSE_UNPREPARED_EXAM"
	// ModeExistingCoursePreparedExam uses a fully prepared course and exam.
	// No admin actor is required for this mode.
	ModeExistingCoursePreparedExam Mode = "EXISTING_COURSE_PREPARED_EXAM"
	// ModeExistingCourseCreateExam creates a fresh exam on an existing course.
	ModeExistingCourseCreateExam Mode = "EXISTING_COURSE_CREATE_EXAM"
)

// Valid reports whether m is one of the known simulation modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeCreateCourseAndExam, ModeExistingCourseUnpreparedExam,
		ModeExistingCoursePreparedExam, ModeExistingCourseCreateExam:
		return true
	}
	return false
}

// CreatesCourse reports whether runs in this mode create a course during setup.
func (m Mode) CreatesCourse() bool {
	return m == ModeCreateCourseAndExam
}

// CreatesExam reports whether runs in this mode create an exam during setup.
func (m Mode) CreatesExam() bool {
	return m == ModeCreateCourseAndExam || m == ModeExistingCourseCreateExam
}

// TargetServer names a configured target system (e.g. "production", "staging").
type TargetServer string

// Account holds credentials for an administrative or instructor login.
// Passwords must never be serialized to clients.
type Account struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// Provided reports whether both username and password are set.
func (a Account) Provided() bool {
	return strings.TrimSpace(a.Username) != "" && strings.TrimSpace(a.Password) != ""
}

// Simulation is the reusable definition describing what a run should do.
//
// A simulation is created by an operator and referenced, never owned, by
// every run executed for it. It may only be mutated before any run exists.
type Simulation struct {
	ID            string
	Name          string
	NumberOfUsers int
	CourseID      int64
	ExamID        int64
	Server        TargetServer
	Mode          Mode
	CreationDate  time.Time

	// CustomizeUserRange selects an explicit participant-index range
	// (UserRange) instead of indices 1..NumberOfUsers.
	CustomizeUserRange bool
	UserRange          string

	// Authentication mechanism mix. Percentages must be non-negative and,
	// when customized, sum to 100.
	OnlineIDEPercentage float64
	PasswordPercentage  float64
	TokenPercentage     float64
	SSHPercentage       float64

	// Commit/push count range for programming exercises. A participant
	// performs between CommitsFrom (inclusive) and CommitsTo (exclusive)
	// commit+push rounds.
	CommitsFrom int
	CommitsTo   int

	// Instructor credentials, only used for modes on existing courses
	// against production targets. Optional, but required for scheduled
	// simulations. Never sent to clients.
	InstructorUsername string `json:"-"`
	InstructorPassword string `json:"-"`
}

// InstructorCredentialsProvided reports whether instructor credentials are
// usable for this simulation. ModeCreateCourseAndExam needs admin rights,
// not instructor rights, so it never uses them.
func (s Simulation) InstructorCredentialsProvided() bool {
	if s.Mode == ModeCreateCourseAndExam {
		return false
	}
	return s.InstructorUsername != "" && s.InstructorPassword != ""
}

// EffectiveUserRange returns the participant-index range expression for this
// simulation, deriving "1-N" when no custom range is configured.
func (s Simulation) EffectiveUserRange() string {
	if s.CustomizeUserRange {
		return s.UserRange
	}
	return "1-" + strconv.Itoa(s.NumberOfUsers)
}

// SimulationRun is one timed execution attempt of a Simulation.
//
// A run is created QUEUED by the data layer, exclusively owned and mutated
// by the orchestrator while active, and ends in a terminal state.
type SimulationRun struct {
	ID           string
	SimulationID string
	Status       RunStatus
	StartTime    time.Time
	EndTime      *time.Time

	// AdminAccount optionally overrides the managed admin credentials for
	// this run. Not persisted; carried alongside the run through the queue.
	AdminAccount *Account

	// Schedule is the originating schedule, if the run was queued by the
	// schedule driver. Not persisted; re-attached after reload.
	Schedule *SimulationSchedule
}

// LogMessage is an operator-visible log line attached append-only to a run
// while it is active. Messages are capped at MaxLogMessageLen characters.
type LogMessage struct {
	ID        int64
	RunID     string
	Timestamp time.Time
	Message   string
	Error     bool
}

// MaxLogMessageLen is the persisted length cap for log messages.
const MaxLogMessageLen = 255

// Cycle is the recurrence cycle of a simulation schedule.
type Cycle string

const (
	// CycleDaily fires every day at the configured time of day.
	CycleDaily Cycle = "DAILY"
	// CycleWeekly fires every week on the configured weekday.
	CycleWeekly Cycle = "WEEKLY"
)

// SimulationSchedule is a recurrence rule describing when a run should be
// auto-queued again for a simulation.
type SimulationSchedule struct {
	ID           string
	SimulationID string
	Cycle        Cycle

	// TimeOfDay carries only the clock part; its date fields are ignored.
	TimeOfDay time.Time

	// DayOfWeek is required for CycleWeekly and must be nil for CycleDaily.
	// A pointer keeps "unset" distinct from Sunday.
	DayOfWeek *time.Weekday

	StartDateTime time.Time
	EndDateTime   *time.Time

	// NextRun is recomputed after every fire or edit.
	NextRun time.Time

	Subscribers []ScheduleSubscriber
}

// ScheduleSubscriber is a notification subscription on a schedule. The key
// authorizes unsubscribing without authentication.
type ScheduleSubscriber struct {
	ID         int64
	ScheduleID string
	Email      string
	Key        string
}

// CiStatus is a snapshot of the target's CI build queue for one run. It is
// created immediately before load is first applied and updated while the
// build queue drains.
type CiStatus struct {
	ID               int64
	RunID            string
	Finished         bool
	TotalJobs        int
	QueuedJobs       int
	TimeInMinutes    int
	AvgJobsPerMinute float64
}
