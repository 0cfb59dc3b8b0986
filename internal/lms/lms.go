// Package lms defines the boundary to the target learning-management system.
//
// The orchestrator never talks to the target directly; it consumes the
// AdminActions and ParticipantActions capability interfaces defined here.
// Concrete adapters (REST + git) live alongside the interfaces, and every
// participant call reports its observed work as RequestSample values.
package lms

import (
	"context"
	"time"
)

// RequestCategory classifies a timed request for aggregation.
type RequestCategory string

const (
	// CategoryTotal is the synthetic category spanning all samples of a run.
	CategoryTotal RequestCategory = "TOTAL"
	// CategoryAuthentication covers login requests.
	CategoryAuthentication RequestCategory = "AUTHENTICATION"
	// CategoryGetStudentExam covers fetching the student exam on navigation.
	CategoryGetStudentExam RequestCategory = "GET_STUDENT_EXAM"
	// CategoryStartStudentExam covers starting the exam conduction.
	CategoryStartStudentExam RequestCategory = "START_STUDENT_EXAM"
	// CategorySubmitExercise covers individual exercise submissions.
	CategorySubmitExercise RequestCategory = "SUBMIT_EXERCISE"
	// CategorySubmitStudentExam covers the final exam submission.
	CategorySubmitStudentExam RequestCategory = "SUBMIT_STUDENT_EXAM"
	// CategoryMisc covers auxiliary navigation and settings calls.
	CategoryMisc RequestCategory = "MISC"
	// CategoryProgrammingResult covers polling programming exercise results
	// from the online IDE.
	CategoryProgrammingResult RequestCategory = "PROGRAMMING_EXERCISE_RESULT"
	// CategoryRepositoryInfo covers online IDE repository metadata calls.
	CategoryRepositoryInfo RequestCategory = "REPOSITORY_INFO"
	// CategoryRepositoryFiles covers online IDE repository file calls.
	CategoryRepositoryFiles RequestCategory = "REPOSITORY_FILES"
	// CategoryCloneSSH covers repository clones over SSH.
	CategoryCloneSSH RequestCategory = "CLONE_SSH"
	// CategoryPushSSH covers pushes over SSH.
	CategoryPushSSH RequestCategory = "PUSH_SSH"
	// CategoryCloneToken covers clones over HTTPS with a participation token.
	CategoryCloneToken RequestCategory = "CLONE_TOKEN"
	// CategoryPushToken covers pushes over HTTPS with a participation token.
	CategoryPushToken RequestCategory = "PUSH_TOKEN"
	// CategoryClonePassword covers clones over HTTPS with password auth.
	CategoryClonePassword RequestCategory = "CLONE_PASSWORD"
	// CategoryPushPassword covers pushes over HTTPS with password auth.
	CategoryPushPassword RequestCategory = "PUSH_PASSWORD"
)

// RequestSample is one timed, categorized unit of observed work. Samples are
// immutable facts; they are created by participant calls and consumed only
// by the stats aggregator.
type RequestSample struct {
	Timestamp time.Time
	Duration  time.Duration
	Category  RequestCategory
}

// Sample records a sample for the given category with the current time.
func Sample(category RequestCategory, start time.Time, duration time.Duration) RequestSample {
	return RequestSample{Timestamp: start, Duration: duration, Category: category}
}

// AuthMechanism is the authentication variant a simulated participant uses
// for repository access.
type AuthMechanism string

const (
	// AuthOnlineIDE edits code through the target's online IDE, no clone.
	AuthOnlineIDE AuthMechanism = "ONLINE_IDE"
	// AuthPassword clones and pushes over HTTPS with username/password.
	AuthPassword AuthMechanism = "PASSWORD"
	// AuthToken clones and pushes over HTTPS with a participation token.
	AuthToken AuthMechanism = "PARTICIPATION_TOKEN"
	// AuthSSH clones and pushes over SSH.
	AuthSSH AuthMechanism = "SSH"
)

// ExerciseKind is the closed set of exercise variants a student exam can
// contain. Dispatch on the kind is exhaustive; there is no open hierarchy.
type ExerciseKind string

const (
	ExerciseModeling    ExerciseKind = "MODELING"
	ExerciseText        ExerciseKind = "TEXT"
	ExerciseQuiz        ExerciseKind = "QUIZ"
	ExerciseProgramming ExerciseKind = "PROGRAMMING"
	ExerciseFileUpload  ExerciseKind = "FILE_UPLOAD"
)

// Course identifies a course on the target system.
type Course struct {
	ID    int64
	Title string
}

// Exam identifies an exam on the target system together with the dates the
// harness manipulates during preparation.
type Exam struct {
	ID          int64
	CourseID    int64
	Title       string
	VisibleDate time.Time
	StartDate   time.Time
	EndDate     time.Time
}

// Exercise is one exercise assigned to a student exam.
type Exercise struct {
	ID              int64
	Kind            ExerciseKind
	ParticipationID int64
	// RepositoryURI is set for programming exercises only.
	RepositoryURI string
}

// PreparationStatus reports progress of per-student exam provisioning.
// Preparation is complete when Finished+Failed == Overall.
type PreparationStatus struct {
	Finished int
	Failed   int
	Overall  int
}

// Done reports whether preparation has finished for all students.
func (p PreparationStatus) Done() bool {
	return p.Finished+p.Failed >= p.Overall
}

// AdminActions is the administrative capability set the orchestrator uses
// for setup, preparation, and teardown. Admin calls do not produce samples;
// only participant traffic is measured.
type AdminActions interface {
	// Login authenticates the admin session.
	Login(ctx context.Context) error
	// CreateCourse creates a fresh course for the run.
	CreateCourse(ctx context.Context) (Course, error)
	// GetCourse fetches an existing course.
	GetCourse(ctx context.Context, courseID int64) (Course, error)
	// DeleteCourse removes a course and everything in it.
	DeleteCourse(ctx context.Context, courseID int64) error
	// CreateExam creates a fresh exam in the course with dates in the future.
	CreateExam(ctx context.Context, course Course) (Exam, error)
	// CreateExamExercises creates the exercise groups and exercises of the exam.
	CreateExamExercises(ctx context.Context, courseID int64, exam Exam) error
	// DeleteExam removes an exam without touching the course.
	DeleteExam(ctx context.Context, courseID, examID int64) error
	// CreateCourseExercise creates the benchmarking-only side exercise used
	// to generate auxiliary traffic during participation.
	CreateCourseExercise(ctx context.Context, course Course) (Exercise, error)
	// RegisterParticipants registers the given usernames for the course.
	RegisterParticipants(ctx context.Context, courseID int64, usernames []string) error
	// RegisterParticipantsForExam registers all course students for the exam.
	RegisterParticipantsForExam(ctx context.Context, courseID, examID int64) error
	// PrepareExam generates per-student exams, provisions exercise
	// repositories, polls the preparation status until done, and rewrites
	// the exam start date to now. Blocks until preparation completes or
	// ctx is cancelled.
	PrepareExam(ctx context.Context, courseID, examID int64) error
	// CancelQueuedBuildJobs cancels CI jobs that have not started yet.
	CancelQueuedBuildJobs(ctx context.Context) error
	// CancelRunningBuildJobs cancels CI jobs that are currently executing.
	CancelRunningBuildJobs(ctx context.Context) error
	// GetBuildQueueSize returns the number of queued CI jobs for the course.
	GetBuildQueueSize(ctx context.Context, courseID int64) (int, error)
}

// ParticipantActions is one simulated end-user session driving calls
// against the target system. Every call returns the samples it observed;
// partial samples are returned alongside an error.
type ParticipantActions interface {
	// Username identifies the participant in logs.
	Username() string
	// Login authenticates the participant session.
	Login(ctx context.Context) ([]RequestSample, error)
	// PerformStartupCalls performs the miscellaneous calls a real client
	// issues after login (account, notifications, dashboard).
	PerformStartupCalls(ctx context.Context) ([]RequestSample, error)
	// BeginExamParticipation navigates into the exam and starts conduction.
	// The side exercise generates realistic auxiliary traffic.
	BeginExamParticipation(ctx context.Context, courseID, examID, sideExerciseID int64) ([]RequestSample, error)
	// ParticipateInExam solves and submits the assigned exercises,
	// including repeated commit+push rounds for programming exercises.
	ParticipateInExam(ctx context.Context, courseID, examID int64) ([]RequestSample, error)
	// SubmitAndEndExam submits the student exam and ends participation.
	SubmitAndEndExam(ctx context.Context, courseID, examID int64) ([]RequestSample, error)
}
