// ABOUTME: Package testing provides shared test utilities and helper functions for examload.
//
// This package contains test helpers, factory functions for creating test data,
// and assertion utilities that promote consistent testing patterns across
// the examload codebase.
//
// Key utilities:
//   - Model factories: NewTestSimulation, NewTestRun, NewTestSchedule
//   - Test helpers: TempFile, OpenTestDB, AssertJSONEqual
//   - Test constants: FixedTime, TestServer, TestSimulationID
//
// The package is designed to work with github.com/stretchr/testify for
// assertions and follows Go testing best practices.
package testing

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examload/examload/internal/models"
)

// FixedTime is a fixed timestamp for deterministic tests.
//
// Using a fixed time ensures tests produce consistent results regardless of
// when they run. Use this as the default time for test model creation.
var FixedTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Common test constants used across the test suite.
//
// These constants provide consistent default values for test data,
// making tests more readable and reducing duplication.
const (
	TestServer       = "staging"
	TestSimulationID = "sim-test-1"
	TestRunID        = "run-test-1"
	TestScheduleID   = "sched-test-1"
)

// AssertJSONEqual asserts that two JSON values are semantically equal.
//
// This helper marshals both values to JSON and then compares the resulting
// JSON objects semantically, ignoring differences in whitespace and key order.
//
// Useful for comparing API responses or configuration structures.
func AssertJSONEqual(t *testing.T, want, got any, msgAndArgs ...interface{}) {
	t.Helper()
	wantBytes, err := json.Marshal(want)
	require.NoError(t, err, "failed to marshal 'want' to JSON")
	gotBytes, err := json.Marshal(got)
	require.NoError(t, err, "failed to marshal 'got' to JSON")

	var wantAny, gotAny any
	require.NoError(t, json.Unmarshal(wantBytes, &wantAny), "failed to unmarshal 'want'")
	require.NoError(t, json.Unmarshal(gotBytes, &gotAny), "failed to unmarshal 'got'")

	assert.Equal(t, wantAny, gotAny, msgAndArgs...)
}

// TempFile creates a temporary file with the given content and returns its path.
//
// The file is created in the test's temporary directory and automatically
// cleaned up when the test completes. Uses t.Helper() for correct line numbers.
//
// Returns the absolute path to the created file.
func TempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "testfile")
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err, "failed to write temp file")
	return path
}

// MkdirTempInDir creates a temporary directory under the given parent directory.
//
// Unlike t.TempDir(), which doesn't allow specifying the parent, this function
// creates a temporary directory as a subdirectory of parentDir. The directory
// is automatically cleaned up when the test completes.
//
// Returns the path to the created directory.
func MkdirTempInDir(t *testing.T, parentDir string) string {
	t.Helper()
	path, err := os.MkdirTemp(parentDir, "testdir*")
	require.NoError(t, err, "failed to create temp dir")
	t.Cleanup(func() {
		_ = os.RemoveAll(path)
	})
	return path
}

// ParseTime parses an RFC3339 timestamp.
//
// This is a convenience wrapper around time.Parse that uses t.Helper()
// for correct line numbers in test failures.
//
// Returns the parsed time or fails the test if parsing fails.
func ParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err, "failed to parse time %q", s)
	return ts
}

// RequireNoError asserts that err is nil, with a more descriptive message.
//
// This is a thin wrapper around require.NoError that adds t.Helper()
// for correct line numbers in test failures.
func RequireNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

// RequireEqual asserts that two values are equal, with a more descriptive message.
//
// This is a thin wrapper around require.Equal that adds t.Helper()
// for correct line numbers in test failures.
func RequireEqual(t *testing.T, expected, actual any, msgAndArgs ...interface{}) {
	t.Helper()
	require.Equal(t, expected, actual, msgAndArgs...)
}

// ============================================================================
// Model Factory Functions
// ============================================================================

// SimulationOpts holds optional parameters for creating test simulations.
//
// Used with NewTestSimulation to create test simulation data with specific
// values. Empty fields use sensible defaults defined in NewTestSimulation.
type SimulationOpts struct {
	ID                  string
	Name                string
	NumberOfUsers       int
	CourseID            int64
	ExamID              int64
	Server              models.TargetServer
	Mode                models.Mode
	CreationDate        time.Time
	CustomizeUserRange  bool
	UserRange           string
	OnlineIDEPercentage float64
	PasswordPercentage  float64
	TokenPercentage     float64
	SSHPercentage       float64
	CommitsFrom         int
	CommitsTo           int
	InstructorUsername  string
	InstructorPassword  string
}

// NewTestSimulation creates a test simulation with default values, applying
// optional overrides.
//
// This factory function creates valid Simulation structs for testing,
// filling in required fields with sensible defaults. Any field in opts can
// be set to override the default.
//
// Example:
//
//	sim := NewTestSimulation(testing.SimulationOpts{
//	    Mode:          models.ModeExistingCourseCreateExam,
//	    NumberOfUsers: 50,
//	})
func NewTestSimulation(opts SimulationOpts) models.Simulation {
	if opts.ID == "" {
		opts.ID = TestSimulationID
	}
	if opts.Name == "" {
		opts.Name = "simulation-test-1"
	}
	if opts.NumberOfUsers == 0 {
		opts.NumberOfUsers = 10
	}
	if opts.Server == "" {
		opts.Server = TestServer
	}
	if opts.Mode == "" {
		opts.Mode = models.ModeCreateCourseAndExam
	}
	if opts.CreationDate.IsZero() {
		opts.CreationDate = FixedTime
	}
	if opts.OnlineIDEPercentage == 0 && opts.PasswordPercentage == 0 &&
		opts.TokenPercentage == 0 && opts.SSHPercentage == 0 {
		opts.OnlineIDEPercentage = 100
	}
	if opts.CommitsFrom == 0 {
		opts.CommitsFrom = 8
	}
	if opts.CommitsTo == 0 {
		opts.CommitsTo = 15
	}

	return models.Simulation{
		ID:                  opts.ID,
		Name:                opts.Name,
		NumberOfUsers:       opts.NumberOfUsers,
		CourseID:            opts.CourseID,
		ExamID:              opts.ExamID,
		Server:              opts.Server,
		Mode:                opts.Mode,
		CreationDate:        opts.CreationDate,
		CustomizeUserRange:  opts.CustomizeUserRange,
		UserRange:           opts.UserRange,
		OnlineIDEPercentage: opts.OnlineIDEPercentage,
		PasswordPercentage:  opts.PasswordPercentage,
		TokenPercentage:     opts.TokenPercentage,
		SSHPercentage:       opts.SSHPercentage,
		CommitsFrom:         opts.CommitsFrom,
		CommitsTo:           opts.CommitsTo,
		InstructorUsername:  opts.InstructorUsername,
		InstructorPassword:  opts.InstructorPassword,
	}
}

// RunOpts holds optional parameters for creating test runs.
type RunOpts struct {
	ID           string
	SimulationID string
	Status       models.RunStatus
	StartTime    time.Time
	EndTime      *time.Time
}

// NewTestRun creates a test run with default values, applying optional overrides.
func NewTestRun(opts RunOpts) models.SimulationRun {
	if opts.ID == "" {
		opts.ID = TestRunID
	}
	if opts.SimulationID == "" {
		opts.SimulationID = TestSimulationID
	}
	if opts.Status == "" {
		opts.Status = models.RunQueued
	}
	if opts.StartTime.IsZero() {
		opts.StartTime = FixedTime
	}

	return models.SimulationRun{
		ID:           opts.ID,
		SimulationID: opts.SimulationID,
		Status:       opts.Status,
		StartTime:    opts.StartTime,
		EndTime:      opts.EndTime,
	}
}

// ScheduleOpts holds optional parameters for creating test schedules.
type ScheduleOpts struct {
	ID            string
	SimulationID  string
	Cycle         models.Cycle
	TimeOfDay     time.Time
	DayOfWeek     *time.Weekday
	StartDateTime time.Time
	EndDateTime   *time.Time
	NextRun       time.Time
}

// NewTestSchedule creates a test schedule with default values, applying
// optional overrides.
func NewTestSchedule(opts ScheduleOpts) models.SimulationSchedule {
	if opts.ID == "" {
		opts.ID = TestScheduleID
	}
	if opts.SimulationID == "" {
		opts.SimulationID = TestSimulationID
	}
	if opts.Cycle == "" {
		opts.Cycle = models.CycleDaily
	}
	if opts.TimeOfDay.IsZero() {
		opts.TimeOfDay = time.Date(0, 1, 1, 18, 0, 0, 0, time.UTC)
	}
	if opts.StartDateTime.IsZero() {
		opts.StartDateTime = FixedTime
	}
	if opts.NextRun.IsZero() {
		opts.NextRun = FixedTime.Add(6 * time.Hour)
	}

	return models.SimulationSchedule{
		ID:            opts.ID,
		SimulationID:  opts.SimulationID,
		Cycle:         opts.Cycle,
		TimeOfDay:     opts.TimeOfDay,
		DayOfWeek:     opts.DayOfWeek,
		StartDateTime: opts.StartDateTime,
		EndDateTime:   opts.EndDateTime,
		NextRun:       opts.NextRun,
	}
}

// ============================================================================
// Database Test Helpers
// ============================================================================

// OpenTestDB opens a test SQLite database in a temporary directory.
// The database is automatically closed and removed when the test completes.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// RequireRowsAffected asserts that the expected number of rows were affected.
func RequireRowsAffected(t *testing.T, res sql.Result, expected int64) {
	t.Helper()
	n, err := res.RowsAffected()
	require.NoError(t, err, "failed to get rows affected")
	require.Equal(t, expected, n, "rows affected mismatch")
}

// RequireNoRows asserts that no rows exist in the table for the given query.
func RequireNoRows(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	var count int
	err := db.QueryRow(query, args...).Scan(&count)
	require.NoError(t, err, "failed to query rows")
	require.Equal(t, 0, count, "expected no rows")
}
