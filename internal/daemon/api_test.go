// ABOUTME: Handler tests for the v1 control API.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/models"
	"github.com/examload/examload/internal/simulation"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, *models.SimulationRun) {}

type apiFixture struct {
	api   *ControlAPI
	mux   *http.ServeMux
	store *db.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := log.New(io.Discard, "", 0)
	targets := map[models.TargetServer]config.Target{
		"staging": {
			URL:             "http://lms.local:8080",
			Local:           true,
			CleanupEnabled:  true,
			UsernamePattern: "student{i}",
			PasswordPattern: "pass{i}",
			AdminUsername:   "admin",
			AdminPassword:   "admin-secret",
		},
	}
	queue := simulation.NewRunQueue(noopExecutor{}, logger, nil)
	service := simulation.NewService(store, queue, targets, nil, nil, logger)
	api := NewControlAPI(service, store, queue, targets, logger).
		WithVersion("test").
		WithTestMode(true)
	mux := http.NewServeMux()
	api.Register(mux)
	return &apiFixture{api: api, mux: mux, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) createSimulation(t *testing.T) V1Simulation {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/simulations", V1SimulationCreateRequest{
		Name:          "exam load",
		NumberOfUsers: 5,
		Server:        "staging",
		Mode:          string(models.ModeCreateCourseAndExam),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sim V1Simulation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sim))
	return sim
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) V1ErrorResponse {
	t.Helper()
	var out V1ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSimulationCreateAndGet(t *testing.T) {
	f := newAPIFixture(t)

	sim := f.createSimulation(t)
	assert.NotEmpty(t, sim.ID)
	assert.Equal(t, "exam load", sim.Name)
	assert.Equal(t, 5, sim.NumberOfUsers)
	assert.Equal(t, float64(100), sim.OnlineIDEPercentage)
	assert.Equal(t, 8, sim.CommitsFrom)
	assert.Equal(t, 15, sim.CommitsTo)
	assert.False(t, sim.InstructorProvided)

	rec := f.do(t, http.MethodGet, "/v1/simulations/"+sim.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got V1Simulation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sim.ID, got.ID)

	rec = f.do(t, http.MethodGet, "/v1/simulations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list V1SimulationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Simulations, 1)
}

func TestSimulationResponseNeverCarriesPasswords(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/simulations", V1SimulationCreateRequest{
		Name:               "existing exam",
		NumberOfUsers:      3,
		CourseID:           42,
		ExamID:             7,
		Server:             "staging",
		Mode:               string(models.ModeExistingCourseUnpreparedExam),
		InstructorUsername: "instructor",
		InstructorPassword: "hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "instructor_password")

	var sim V1Simulation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sim))
	assert.Equal(t, "instructor", sim.InstructorUsername)
	assert.True(t, sim.InstructorProvided)

	rec = f.do(t, http.MethodGet, "/v1/simulations/"+sim.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestSimulationCreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("unknown target", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/simulations", V1SimulationCreateRequest{
			Name:          "bad",
			NumberOfUsers: 5,
			Server:        "nowhere",
			Mode:          string(models.ModeCreateCourseAndExam),
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "v1/validation/unknown_target", resp.Code)
	})

	t.Run("invalid mode", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/simulations", V1SimulationCreateRequest{
			Name:          "bad",
			NumberOfUsers: 5,
			Server:        "staging",
			Mode:          "SOMETHING_ELSE",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "v1/validation/bad_request", resp.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/simulations", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		f.mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeErrorResponse(t, rec)
		assert.Equal(t, "v1/validation/malformed_json", resp.Code)
	})
}

func TestSimulationNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/simulations/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "v1/simulation/not_found", resp.Code)
}

func TestRunLifecycleEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	sim := f.createSimulation(t)

	rec := f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/runs", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var run V1Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, string(models.RunQueued), run.Status)
	assert.Equal(t, sim.ID, run.SimulationID)

	rec = f.do(t, http.MethodGet, "/v1/simulations/"+sim.ID+"/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs V1RunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs.Runs, 1)

	rec = f.do(t, http.MethodGet, "/v1/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Still queued, so cancelling is rejected and withdrawing succeeds.
	rec = f.do(t, http.MethodPost, "/v1/runs/"+run.ID+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "v1/run/not_running", resp.Code)

	rec = f.do(t, http.MethodDelete, "/v1/runs/"+run.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/runs/"+run.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunStartRejectsHalfProvidedAccount(t *testing.T) {
	f := newAPIFixture(t)
	sim := f.createSimulation(t)

	rec := f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/runs", V1RunStartRequest{
		AdminUsername: "operator",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunLogsAndStats(t *testing.T) {
	f := newAPIFixture(t)
	sim := f.createSimulation(t)

	rec := f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/runs", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run V1Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	_, err := f.store.AppendLogMessage(context.Background(), models.LogMessage{
		RunID:     run.ID,
		Timestamp: time.Now().UTC(),
		Message:   "Starting simulation",
	})
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/v1/runs/"+run.ID+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs V1LogMessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs.Messages, 1)
	assert.Equal(t, "Starting simulation", logs.Messages[0].Message)

	rec = f.do(t, http.MethodGet, "/v1/runs/"+run.ID+"/stats", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "v1/run/stats_not_ready", resp.Code)

	rec = f.do(t, http.MethodGet, "/v1/runs/"+run.ID+"/ci", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp = decodeErrorResponse(t, rec)
	assert.Equal(t, "v1/run/ci_status_unavailable", resp.Code)
}

func TestScheduleEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	sim := f.createSimulation(t)
	start := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	rec := f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/schedules", V1ScheduleRequest{
		Cycle:         "DAILY",
		TimeOfDay:     "18:30",
		StartDateTime: start,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule V1Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "18:30", rule.TimeOfDay)
	assert.NotEmpty(t, rule.NextRun)

	rec = f.do(t, http.MethodPut, "/v1/schedules/"+rule.ID, V1ScheduleRequest{
		Cycle:         "WEEKLY",
		TimeOfDay:     "06:00",
		DayOfWeek:     "MONDAY",
		StartDateTime: start,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated V1Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "WEEKLY", updated.Cycle)
	assert.Equal(t, "MONDAY", updated.DayOfWeek)

	rec = f.do(t, http.MethodPost, "/v1/schedules/"+rule.ID+"/subscribers", V1SubscribeRequest{
		Email: "ops@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sub V1Subscriber
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.NotEmpty(t, sub.Key)

	rec = f.do(t, http.MethodGet, "/v1/schedules/"+rule.ID+"/subscribers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs V1SubscribersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs.Subscribers, 1)

	rec = f.do(t, http.MethodDelete, "/v1/subscriptions/"+sub.Key, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/subscriptions/"+sub.Key, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/schedules/"+rule.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/schedules/"+rule.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleRequestValidation(t *testing.T) {
	f := newAPIFixture(t)
	sim := f.createSimulation(t)

	rec := f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/schedules", V1ScheduleRequest{
		Cycle:         "DAILY",
		TimeOfDay:     "six thirty",
		StartDateTime: time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/schedules", V1ScheduleRequest{
		Cycle:         "WEEKLY",
		TimeOfDay:     "06:00",
		DayOfWeek:     "someday",
		StartDateTime: time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Weekly requires a day, daily forbids one. Neither may be created.
	rec = f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/schedules", V1ScheduleRequest{
		Cycle:         "WEEKLY",
		TimeOfDay:     "06:00",
		StartDateTime: time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Contains(t, resp.Error, "day_of_week is required")

	rec = f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/schedules", V1ScheduleRequest{
		Cycle:         "DAILY",
		TimeOfDay:     "06:00",
		DayOfWeek:     "MONDAY",
		StartDateTime: time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp = decodeErrorResponse(t, rec)
	assert.Contains(t, resp.Error, "not allowed for DAILY")
}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	sim := f.createSimulation(t)

	rec := f.do(t, http.MethodPost, "/v1/simulations/"+sim.ID+"/runs", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var run V1Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))

	rec = f.do(t, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status V1StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "test", status.Version)
	assert.True(t, status.TestMode)
	assert.Contains(t, status.QueuedRunIDs, run.ID)
	require.Len(t, status.Targets, 1)
	assert.Equal(t, "staging", status.Targets[0].Name)
	assert.True(t, status.Targets[0].CleanupEnabled)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPatch, "/v1/simulations", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), http.MethodPost)
}

func TestInstructorUpdate(t *testing.T) {
	f := newAPIFixture(t)
	sim := f.createSimulation(t)

	rec := f.do(t, http.MethodPut, fmt.Sprintf("/v1/simulations/%s/instructor", sim.ID), V1InstructorCredentialsRequest{
		Username: "instructor",
		Password: "hunter2",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/v1/simulations/%s/instructor", sim.ID), V1InstructorCredentialsRequest{
		Username: "instructor",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
