// ABOUTME: HTTP control API for simulations, runs, schedules, and subscriptions.
package daemon

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/examload/examload/internal/config"
	"github.com/examload/examload/internal/db"
	"github.com/examload/examload/internal/models"
	"github.com/examload/examload/internal/simulation"
)

const maxJSONBytes = 1 << 20

// ControlAPI exposes the v1 control surface of examloadd.
//
// Routes served after registration:
//   - POST   /v1/simulations                      - Create a simulation
//   - GET    /v1/simulations                      - List simulations
//   - GET    /v1/simulations/{id}                 - Get one simulation
//   - DELETE /v1/simulations/{id}                 - Delete a simulation
//   - PUT    /v1/simulations/{id}/instructor      - Replace instructor credentials
//   - POST   /v1/simulations/{id}/runs            - Queue a run
//   - GET    /v1/simulations/{id}/runs            - List runs of a simulation
//   - POST   /v1/simulations/{id}/schedules       - Create a schedule
//   - GET    /v1/simulations/{id}/schedules       - List schedules of a simulation
//   - GET    /v1/runs/{id}                        - Get one run
//   - DELETE /v1/runs/{id}                        - Withdraw a queued run
//   - POST   /v1/runs/{id}/cancel                 - Cancel the active run
//   - GET    /v1/runs/{id}/logs                   - Run log messages
//   - GET    /v1/runs/{id}/stats                  - Aggregated request statistics
//   - GET    /v1/runs/{id}/ci                     - Build queue snapshot
//   - GET    /v1/schedules/{id}                   - Get one schedule
//   - PUT    /v1/schedules/{id}                   - Update a schedule
//   - DELETE /v1/schedules/{id}                   - Delete a schedule
//   - POST   /v1/schedules/{id}/subscribers       - Subscribe an email
//   - GET    /v1/schedules/{id}/subscribers       - List subscribers
//   - DELETE /v1/subscriptions/{key}              - Unsubscribe by key
//   - GET    /v1/status                           - Daemon and queue status
type ControlAPI struct {
	service  *simulation.Service
	store    *db.Store
	queue    *simulation.RunQueue
	targets  map[models.TargetServer]config.Target
	version  string
	testMode bool
	logger   *log.Logger
}

// NewControlAPI creates a control API over the given service and store.
// Uses log.Default when logger is nil.
func NewControlAPI(service *simulation.Service, store *db.Store, queue *simulation.RunQueue, targets map[models.TargetServer]config.Target, logger *log.Logger) *ControlAPI {
	if logger == nil {
		logger = log.Default()
	}
	return &ControlAPI{
		service: service,
		store:   store,
		queue:   queue,
		targets: targets,
		logger:  logger,
	}
}

// WithVersion annotates status responses with the daemon build version.
func (api *ControlAPI) WithVersion(version string) *ControlAPI {
	if api == nil {
		return api
	}
	api.version = strings.TrimSpace(version)
	return api
}

// WithTestMode annotates status responses with the wait-skipping test mode.
func (api *ControlAPI) WithTestMode(enabled bool) *ControlAPI {
	if api == nil {
		return api
	}
	api.testMode = enabled
	return api
}

// Register registers all control API handlers with the provided mux.
func (api *ControlAPI) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/v1/simulations", api.handleSimulations)
	mux.HandleFunc("/v1/simulations/", api.handleSimulationByID)
	mux.HandleFunc("/v1/runs/", api.handleRunByID)
	mux.HandleFunc("/v1/schedules/", api.handleScheduleByID)
	mux.HandleFunc("/v1/subscriptions/", api.handleSubscriptionByKey)
	mux.HandleFunc("/v1/status", api.handleStatus)
}

func (api *ControlAPI) handleSimulations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.handleSimulationCreate(w, r)
	case http.MethodGet:
		api.handleSimulationList(w, r)
	default:
		writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
	}
}

func (api *ControlAPI) handleSimulationByID(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/simulations/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "simulation not found")
		return
	}
	simulationID := parts[0]

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			api.handleSimulationGet(w, r, simulationID)
		case http.MethodDelete:
			api.handleSimulationDelete(w, r, simulationID)
		default:
			writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodDelete})
		}
		return
	case 2:
		switch parts[1] {
		case "instructor":
			if r.Method != http.MethodPut {
				writeMethodNotAllowed(w, []string{http.MethodPut})
				return
			}
			api.handleInstructorUpdate(w, r, simulationID)
			return
		case "runs":
			switch r.Method {
			case http.MethodPost:
				api.handleRunStart(w, r, simulationID)
			case http.MethodGet:
				api.handleRunList(w, r, simulationID)
			default:
				writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
			}
			return
		case "schedules":
			switch r.Method {
			case http.MethodPost:
				api.handleScheduleCreate(w, r, simulationID)
			case http.MethodGet:
				api.handleScheduleList(w, r, simulationID)
			default:
				writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
			}
			return
		}
	}

	writeError(w, http.StatusNotFound, "simulation not found")
}

func (api *ControlAPI) handleSimulationCreate(w http.ResponseWriter, r *http.Request) {
	var req V1SimulationCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	sim, err := api.service.CreateSimulation(r.Context(), req.toModel())
	if err != nil {
		api.writeServiceError(w, err, http.StatusBadRequest)
		return
	}
	api.logger.Printf("api: created simulation %s (%s on %s)", sim.ID, sim.Name, sim.Server)
	writeJSON(w, http.StatusCreated, toV1Simulation(sim))
}

func (api *ControlAPI) handleSimulationList(w http.ResponseWriter, r *http.Request) {
	sims, err := api.store.ListSimulations(r.Context())
	if err != nil {
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	out := V1SimulationsResponse{Simulations: make([]V1Simulation, 0, len(sims))}
	for _, sim := range sims {
		out.Simulations = append(out.Simulations, toV1Simulation(sim))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *ControlAPI) handleSimulationGet(w http.ResponseWriter, r *http.Request, simulationID string) {
	sim, err := api.store.GetSimulation(r.Context(), simulationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toV1Simulation(sim))
}

func (api *ControlAPI) handleSimulationDelete(w http.ResponseWriter, r *http.Request, simulationID string) {
	if err := api.service.DeleteSimulation(r.Context(), simulationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	api.logger.Printf("api: deleted simulation %s", simulationID)
	w.WriteHeader(http.StatusNoContent)
}

func (api *ControlAPI) handleInstructorUpdate(w http.ResponseWriter, r *http.Request, simulationID string) {
	var req V1InstructorCredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if err := api.service.UpdateInstructorCredentials(r.Context(), simulationID, req.Username, req.Password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *ControlAPI) handleRunStart(w http.ResponseWriter, r *http.Request, simulationID string) {
	var req V1RunStartRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	var account *models.Account
	if req.AdminUsername != "" || req.AdminPassword != "" {
		account = &models.Account{Username: strings.TrimSpace(req.AdminUsername), Password: req.AdminPassword}
		if !account.Provided() {
			writeError(w, http.StatusBadRequest, "admin_username and admin_password must both be set")
			return
		}
	}
	run, err := api.service.CreateAndQueueRun(r.Context(), simulationID, account)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		api.writeServiceError(w, err, http.StatusBadRequest)
		return
	}
	api.logger.Printf("api: queued run %s for simulation %s", run.ID, simulationID)
	writeJSON(w, http.StatusCreated, toV1Run(run))
}

func (api *ControlAPI) handleRunList(w http.ResponseWriter, r *http.Request, simulationID string) {
	runs, err := api.store.ListRunsForSimulation(r.Context(), simulationID)
	if err != nil {
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	out := V1RunsResponse{Runs: make([]V1Run, 0, len(runs))}
	for _, run := range runs {
		out.Runs = append(out.Runs, toV1Run(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *ControlAPI) handleRunByID(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/runs/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	runID := parts[0]

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			api.handleRunGet(w, r, runID)
		case http.MethodDelete:
			api.handleRunRemove(w, r, runID)
		default:
			writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodDelete})
		}
		return
	case 2:
		switch parts[1] {
		case "cancel":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, []string{http.MethodPost})
				return
			}
			api.handleRunCancel(w, r, runID)
			return
		case "logs":
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, []string{http.MethodGet})
				return
			}
			api.handleRunLogs(w, r, runID)
			return
		case "stats":
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, []string{http.MethodGet})
				return
			}
			api.handleRunStats(w, r, runID)
			return
		case "ci":
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, []string{http.MethodGet})
				return
			}
			api.handleRunCiStatus(w, r, runID)
			return
		}
	}

	writeError(w, http.StatusNotFound, "run not found")
}

func (api *ControlAPI) handleRunGet(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := api.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toV1Run(run))
}

func (api *ControlAPI) handleRunRemove(w http.ResponseWriter, r *http.Request, runID string) {
	if err := api.service.RemoveQueuedRun(r.Context(), runID); err != nil {
		api.writeServiceError(w, err, http.StatusConflict)
		return
	}
	api.logger.Printf("api: removed queued run %s", runID)
	w.WriteHeader(http.StatusNoContent)
}

func (api *ControlAPI) handleRunCancel(w http.ResponseWriter, r *http.Request, runID string) {
	if err := api.service.CancelActiveRun(r.Context(), runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		api.writeServiceError(w, err, http.StatusConflict)
		return
	}
	api.logger.Printf("api: cancelling run %s", runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (api *ControlAPI) handleRunLogs(w http.ResponseWriter, r *http.Request, runID string) {
	if _, err := api.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	messages, err := api.store.ListLogMessages(r.Context(), runID)
	if err != nil {
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	out := V1LogMessagesResponse{Messages: make([]V1LogMessage, 0, len(messages))}
	for _, msg := range messages {
		out.Messages = append(out.Messages, toV1LogMessage(msg))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *ControlAPI) handleRunStats(w http.ResponseWriter, r *http.Request, runID string) {
	if _, err := api.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	entries, err := api.store.GetRunStats(r.Context(), runID)
	if err != nil {
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "no statistics for run "+runID)
		return
	}
	out := V1RunStatsResponse{Stats: make([]V1CategoryStats, 0, len(entries))}
	for _, entry := range entries {
		out.Stats = append(out.Stats, toV1CategoryStats(entry))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *ControlAPI) handleRunCiStatus(w http.ResponseWriter, r *http.Request, runID string) {
	status, err := api.store.GetCiStatus(r.Context(), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "no ci status for run "+runID)
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toV1CiStatus(status))
}

func (api *ControlAPI) handleScheduleCreate(w http.ResponseWriter, r *http.Request, simulationID string) {
	var req V1ScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rule, err := req.toModel(simulationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := api.service.CreateSchedule(r.Context(), rule)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		api.writeServiceError(w, err, http.StatusBadRequest)
		return
	}
	api.logger.Printf("api: created schedule %s for simulation %s", created.ID, simulationID)
	writeJSON(w, http.StatusCreated, toV1Schedule(created))
}

func (api *ControlAPI) handleScheduleList(w http.ResponseWriter, r *http.Request, simulationID string) {
	rules, err := api.store.ListSchedulesForSimulation(r.Context(), simulationID)
	if err != nil {
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	out := V1SchedulesResponse{Schedules: make([]V1Schedule, 0, len(rules))}
	for _, rule := range rules {
		out.Schedules = append(out.Schedules, toV1Schedule(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *ControlAPI) handleScheduleByID(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/schedules/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	scheduleID := parts[0]

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			api.handleScheduleGet(w, r, scheduleID)
		case http.MethodPut:
			api.handleScheduleUpdate(w, r, scheduleID)
		case http.MethodDelete:
			api.handleScheduleDelete(w, r, scheduleID)
		default:
			writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPut, http.MethodDelete})
		}
		return
	case 2:
		if parts[1] == "subscribers" {
			switch r.Method {
			case http.MethodPost:
				api.handleSubscribe(w, r, scheduleID)
			case http.MethodGet:
				api.handleSubscriberList(w, r, scheduleID)
			default:
				writeMethodNotAllowed(w, []string{http.MethodGet, http.MethodPost})
			}
			return
		}
	}

	writeError(w, http.StatusNotFound, "schedule not found")
}

func (api *ControlAPI) handleScheduleGet(w http.ResponseWriter, r *http.Request, scheduleID string) {
	rule, err := api.store.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toV1Schedule(rule))
}

func (api *ControlAPI) handleScheduleUpdate(w http.ResponseWriter, r *http.Request, scheduleID string) {
	var req V1ScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	existing, err := api.store.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	rule, err := req.toModel(existing.SimulationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule.ID = existing.ID
	updated, err := api.service.UpdateSchedule(r.Context(), rule)
	if err != nil {
		api.writeServiceError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, toV1Schedule(updated))
}

func (api *ControlAPI) handleScheduleDelete(w http.ResponseWriter, r *http.Request, scheduleID string) {
	if err := api.service.DeleteSchedule(r.Context(), scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *ControlAPI) handleSubscribe(w http.ResponseWriter, r *http.Request, scheduleID string) {
	var req V1SubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if _, err := api.store.GetSchedule(r.Context(), scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	sub, err := api.service.Subscribe(r.Context(), scheduleID, strings.TrimSpace(req.Email))
	if err != nil {
		api.writeServiceError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, toV1Subscriber(sub))
}

func (api *ControlAPI) handleSubscriberList(w http.ResponseWriter, r *http.Request, scheduleID string) {
	subs, err := api.store.ListSubscribers(r.Context(), scheduleID)
	if err != nil {
		api.writeServiceError(w, err, http.StatusInternalServerError)
		return
	}
	out := V1SubscribersResponse{Subscribers: make([]V1Subscriber, 0, len(subs))}
	for _, sub := range subs {
		out.Subscribers = append(out.Subscribers, toV1Subscriber(sub))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *ControlAPI) handleSubscriptionByKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w, []string{http.MethodDelete})
		return
	}
	parts := pathParts(r.URL.Path, "/v1/subscriptions/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err := api.service.Unsubscribe(r.Context(), parts[0]); err != nil {
		api.writeServiceError(w, err, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *ControlAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, []string{http.MethodGet})
		return
	}
	out := V1StatusResponse{
		Version:  api.version,
		TestMode: api.testMode,
	}
	if api.queue != nil {
		out.ActiveRunID = api.queue.ActiveRunID()
		out.QueuedRunIDs = api.queue.QueuedIDs()
	}
	names := make([]string, 0, len(api.targets))
	for name := range api.targets {
		names = append(names, string(name))
	}
	sort.Strings(names)
	out.Targets = make([]V1Target, 0, len(names))
	for _, name := range names {
		target := api.targets[models.TargetServer(name)]
		out.Targets = append(out.Targets, V1Target{
			Name:           name,
			URL:            target.URL,
			Production:     target.Production,
			Local:          target.Local,
			CleanupEnabled: target.CleanupEnabled,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// writeServiceError maps service sentinels to HTTP statuses, falling back to
// the handler-provided status for unclassified errors.
func (api *ControlAPI) writeServiceError(w http.ResponseWriter, err error, fallback int) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "resource not found", err)
	case errors.Is(err, simulation.ErrUnknownTarget),
		errors.Is(err, simulation.ErrAdminRequired),
		errors.Is(err, simulation.ErrInstructorRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, simulation.ErrSimulationActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, simulation.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, fallback, err.Error())
	}
}

func pathParts(path, prefix string) []string {
	tail := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if tail == "" {
		return nil
	}
	return strings.Split(tail, "/")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string, errs ...error) {
	payload := V1ErrorResponse{
		Error: msg,
		Code:  apiErrorCode(status, msg),
	}
	if len(errs) > 0 && errs[0] != nil {
		payload.Details = errs[0].Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(payload)
	_, _ = w.Write(data)
}

func writeMethodNotAllowed(w http.ResponseWriter, methods []string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
