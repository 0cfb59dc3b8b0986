// ABOUTME: HTTP client for the examloadd control API with its wire types.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAddr = "127.0.0.1:8080"

const (
	defaultRequestTimeout = 30 * time.Second
	maxJSONOutputBytes    = 4 << 20
)

// apiClient is an HTTP client for the examloadd control API.
type apiClient struct {
	addr       string
	httpClient *http.Client
	timeout    time.Duration
}

// apiError represents an error response from the examloadd API.
type apiError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// simulationCreateRequest contains parameters for creating a simulation.
type simulationCreateRequest struct {
	Name                string  `json:"name"`
	NumberOfUsers       int     `json:"number_of_users,omitempty"`
	CourseID            int64   `json:"course_id,omitempty"`
	ExamID              int64   `json:"exam_id,omitempty"`
	Server              string  `json:"server"`
	Mode                string  `json:"mode"`
	CustomizeUserRange  bool    `json:"customize_user_range,omitempty"`
	UserRange           string  `json:"user_range,omitempty"`
	OnlineIDEPercentage float64 `json:"online_ide_percentage,omitempty"`
	PasswordPercentage  float64 `json:"password_percentage,omitempty"`
	TokenPercentage     float64 `json:"token_percentage,omitempty"`
	SSHPercentage       float64 `json:"ssh_percentage,omitempty"`
	CommitsFrom         int     `json:"commits_from,omitempty"`
	CommitsTo           int     `json:"commits_to,omitempty"`
	InstructorUsername  string  `json:"instructor_username,omitempty"`
	InstructorPassword  string  `json:"instructor_password,omitempty"`
}

// instructorRequest replaces the stored instructor account of a simulation.
type instructorRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// simulationResponse represents a simulation returned from the API.
type simulationResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	NumberOfUsers       int     `json:"number_of_users"`
	CourseID            int64   `json:"course_id,omitempty"`
	ExamID              int64   `json:"exam_id,omitempty"`
	Server              string  `json:"server"`
	Mode                string  `json:"mode"`
	CreationDate        string  `json:"creation_date"`
	CustomizeUserRange  bool    `json:"customize_user_range,omitempty"`
	UserRange           string  `json:"user_range,omitempty"`
	OnlineIDEPercentage float64 `json:"online_ide_percentage"`
	PasswordPercentage  float64 `json:"password_percentage"`
	TokenPercentage     float64 `json:"token_percentage"`
	SSHPercentage       float64 `json:"ssh_percentage"`
	CommitsFrom         int     `json:"commits_from"`
	CommitsTo           int     `json:"commits_to"`
	InstructorUsername  string  `json:"instructor_username,omitempty"`
	InstructorProvided  bool    `json:"instructor_credentials_provided"`
}

// simulationsResponse contains a list of simulations.
type simulationsResponse struct {
	Simulations []simulationResponse `json:"simulations"`
}

// runStartRequest contains the optional admin-account override for a run.
type runStartRequest struct {
	AdminUsername string `json:"admin_username,omitempty"`
	AdminPassword string `json:"admin_password,omitempty"`
}

// runResponse represents a simulation run returned from the API.
type runResponse struct {
	ID           string `json:"id"`
	SimulationID string `json:"simulation_id"`
	Status       string `json:"status"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time,omitempty"`
}

// runsResponse contains a list of runs.
type runsResponse struct {
	Runs []runResponse `json:"runs"`
}

// logMessageResponse is one log line of a run.
type logMessageResponse struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"ts"`
	Message   string `json:"message"`
	Error     bool   `json:"error,omitempty"`
}

// logMessagesResponse contains the log lines of a run.
type logMessagesResponse struct {
	Messages []logMessageResponse `json:"messages"`
}

// timeBucketResponse summarizes the samples of one interval.
type timeBucketResponse struct {
	Start string  `json:"start"`
	Count int64   `json:"count"`
	AvgMS float64 `json:"avg_ms"`
}

// categoryStatsResponse summarizes one request category of a run.
type categoryStatsResponse struct {
	Category  string               `json:"category"`
	Count     int64                `json:"count"`
	AvgMS     float64              `json:"avg_ms"`
	PerMinute []timeBucketResponse `json:"per_minute,omitempty"`
	PerSecond []timeBucketResponse `json:"per_second,omitempty"`
}

// runStatsResponse contains the aggregated request statistics of a run.
type runStatsResponse struct {
	Stats []categoryStatsResponse `json:"stats"`
}

// ciStatusResponse is the build queue snapshot of a run.
type ciStatusResponse struct {
	RunID            string  `json:"run_id"`
	Finished         bool    `json:"finished"`
	TotalJobs        int     `json:"total_jobs"`
	QueuedJobs       int     `json:"queued_jobs"`
	TimeInMinutes    int     `json:"time_in_minutes"`
	AvgJobsPerMinute float64 `json:"avg_jobs_per_minute"`
}

// scheduleRequest contains parameters for creating or updating a schedule.
type scheduleRequest struct {
	Cycle         string `json:"cycle"`
	TimeOfDay     string `json:"time_of_day"`
	DayOfWeek     string `json:"day_of_week,omitempty"`
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time,omitempty"`
}

// scheduleResponse represents a schedule returned from the API.
type scheduleResponse struct {
	ID            string               `json:"id"`
	SimulationID  string               `json:"simulation_id"`
	Cycle         string               `json:"cycle"`
	TimeOfDay     string               `json:"time_of_day"`
	DayOfWeek     string               `json:"day_of_week,omitempty"`
	StartDateTime string               `json:"start_date_time"`
	EndDateTime   string               `json:"end_date_time,omitempty"`
	NextRun       string               `json:"next_run"`
	Subscribers   []subscriberResponse `json:"subscribers,omitempty"`
}

// schedulesResponse contains a list of schedules.
type schedulesResponse struct {
	Schedules []scheduleResponse `json:"schedules"`
}

// subscribeRequest registers an email for schedule notifications.
type subscribeRequest struct {
	Email string `json:"email"`
}

// subscriberResponse is one notification subscription on a schedule.
type subscriberResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Key   string `json:"key"`
}

// subscribersResponse contains the subscribers of a schedule.
type subscribersResponse struct {
	Subscribers []subscriberResponse `json:"subscribers"`
}

// targetResponse describes one configured target server.
type targetResponse struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Production     bool   `json:"production"`
	Local          bool   `json:"local"`
	CleanupEnabled bool   `json:"cleanup_enabled"`
}

// statusResponse reports daemon and queue state.
type statusResponse struct {
	Version      string           `json:"version"`
	TestMode     bool             `json:"test_mode,omitempty"`
	ActiveRunID  string           `json:"active_run_id,omitempty"`
	QueuedRunIDs []string         `json:"queued_run_ids,omitempty"`
	Targets      []targetResponse `json:"targets"`
}

// newAPIClient creates a new API client for communicating with examloadd.
func newAPIClient(addr string, timeout time.Duration) *apiClient {
	if addr == "" {
		addr = defaultAddr
	}
	return &apiClient{
		addr:       addr,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// doJSON sends an HTTP request with a JSON payload and returns the JSON
// response body. Error responses are converted into errors.
func (c *apiClient) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.addr+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s via %s: %w", method, path, c.addr, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONOutputBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// parseAPIError converts an HTTP error response into an error, preferring the
// JSON error message when present.
func parseAPIError(status int, data []byte) error {
	if len(data) > 0 {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
	}
	return fmt.Errorf("request failed with status %d", status)
}

// withTimeout adds the client's timeout to the context if configured.
func (c *apiClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c == nil || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// prettyPrintJSON formats JSON data with indentation and writes it to the writer.
func prettyPrintJSON(w io.Writer, data []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		_, err = w.Write(data)
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
