// ABOUTME: Wire types for the v1 control API and their model conversions.
package daemon

import (
	"fmt"
	"strings"
	"time"

	"github.com/examload/examload/internal/models"
	"github.com/examload/examload/internal/stats"
)

// V1ErrorResponse is the error payload returned by every v1 endpoint.
type V1ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// V1SimulationCreateRequest contains parameters for creating a simulation.
// Instructor credentials are accepted inbound only and never echoed back.
type V1SimulationCreateRequest struct {
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

// V1InstructorCredentialsRequest replaces the stored instructor account of a
// simulation.
type V1InstructorCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// V1Simulation represents a simulation returned from the API.
type V1Simulation struct {
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

// V1SimulationsResponse contains a list of simulations.
type V1SimulationsResponse struct {
	Simulations []V1Simulation `json:"simulations"`
}

// V1RunStartRequest contains the optional admin-account override for a run.
// The account is used for this run only and never persisted.
type V1RunStartRequest struct {
	AdminUsername string `json:"admin_username,omitempty"`
	AdminPassword string `json:"admin_password,omitempty"`
}

// V1Run represents a simulation run returned from the API.
type V1Run struct {
	ID           string `json:"id"`
	SimulationID string `json:"simulation_id"`
	Status       string `json:"status"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time,omitempty"`
}

// V1RunsResponse contains a list of runs.
type V1RunsResponse struct {
	Runs []V1Run `json:"runs"`
}

// V1LogMessage is one operator-visible log line of a run.
type V1LogMessage struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"ts"`
	Message   string `json:"message"`
	Error     bool   `json:"error,omitempty"`
}

// V1LogMessagesResponse contains the log lines of a run.
type V1LogMessagesResponse struct {
	Messages []V1LogMessage `json:"messages"`
}

// V1TimeBucket summarizes the samples of one truncated interval.
type V1TimeBucket struct {
	Start string  `json:"start"`
	Count int64   `json:"count"`
	AvgMS float64 `json:"avg_ms"`
}

// V1CategoryStats summarizes one request category of a finished run.
type V1CategoryStats struct {
	Category  string         `json:"category"`
	Count     int64          `json:"count"`
	AvgMS     float64        `json:"avg_ms"`
	PerMinute []V1TimeBucket `json:"per_minute,omitempty"`
	PerSecond []V1TimeBucket `json:"per_second,omitempty"`
}

// V1RunStatsResponse contains the aggregated request statistics of a run.
type V1RunStatsResponse struct {
	Stats []V1CategoryStats `json:"stats"`
}

// V1CiStatus is the build queue snapshot of a run.
type V1CiStatus struct {
	RunID            string  `json:"run_id"`
	Finished         bool    `json:"finished"`
	TotalJobs        int     `json:"total_jobs"`
	QueuedJobs       int     `json:"queued_jobs"`
	TimeInMinutes    int     `json:"time_in_minutes"`
	AvgJobsPerMinute float64 `json:"avg_jobs_per_minute"`
}

// V1ScheduleRequest contains parameters for creating or updating a schedule.
type V1ScheduleRequest struct {
	Cycle         string `json:"cycle"`
	TimeOfDay     string `json:"time_of_day"`
	DayOfWeek     string `json:"day_of_week,omitempty"`
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time,omitempty"`
}

// V1Schedule represents a schedule returned from the API.
type V1Schedule struct {
	ID            string         `json:"id"`
	SimulationID  string         `json:"simulation_id"`
	Cycle         string         `json:"cycle"`
	TimeOfDay     string         `json:"time_of_day"`
	DayOfWeek     string         `json:"day_of_week,omitempty"`
	StartDateTime string         `json:"start_date_time"`
	EndDateTime   string         `json:"end_date_time,omitempty"`
	NextRun       string         `json:"next_run"`
	Subscribers   []V1Subscriber `json:"subscribers,omitempty"`
}

// V1SchedulesResponse contains a list of schedules.
type V1SchedulesResponse struct {
	Schedules []V1Schedule `json:"schedules"`
}

// V1SubscribeRequest registers an email for schedule notifications.
type V1SubscribeRequest struct {
	Email string `json:"email"`
}

// V1Subscriber is one notification subscription on a schedule. The key
// authorizes unsubscribing.
type V1Subscriber struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Key   string `json:"key"`
}

// V1SubscribersResponse contains the subscribers of a schedule.
type V1SubscribersResponse struct {
	Subscribers []V1Subscriber `json:"subscribers"`
}

// V1Target describes one configured target server. Credentials and patterns
// are never exposed.
type V1Target struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Production     bool   `json:"production"`
	Local          bool   `json:"local"`
	CleanupEnabled bool   `json:"cleanup_enabled"`
}

// V1StatusResponse reports daemon and queue state.
type V1StatusResponse struct {
	Version      string     `json:"version"`
	TestMode     bool       `json:"test_mode,omitempty"`
	ActiveRunID  string     `json:"active_run_id,omitempty"`
	QueuedRunIDs []string   `json:"queued_run_ids,omitempty"`
	Targets      []V1Target `json:"targets"`
}

const timeOfDayLayout = "15:04"

func toV1Simulation(sim models.Simulation) V1Simulation {
	return V1Simulation{
		ID:                  sim.ID,
		Name:                sim.Name,
		NumberOfUsers:       sim.NumberOfUsers,
		CourseID:            sim.CourseID,
		ExamID:              sim.ExamID,
		Server:              string(sim.Server),
		Mode:                string(sim.Mode),
		CreationDate:        formatAPITime(sim.CreationDate),
		CustomizeUserRange:  sim.CustomizeUserRange,
		UserRange:           sim.UserRange,
		OnlineIDEPercentage: sim.OnlineIDEPercentage,
		PasswordPercentage:  sim.PasswordPercentage,
		TokenPercentage:     sim.TokenPercentage,
		SSHPercentage:       sim.SSHPercentage,
		CommitsFrom:         sim.CommitsFrom,
		CommitsTo:           sim.CommitsTo,
		InstructorUsername:  sim.InstructorUsername,
		InstructorProvided:  sim.InstructorCredentialsProvided(),
	}
}

func (req V1SimulationCreateRequest) toModel() models.Simulation {
	return models.Simulation{
		Name:                strings.TrimSpace(req.Name),
		NumberOfUsers:       req.NumberOfUsers,
		CourseID:            req.CourseID,
		ExamID:              req.ExamID,
		Server:              models.TargetServer(req.Server),
		Mode:                models.Mode(req.Mode),
		CustomizeUserRange:  req.CustomizeUserRange,
		UserRange:           strings.TrimSpace(req.UserRange),
		OnlineIDEPercentage: req.OnlineIDEPercentage,
		PasswordPercentage:  req.PasswordPercentage,
		TokenPercentage:     req.TokenPercentage,
		SSHPercentage:       req.SSHPercentage,
		CommitsFrom:         req.CommitsFrom,
		CommitsTo:           req.CommitsTo,
		InstructorUsername:  strings.TrimSpace(req.InstructorUsername),
		InstructorPassword:  req.InstructorPassword,
	}
}

func toV1Run(run models.SimulationRun) V1Run {
	out := V1Run{
		ID:           run.ID,
		SimulationID: run.SimulationID,
		Status:       string(run.Status),
		StartTime:    formatAPITime(run.StartTime),
	}
	if run.EndTime != nil {
		out.EndTime = formatAPITime(*run.EndTime)
	}
	return out
}

func toV1LogMessage(msg models.LogMessage) V1LogMessage {
	return V1LogMessage{
		ID:        msg.ID,
		Timestamp: formatAPITime(msg.Timestamp),
		Message:   msg.Message,
		Error:     msg.Error,
	}
}

func toV1CategoryStats(entry stats.CategoryStats) V1CategoryStats {
	return V1CategoryStats{
		Category:  string(entry.Category),
		Count:     entry.Count,
		AvgMS:     durationMS(entry.AvgDuration),
		PerMinute: toV1Buckets(entry.PerMinute),
		PerSecond: toV1Buckets(entry.PerSecond),
	}
}

func toV1Buckets(buckets []stats.TimeBucket) []V1TimeBucket {
	if len(buckets) == 0 {
		return nil
	}
	out := make([]V1TimeBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, V1TimeBucket{
			Start: formatAPITime(b.Start),
			Count: b.Count,
			AvgMS: durationMS(b.AvgDuration),
		})
	}
	return out
}

func toV1CiStatus(status models.CiStatus) V1CiStatus {
	return V1CiStatus{
		RunID:            status.RunID,
		Finished:         status.Finished,
		TotalJobs:        status.TotalJobs,
		QueuedJobs:       status.QueuedJobs,
		TimeInMinutes:    status.TimeInMinutes,
		AvgJobsPerMinute: status.AvgJobsPerMinute,
	}
}

func toV1Schedule(rule models.SimulationSchedule) V1Schedule {
	out := V1Schedule{
		ID:            rule.ID,
		SimulationID:  rule.SimulationID,
		Cycle:         string(rule.Cycle),
		TimeOfDay:     rule.TimeOfDay.Format(timeOfDayLayout),
		StartDateTime: formatAPITime(rule.StartDateTime),
		NextRun:       formatAPITime(rule.NextRun),
	}
	if rule.DayOfWeek != nil {
		out.DayOfWeek = strings.ToUpper(rule.DayOfWeek.String())
	}
	if rule.EndDateTime != nil {
		out.EndDateTime = formatAPITime(*rule.EndDateTime)
	}
	for _, sub := range rule.Subscribers {
		out.Subscribers = append(out.Subscribers, toV1Subscriber(sub))
	}
	return out
}

func (req V1ScheduleRequest) toModel(simulationID string) (models.SimulationSchedule, error) {
	rule := models.SimulationSchedule{
		SimulationID: simulationID,
		Cycle:        models.Cycle(strings.ToUpper(strings.TrimSpace(req.Cycle))),
	}
	tod, err := time.Parse(timeOfDayLayout, strings.TrimSpace(req.TimeOfDay))
	if err != nil {
		return rule, fmt.Errorf("time_of_day must be HH:MM: %w", err)
	}
	rule.TimeOfDay = tod
	switch {
	case req.DayOfWeek != "":
		if rule.Cycle == models.CycleDaily {
			return rule, fmt.Errorf("day_of_week is not allowed for DAILY schedules")
		}
		day, err := parseWeekday(req.DayOfWeek)
		if err != nil {
			return rule, err
		}
		rule.DayOfWeek = &day
	case rule.Cycle == models.CycleWeekly:
		return rule, fmt.Errorf("day_of_week is required for WEEKLY schedules")
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartDateTime))
	if err != nil {
		return rule, fmt.Errorf("start_date_time must be RFC 3339: %w", err)
	}
	rule.StartDateTime = start.UTC()
	if strings.TrimSpace(req.EndDateTime) != "" {
		end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndDateTime))
		if err != nil {
			return rule, fmt.Errorf("end_date_time must be RFC 3339: %w", err)
		}
		utc := end.UTC()
		rule.EndDateTime = &utc
	}
	return rule, nil
}

func toV1Subscriber(sub models.ScheduleSubscriber) V1Subscriber {
	return V1Subscriber{ID: sub.ID, Email: sub.Email, Key: sub.Key}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(value string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return 0, fmt.Errorf("invalid day_of_week %q", value)
	}
	return day, nil
}

func formatAPITime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
