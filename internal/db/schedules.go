// ABOUTME: Schedule and subscriber database operations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/examload/examload/internal/models"
)

// CreateSchedule inserts a new schedule row into the database.
func (s *Store) CreateSchedule(ctx context.Context, rule models.SimulationSchedule) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if rule.ID == "" {
		return errors.New("schedule id is required")
	}
	if rule.SimulationID == "" {
		return errors.New("schedule simulation_id is required")
	}
	var endDate interface{}
	if rule.EndDateTime != nil {
		endDate = formatTime(*rule.EndDateTime)
	}
	var dayOfWeek interface{}
	if rule.DayOfWeek != nil {
		dayOfWeek = int(*rule.DayOfWeek)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO schedules (
		id, simulation_id, cycle, time_of_day, day_of_week, start_date, end_date, next_run
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.SimulationID,
		rule.Cycle,
		formatTime(rule.TimeOfDay),
		dayOfWeek,
		formatTime(rule.StartDateTime),
		endDate,
		formatTime(rule.NextRun),
	)
	if err != nil {
		return fmt.Errorf("insert schedule %s: %w", rule.ID, err)
	}
	return nil
}

// UpdateSchedule replaces the recurrence fields of an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, rule models.SimulationSchedule) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if rule.ID == "" {
		return errors.New("schedule id is required")
	}
	var endDate interface{}
	if rule.EndDateTime != nil {
		endDate = formatTime(*rule.EndDateTime)
	}
	var dayOfWeek interface{}
	if rule.DayOfWeek != nil {
		dayOfWeek = int(*rule.DayOfWeek)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE schedules SET
		cycle = ?, time_of_day = ?, day_of_week = ?, start_date = ?, end_date = ?, next_run = ?
		WHERE id = ?`,
		rule.Cycle,
		formatTime(rule.TimeOfDay),
		dayOfWeek,
		formatTime(rule.StartDateTime),
		endDate,
		formatTime(rule.NextRun),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", rule.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected schedule %s: %w", rule.ID, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSchedule loads a schedule with its subscribers.
func (s *Store) GetSchedule(ctx context.Context, id string) (models.SimulationSchedule, error) {
	if s == nil || s.DB == nil {
		return models.SimulationSchedule{}, errors.New("db store is nil")
	}
	row := s.DB.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	rule, err := scanScheduleRow(row)
	if err != nil {
		return models.SimulationSchedule{}, err
	}
	rule.Subscribers, err = s.ListSubscribers(ctx, rule.ID)
	if err != nil {
		return models.SimulationSchedule{}, err
	}
	return rule, nil
}

// ListSchedulesForSimulation returns all schedules of a simulation.
func (s *Store) ListSchedulesForSimulation(ctx context.Context, simulationID string) ([]models.SimulationSchedule, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+scheduleColumns+`
		FROM schedules WHERE simulation_id = ? ORDER BY next_run, id`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list schedules for simulation %s: %w", simulationID, err)
	}
	return s.collectSchedules(ctx, rows)
}

// DueSchedules returns all schedules whose next run is at or before now,
// with subscribers attached.
func (s *Store) DueSchedules(now time.Time) ([]*models.SimulationSchedule, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	ctx := context.Background()
	// next_run values carry whole seconds, so truncating keeps the string
	// comparison aligned with time order.
	rows, err := s.DB.QueryContext(ctx, `SELECT `+scheduleColumns+`
		FROM schedules WHERE next_run <= ? ORDER BY next_run, id`, formatTime(now.Truncate(time.Second)))
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	rules, err := s.collectSchedules(ctx, rows)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SimulationSchedule, 0, len(rules))
	for i := range rules {
		out = append(out, &rules[i])
	}
	return out, nil
}

// UpdateScheduleNextRun moves a schedule to its next occurrence.
func (s *Store) UpdateScheduleNextRun(scheduleID string, next time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if scheduleID == "" {
		return errors.New("schedule id is required")
	}
	res, err := s.DB.Exec(`UPDATE schedules SET next_run = ? WHERE id = ?`, formatTime(next), scheduleID)
	if err != nil {
		return fmt.Errorf("update schedule %s next_run: %w", scheduleID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected schedule %s: %w", scheduleID, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSchedule removes a schedule and its subscribers.
func (s *Store) DeleteSchedule(scheduleID string) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if scheduleID == "" {
		return errors.New("schedule id is required")
	}
	res, err := s.DB.Exec(`DELETE FROM schedules WHERE id = ?`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", scheduleID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected schedule %s: %w", scheduleID, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddSubscriber attaches a notification subscription to a schedule.
func (s *Store) AddSubscriber(ctx context.Context, sub models.ScheduleSubscriber) (models.ScheduleSubscriber, error) {
	if s == nil || s.DB == nil {
		return models.ScheduleSubscriber{}, errors.New("db store is nil")
	}
	if sub.ScheduleID == "" {
		return models.ScheduleSubscriber{}, errors.New("subscriber schedule_id is required")
	}
	if sub.Email == "" {
		return models.ScheduleSubscriber{}, errors.New("subscriber email is required")
	}
	if sub.Key == "" {
		return models.ScheduleSubscriber{}, errors.New("subscriber key is required")
	}
	res, err := s.DB.ExecContext(ctx, `INSERT INTO schedule_subscribers (schedule_id, email, key)
		VALUES (?, ?, ?)`, sub.ScheduleID, sub.Email, sub.Key)
	if err != nil {
		return models.ScheduleSubscriber{}, fmt.Errorf("insert subscriber for schedule %s: %w", sub.ScheduleID, err)
	}
	sub.ID, err = res.LastInsertId()
	if err != nil {
		return models.ScheduleSubscriber{}, fmt.Errorf("subscriber id for schedule %s: %w", sub.ScheduleID, err)
	}
	return sub, nil
}

// DeleteSubscriberByKey removes the subscription identified by its
// unsubscribe key. Returns false when no such subscription exists.
func (s *Store) DeleteSubscriberByKey(ctx context.Context, key string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("db store is nil")
	}
	if key == "" {
		return false, errors.New("subscriber key is required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM schedule_subscribers WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete subscriber: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected subscriber: %w", err)
	}
	return affected > 0, nil
}

// ListSubscribers returns the subscribers of a schedule in insertion order.
func (s *Store) ListSubscribers(ctx context.Context, scheduleID string) ([]models.ScheduleSubscriber, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, schedule_id, email, key
		FROM schedule_subscribers WHERE schedule_id = ? ORDER BY id`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers for schedule %s: %w", scheduleID, err)
	}
	defer rows.Close()
	var out []models.ScheduleSubscriber
	for rows.Next() {
		var sub models.ScheduleSubscriber
		if err := rows.Scan(&sub.ID, &sub.ScheduleID, &sub.Email, &sub.Key); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return out, nil
}

const scheduleColumns = `id, simulation_id, cycle, time_of_day, day_of_week, start_date, end_date, next_run`

func (s *Store) collectSchedules(ctx context.Context, rows *sql.Rows) ([]models.SimulationSchedule, error) {
	defer rows.Close()
	var out []models.SimulationSchedule
	for rows.Next() {
		rule, err := scanScheduleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	for i := range out {
		subs, err := s.ListSubscribers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Subscribers = subs
	}
	return out, nil
}

func scanScheduleRow(scanner interface{ Scan(dest ...any) error }) (models.SimulationSchedule, error) {
	var rule models.SimulationSchedule
	var cycle string
	var timeOfDay string
	var dayOfWeek sql.NullInt64
	var startDate string
	var endDate sql.NullString
	var nextRun string
	if err := scanner.Scan(&rule.ID, &rule.SimulationID, &cycle, &timeOfDay, &dayOfWeek, &startDate, &endDate, &nextRun); err != nil {
		return models.SimulationSchedule{}, err
	}
	rule.Cycle = models.Cycle(cycle)
	if dayOfWeek.Valid {
		day := time.Weekday(dayOfWeek.Int64)
		rule.DayOfWeek = &day
	}
	var err error
	rule.TimeOfDay, err = parseTime(timeOfDay)
	if err != nil {
		return models.SimulationSchedule{}, fmt.Errorf("parse time_of_day: %w", err)
	}
	rule.StartDateTime, err = parseTime(startDate)
	if err != nil {
		return models.SimulationSchedule{}, fmt.Errorf("parse start_date: %w", err)
	}
	if endDate.Valid {
		parsed, err := parseTime(endDate.String)
		if err != nil {
			return models.SimulationSchedule{}, fmt.Errorf("parse end_date: %w", err)
		}
		rule.EndDateTime = &parsed
	}
	rule.NextRun, err = parseTime(nextRun)
	if err != nil {
		return models.SimulationSchedule{}, fmt.Errorf("parse next_run: %w", err)
	}
	return rule, nil
}
