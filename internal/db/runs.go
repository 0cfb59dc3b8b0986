// ABOUTME: Run database operations covering lifecycle transitions and log append.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/examload/examload/internal/models"
)

// CreateRun inserts a new run row into the database.
func (s *Store) CreateRun(ctx context.Context, run models.SimulationRun) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.SimulationID == "" {
		return errors.New("run simulation_id is required")
	}
	if run.Status == "" {
		return errors.New("run status is required")
	}
	startTime := run.StartTime
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}
	var endTime interface{}
	if run.EndTime != nil {
		endTime = formatTime(*run.EndTime)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO simulation_runs (
		id, simulation_id, status, start_time, end_time
	) VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		run.SimulationID,
		run.Status,
		formatTime(startTime),
		endTime,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (models.SimulationRun, error) {
	if s == nil || s.DB == nil {
		return models.SimulationRun{}, errors.New("db store is nil")
	}
	row := s.DB.QueryRowContext(ctx, `SELECT id, simulation_id, status, start_time, end_time
		FROM simulation_runs WHERE id = ?`, id)
	return scanRunRow(row)
}

// ListRunsForSimulation returns all runs of a simulation, newest first.
func (s *Store) ListRunsForSimulation(ctx context.Context, simulationID string) ([]models.SimulationRun, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, simulation_id, status, start_time, end_time
		FROM simulation_runs WHERE simulation_id = ?
		ORDER BY start_time DESC, id`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list runs for simulation %s: %w", simulationID, err)
	}
	return collectRuns(rows)
}

// ListQueuedRuns returns all QUEUED runs ordered by start time, oldest
// first. This is the recovery order used to refill the queue on startup.
func (s *Store) ListQueuedRuns(ctx context.Context) ([]models.SimulationRun, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, simulation_id, status, start_time, end_time
		FROM simulation_runs WHERE status = ?
		ORDER BY start_time, id`, models.RunQueued)
	if err != nil {
		return nil, fmt.Errorf("list queued runs: %w", err)
	}
	return collectRuns(rows)
}

// UpdateRunStatus updates the status of a run. When status is terminal the
// end time is recorded alongside it.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if id == "" {
		return errors.New("run id is required")
	}
	if status == "" {
		return errors.New("run status is required")
	}
	var res sql.Result
	var err error
	if status.Terminal() {
		res, err = s.DB.ExecContext(ctx, `UPDATE simulation_runs SET status = ?, end_time = ? WHERE id = ?`,
			status, formatTime(time.Now().UTC()), id)
	} else {
		res, err = s.DB.ExecContext(ctx, `UPDATE simulation_runs SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("update run %s status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected run %s: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRun removes a run and, through foreign keys, its logs, statistics,
// and CI status snapshot.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if id == "" {
		return errors.New("run id is required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM simulation_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected run %s: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendLogMessage attaches a log line to a run. Messages longer than
// models.MaxLogMessageLen are truncated before insert.
func (s *Store) AppendLogMessage(ctx context.Context, msg models.LogMessage) (models.LogMessage, error) {
	if s == nil || s.DB == nil {
		return models.LogMessage{}, errors.New("db store is nil")
	}
	if msg.RunID == "" {
		return models.LogMessage{}, errors.New("log run_id is required")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if len(msg.Message) > models.MaxLogMessageLen {
		cut := models.MaxLogMessageLen
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		for cut > 0 && !utf8.RuneStart(msg.Message[cut]) {
			cut--
		}
		msg.Message = msg.Message[:cut]
	}
	res, err := s.DB.ExecContext(ctx, `INSERT INTO log_messages (run_id, ts, message, is_error)
		VALUES (?, ?, ?, ?)`,
		msg.RunID, formatTime(msg.Timestamp), msg.Message, msg.Error)
	if err != nil {
		return models.LogMessage{}, fmt.Errorf("insert log message for run %s: %w", msg.RunID, err)
	}
	msg.ID, err = res.LastInsertId()
	if err != nil {
		return models.LogMessage{}, fmt.Errorf("log message id for run %s: %w", msg.RunID, err)
	}
	return msg, nil
}

// ListLogMessages returns the log of a run in append order.
func (s *Store) ListLogMessages(ctx context.Context, runID string) ([]models.LogMessage, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, run_id, ts, message, is_error
		FROM log_messages WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list log messages for run %s: %w", runID, err)
	}
	defer rows.Close()
	var out []models.LogMessage
	for rows.Next() {
		var msg models.LogMessage
		var ts string
		if err := rows.Scan(&msg.ID, &msg.RunID, &ts, &msg.Message, &msg.Error); err != nil {
			return nil, fmt.Errorf("scan log message: %w", err)
		}
		msg.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse log timestamp: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log messages: %w", err)
	}
	return out, nil
}

func collectRuns(rows *sql.Rows) ([]models.SimulationRun, error) {
	defer rows.Close()
	var out []models.SimulationRun
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func scanRunRow(scanner interface{ Scan(dest ...any) error }) (models.SimulationRun, error) {
	var run models.SimulationRun
	var status string
	var startTime string
	var endTime sql.NullString
	if err := scanner.Scan(&run.ID, &run.SimulationID, &status, &startTime, &endTime); err != nil {
		return models.SimulationRun{}, err
	}
	if status == "" {
		return models.SimulationRun{}, errors.New("run status missing")
	}
	run.Status = models.RunStatus(status)
	var err error
	if startTime != "" {
		run.StartTime, err = parseTime(startTime)
		if err != nil {
			return models.SimulationRun{}, fmt.Errorf("parse start_time: %w", err)
		}
	}
	if endTime.Valid {
		parsed, err := parseTime(endTime.String)
		if err != nil {
			return models.SimulationRun{}, fmt.Errorf("parse end_time: %w", err)
		}
		run.EndTime = &parsed
	}
	return run, nil
}
