// ABOUTME: Persistence for per-run CI build queue snapshots.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/examload/examload/internal/models"
)

// UpsertCiStatus stores or refreshes the build queue snapshot of a run.
func (s *Store) UpsertCiStatus(ctx context.Context, status models.CiStatus) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if status.RunID == "" {
		return errors.New("ci status run_id is required")
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO ci_status (
		run_id, finished, total_jobs, queued_jobs, time_in_minutes, avg_jobs_per_minute
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		finished = excluded.finished,
		total_jobs = excluded.total_jobs,
		queued_jobs = excluded.queued_jobs,
		time_in_minutes = excluded.time_in_minutes,
		avg_jobs_per_minute = excluded.avg_jobs_per_minute`,
		status.RunID,
		status.Finished,
		status.TotalJobs,
		status.QueuedJobs,
		status.TimeInMinutes,
		status.AvgJobsPerMinute,
	)
	if err != nil {
		return fmt.Errorf("upsert ci status for run %s: %w", status.RunID, err)
	}
	return nil
}

// GetCiStatus loads the build queue snapshot of a run, if one exists.
func (s *Store) GetCiStatus(ctx context.Context, runID string) (models.CiStatus, error) {
	if s == nil || s.DB == nil {
		return models.CiStatus{}, errors.New("db store is nil")
	}
	row := s.DB.QueryRowContext(ctx, `SELECT id, run_id, finished, total_jobs, queued_jobs, time_in_minutes, avg_jobs_per_minute
		FROM ci_status WHERE run_id = ?`, runID)
	var status models.CiStatus
	if err := row.Scan(
		&status.ID,
		&status.RunID,
		&status.Finished,
		&status.TotalJobs,
		&status.QueuedJobs,
		&status.TimeInMinutes,
		&status.AvgJobsPerMinute,
	); err != nil {
		return models.CiStatus{}, err
	}
	return status, nil
}
