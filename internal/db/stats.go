// ABOUTME: Persistence for aggregated per-run request statistics.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/examload/examload/internal/lms"
	"github.com/examload/examload/internal/stats"
)

// Bucket scales as stored in stat_buckets.scale.
const (
	bucketScaleMinute = "MINUTE"
	bucketScaleSecond = "SECOND"
)

// SaveRunStats replaces the stored statistics of a run with the given
// aggregation result. All rows are written in one transaction.
func (s *Store) SaveRunStats(ctx context.Context, runID string, entries []stats.CategoryStats) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if runID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save stats for run %s: %w", runID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_stats WHERE run_id = ?`, runID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear stats for run %s: %w", runID, err)
	}
	for _, entry := range entries {
		res, err := tx.ExecContext(ctx, `INSERT INTO run_stats (run_id, category, request_count, avg_duration_ns)
			VALUES (?, ?, ?, ?)`,
			runID, entry.Category, entry.Count, int64(entry.AvgDuration))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert stats %s for run %s: %w", entry.Category, runID, err)
		}
		statID, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("stat id for run %s: %w", runID, err)
		}
		if err := insertBuckets(ctx, tx, statID, bucketScaleMinute, entry.PerMinute); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := insertBuckets(ctx, tx, statID, bucketScaleSecond, entry.PerSecond); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats for run %s: %w", runID, err)
	}
	return nil
}

// GetRunStats loads the stored statistics of a run, ordered by category.
func (s *Store) GetRunStats(ctx context.Context, runID string) ([]stats.CategoryStats, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, category, request_count, avg_duration_ns
		FROM run_stats WHERE run_id = ? ORDER BY category`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stats for run %s: %w", runID, err)
	}
	defer rows.Close()
	var out []stats.CategoryStats
	var statIDs []int64
	for rows.Next() {
		var statID int64
		var category string
		var count int64
		var avg int64
		if err := rows.Scan(&statID, &category, &count, &avg); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		statIDs = append(statIDs, statID)
		out = append(out, stats.CategoryStats{
			Category:    lms.RequestCategory(category),
			Count:       count,
			AvgDuration: time.Duration(avg),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	for i, statID := range statIDs {
		out[i].PerMinute, err = s.listBuckets(ctx, statID, bucketScaleMinute)
		if err != nil {
			return nil, err
		}
		out[i].PerSecond, err = s.listBuckets(ctx, statID, bucketScaleSecond)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func insertBuckets(ctx context.Context, tx *sql.Tx, statID int64, scale string, buckets []stats.TimeBucket) error {
	for _, bucket := range buckets {
		_, err := tx.ExecContext(ctx, `INSERT INTO stat_buckets (stat_id, scale, bucket_start, request_count, avg_duration_ns)
			VALUES (?, ?, ?, ?, ?)`,
			statID, scale, formatTime(bucket.Start), bucket.Count, int64(bucket.AvgDuration))
		if err != nil {
			return fmt.Errorf("insert %s bucket for stat %d: %w", scale, statID, err)
		}
	}
	return nil
}

func (s *Store) listBuckets(ctx context.Context, statID int64, scale string) ([]stats.TimeBucket, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT bucket_start, request_count, avg_duration_ns
		FROM stat_buckets WHERE stat_id = ? AND scale = ? ORDER BY bucket_start`, statID, scale)
	if err != nil {
		return nil, fmt.Errorf("list %s buckets for stat %d: %w", scale, statID, err)
	}
	defer rows.Close()
	var out []stats.TimeBucket
	for rows.Next() {
		var bucket stats.TimeBucket
		var start string
		var avg int64
		if err := rows.Scan(&start, &bucket.Count, &avg); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		bucket.Start, err = parseTime(start)
		if err != nil {
			return nil, fmt.Errorf("parse bucket_start: %w", err)
		}
		bucket.AvgDuration = time.Duration(avg)
		out = append(out, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return out, nil
}
