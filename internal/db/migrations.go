// ABOUTME: Database schema migrations and version management.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// migration represents a single schema migration with version, name, and SQL statements.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "init_core_tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS simulations (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				number_of_users INTEGER NOT NULL,
				course_id INTEGER NOT NULL DEFAULT 0,
				exam_id INTEGER NOT NULL DEFAULT 0,
				server TEXT NOT NULL,
				mode TEXT NOT NULL,
				creation_date TEXT NOT NULL,
				customize_user_range INTEGER NOT NULL DEFAULT 0,
				user_range TEXT,
				ide_percentage REAL NOT NULL DEFAULT 100,
				password_percentage REAL NOT NULL DEFAULT 0,
				token_percentage REAL NOT NULL DEFAULT 0,
				ssh_percentage REAL NOT NULL DEFAULT 0,
				commits_from INTEGER NOT NULL DEFAULT 8,
				commits_to INTEGER NOT NULL DEFAULT 15,
				instructor_username TEXT,
				instructor_password TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS simulation_runs (
				id TEXT PRIMARY KEY,
				simulation_id TEXT NOT NULL,
				status TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT,
				FOREIGN KEY(simulation_id) REFERENCES simulations(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS log_messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				ts TEXT NOT NULL,
				message TEXT NOT NULL,
				is_error INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY(run_id) REFERENCES simulation_runs(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS run_stats (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				category TEXT NOT NULL,
				request_count INTEGER NOT NULL,
				avg_duration_ns INTEGER NOT NULL,
				UNIQUE(run_id, category),
				FOREIGN KEY(run_id) REFERENCES simulation_runs(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS stat_buckets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				stat_id INTEGER NOT NULL,
				scale TEXT NOT NULL,
				bucket_start TEXT NOT NULL,
				request_count INTEGER NOT NULL,
				avg_duration_ns INTEGER NOT NULL,
				FOREIGN KEY(stat_id) REFERENCES run_stats(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS schedules (
				id TEXT PRIMARY KEY,
				simulation_id TEXT NOT NULL,
				cycle TEXT NOT NULL,
				time_of_day TEXT NOT NULL,
				day_of_week INTEGER,
				start_date TEXT NOT NULL,
				end_date TEXT,
				next_run TEXT NOT NULL,
				FOREIGN KEY(simulation_id) REFERENCES simulations(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS schedule_subscribers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				schedule_id TEXT NOT NULL,
				email TEXT NOT NULL,
				key TEXT NOT NULL UNIQUE,
				FOREIGN KEY(schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_simulation ON simulation_runs(simulation_id)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_status ON simulation_runs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_log_messages_run ON log_messages(run_id)`,
			`CREATE INDEX IF NOT EXISTS idx_run_stats_run ON run_stats(run_id)`,
			`CREATE INDEX IF NOT EXISTS idx_stat_buckets_stat ON stat_buckets(stat_id)`,
			`CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run)`,
			`CREATE INDEX IF NOT EXISTS idx_subscribers_schedule ON schedule_subscribers(schedule_id)`,
		},
	},
	{
		version: 2,
		name:    "add_ci_status",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS ci_status (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL UNIQUE,
				finished INTEGER NOT NULL DEFAULT 0,
				total_jobs INTEGER NOT NULL DEFAULT 0,
				queued_jobs INTEGER NOT NULL DEFAULT 0,
				time_in_minutes INTEGER NOT NULL DEFAULT 0,
				avg_jobs_per_minute REAL NOT NULL DEFAULT 0,
				FOREIGN KEY(run_id) REFERENCES simulation_runs(id) ON DELETE CASCADE
			)`,
		},
	},
}

// Migrate runs any pending migrations against the provided database.
//
// This function:
//   - Enables foreign key constraints
//   - Validates migration definitions (no duplicates, ordered versions)
//   - Ensures schema_migrations table exists
//   - Loads previously applied migration versions
//   - Verifies applied migrations are still known
//   - Applies any pending migrations in transaction
//
// Migrations are applied in version order. Each migration runs in a
// separate transaction for atomicity. Returns an error if any step fails.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}
	// Enable foreign key constraints in SQLite
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := validateMigrations(); err != nil {
		return err
	}
	if err := ensureSchemaMigrations(db); err != nil {
		return err
	}
	applied, err := loadAppliedVersions(db)
	if err != nil {
		return err
	}
	if err := verifyKnownMigrations(applied); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, ok := applied[m.version]; ok {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

// ensureSchemaMigrations creates the schema_migrations tracking table if it doesn't exist.
func ensureSchemaMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// loadAppliedVersions returns a set of migration versions that have been applied.
func loadAppliedVersions(db *sql.DB) (map[int]struct{}, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[int]struct{})
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

// verifyKnownMigrations ensures all applied migrations still exist in the codebase.
//
// This prevents a scenario where a migration was applied but then removed
// from the code, which would cause database schema drift.
func verifyKnownMigrations(applied map[int]struct{}) error {
	known := make(map[int]struct{}, len(migrations))
	for _, m := range migrations {
		known[m.version] = struct{}{}
	}
	for version := range applied {
		if _, ok := known[version]; !ok {
			return fmt.Errorf("unknown schema migration version %d", version)
		}
	}
	return nil
}

// applyMigration executes a single migration within a transaction.
//
// Runs all SQL statements for the migration in order. If any statement
// fails, the transaction is rolled back. On success, records the migration
// in schema_migrations before committing.
func applyMigration(db *sql.DB, m migration) error {
	if len(m.statements) == 0 {
		return fmt.Errorf("migration %d has no statements", m.version)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	for _, stmt := range m.statements {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		if _, err := tx.Exec(trimmed); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %d: %w", m.version, err)
		}
	}
	appliedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`, m.version, m.name, appliedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}

// validateMigrations checks that all migrations are properly defined.
func validateMigrations() error {
	if len(migrations) == 0 {
		return errors.New("no migrations defined")
	}
	seen := make(map[int]struct{}, len(migrations))
	prev := 0
	for _, m := range migrations {
		if m.version <= 0 {
			return fmt.Errorf("migration version must be positive: %d", m.version)
		}
		if _, ok := seen[m.version]; ok {
			return fmt.Errorf("duplicate migration version %d", m.version)
		}
		if m.version < prev {
			return fmt.Errorf("migration version %d is out of order", m.version)
		}
		if strings.TrimSpace(m.name) == "" {
			return fmt.Errorf("migration %d missing name", m.version)
		}
		seen[m.version] = struct{}{}
		prev = m.version
	}
	return nil
}
