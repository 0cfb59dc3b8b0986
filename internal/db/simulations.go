// ABOUTME: Simulation database operations for creating, listing, and deleting simulations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/examload/examload/internal/models"
)

const timeLayout = time.RFC3339Nano

// CreateSimulation inserts a new simulation row into the database.
func (s *Store) CreateSimulation(ctx context.Context, sim models.Simulation) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if sim.ID == "" {
		return errors.New("simulation id is required")
	}
	if sim.Name == "" {
		return errors.New("simulation name is required")
	}
	if sim.Server == "" {
		return errors.New("simulation server is required")
	}
	if !sim.Mode.Valid() {
		return fmt.Errorf("unknown simulation mode %q", sim.Mode)
	}
	creationDate := sim.CreationDate
	if creationDate.IsZero() {
		creationDate = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO simulations (
		id, name, number_of_users, course_id, exam_id, server, mode, creation_date,
		customize_user_range, user_range,
		ide_percentage, password_percentage, token_percentage, ssh_percentage,
		commits_from, commits_to, instructor_username, instructor_password
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sim.ID,
		sim.Name,
		sim.NumberOfUsers,
		sim.CourseID,
		sim.ExamID,
		sim.Server,
		sim.Mode,
		formatTime(creationDate),
		sim.CustomizeUserRange,
		nullIfEmpty(sim.UserRange),
		sim.OnlineIDEPercentage,
		sim.PasswordPercentage,
		sim.TokenPercentage,
		sim.SSHPercentage,
		sim.CommitsFrom,
		sim.CommitsTo,
		nullIfEmpty(sim.InstructorUsername),
		nullIfEmpty(sim.InstructorPassword),
	)
	if err != nil {
		return fmt.Errorf("insert simulation %s: %w", sim.ID, err)
	}
	return nil
}

// GetSimulation loads a simulation by id.
func (s *Store) GetSimulation(ctx context.Context, id string) (models.Simulation, error) {
	if s == nil || s.DB == nil {
		return models.Simulation{}, errors.New("db store is nil")
	}
	row := s.DB.QueryRowContext(ctx, `SELECT `+simulationColumns+` FROM simulations WHERE id = ?`, id)
	return scanSimulationRow(row)
}

// ListSimulations returns all simulations ordered by creation date, newest first.
func (s *Store) ListSimulations(ctx context.Context) ([]models.Simulation, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+simulationColumns+`
		FROM simulations ORDER BY creation_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	defer rows.Close()
	var out []models.Simulation
	for rows.Next() {
		sim, err := scanSimulationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simulations: %w", err)
	}
	return out, nil
}

// UpdateSimulationInstructor stores new instructor credentials for a simulation.
func (s *Store) UpdateSimulationInstructor(ctx context.Context, id, username, password string) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if id == "" {
		return errors.New("simulation id is required")
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE simulations
		SET instructor_username = ?, instructor_password = ? WHERE id = ?`,
		nullIfEmpty(username), nullIfEmpty(password), id)
	if err != nil {
		return fmt.Errorf("update simulation %s instructor: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected simulation %s: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSimulation removes a simulation and, through foreign keys, all of
// its runs, logs, statistics, and schedules.
func (s *Store) DeleteSimulation(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	if id == "" {
		return errors.New("simulation id is required")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM simulations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete simulation %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected simulation %s: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const simulationColumns = `id, name, number_of_users, course_id, exam_id, server, mode, creation_date,
	customize_user_range, user_range,
	ide_percentage, password_percentage, token_percentage, ssh_percentage,
	commits_from, commits_to, instructor_username, instructor_password`

func scanSimulationRow(scanner interface{ Scan(dest ...any) error }) (models.Simulation, error) {
	var sim models.Simulation
	var server string
	var mode string
	var creationDate string
	var userRange sql.NullString
	var instructorUsername sql.NullString
	var instructorPassword sql.NullString
	if err := scanner.Scan(
		&sim.ID,
		&sim.Name,
		&sim.NumberOfUsers,
		&sim.CourseID,
		&sim.ExamID,
		&server,
		&mode,
		&creationDate,
		&sim.CustomizeUserRange,
		&userRange,
		&sim.OnlineIDEPercentage,
		&sim.PasswordPercentage,
		&sim.TokenPercentage,
		&sim.SSHPercentage,
		&sim.CommitsFrom,
		&sim.CommitsTo,
		&instructorUsername,
		&instructorPassword,
	); err != nil {
		return models.Simulation{}, err
	}
	sim.Server = models.TargetServer(server)
	sim.Mode = models.Mode(mode)
	if userRange.Valid {
		sim.UserRange = userRange.String
	}
	if instructorUsername.Valid {
		sim.InstructorUsername = instructorUsername.String
	}
	if instructorPassword.Valid {
		sim.InstructorPassword = instructorPassword.String
	}
	var err error
	if creationDate != "" {
		sim.CreationDate, err = parseTime(creationDate)
		if err != nil {
			return models.Simulation{}, fmt.Errorf("parse creation_date: %w", err)
		}
	}
	return sim, nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
