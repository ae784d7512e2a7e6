// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists launch records to a local SQLite database
// so past session launches can be inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one recorded session launch.
type Record struct {
	ID        string
	StartedAt time.Time
	Outcome   string
	Steps     []StepRecord
}

// StepRecord is one launched process within a launch.
type StepRecord struct {
	Name    string
	PID     int
	LogPath string
}

// Store is a SQLite-backed launch history.
//
// Features:
//   - WAL mode for better concurrency
//   - Foreign key constraints enabled
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the launch history database at path.
// Migrations are run automatically.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// SQLite connection string with WAL mode for better concurrency
	connStr := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A launcher writes rarely; keep the pool small
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS launches (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			outcome TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS launch_steps (
			launch_id TEXT NOT NULL REFERENCES launches(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			log_path TEXT,
			PRIMARY KEY (launch_id, name)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_launches_started_at
			ON launches(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Add inserts a launch record. A missing ID or start time is filled in.
func (s *Store) Add(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO launches (id, started_at, outcome) VALUES (?, ?, ?)`,
		rec.ID, rec.StartedAt.Format(time.RFC3339), rec.Outcome)
	if err != nil {
		return fmt.Errorf("failed to insert launch: %w", err)
	}

	for _, step := range rec.Steps {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO launch_steps (launch_id, name, pid, log_path) VALUES (?, ?, ?, ?)`,
			rec.ID, step.Name, step.PID, step.LogPath)
		if err != nil {
			return fmt.Errorf("failed to insert launch step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit launch record: %w", err)
	}
	return nil
}

// List returns the most recent launches, newest first. limit <= 0
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT id, started_at, outcome FROM launches ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query launches: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var startedAt string
		if err := rows.Scan(&rec.ID, &startedAt, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan launch: %w", err)
		}
		rec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at for launch %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate launches: %w", err)
	}

	for _, rec := range records {
		steps, err := s.listSteps(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Steps = steps
	}

	return records, nil
}

func (s *Store) listSteps(ctx context.Context, launchID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, pid, log_path FROM launch_steps WHERE launch_id = ? ORDER BY rowid`,
		launchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query launch steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var step StepRecord
		var logPath sql.NullString
		if err := rows.Scan(&step.Name, &step.PID, &logPath); err != nil {
			return nil, fmt.Errorf("failed to scan launch step: %w", err)
		}
		step.LogPath = logPath.String
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
