// Package store provides SQLite-backed persistence for smartterm.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/smartterm/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrEmptyKey is returned when a setting or acknowledgement key is blank.
var ErrEmptyKey = errors.New("key cannot be empty")

// Store provides access to the smartterm SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS acknowledgements (
		key TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		handler TEXT NOT NULL,
		command TEXT NOT NULL,
		args TEXT,
		dir TEXT,
		exit_code INTEGER,
		stdout TEXT,
		stderr TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS usage_events (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		project TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_usage_events_action ON usage_events(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Setting Operations ---

// GetBool returns the boolean setting stored under key, or def when unset.
func (s *Store) GetBool(key string, def bool) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return def, ErrEmptyKey
	}

	var value int
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("query setting: %w", err)
	}
	return value != 0, nil
}

// SetBool stores a boolean setting, replacing any previous value.
func (s *Store) SetBool(key string, value bool) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	v := 0
	if value {
		v = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, v, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// --- Acknowledgement Operations ---
//
// Acknowledgements are monotonic: once written they are never removed, and
// there is intentionally no operation that clears one.

// IsAcknowledged reports whether key has been acknowledged.
func (s *Store) IsAcknowledged(key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrEmptyKey
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM acknowledgements WHERE key = ?`, key).Scan(&count); err != nil {
		return false, fmt.Errorf("query acknowledgement: %w", err)
	}
	return count > 0, nil
}

// Acknowledge records key as acknowledged. Repeated calls are no-ops.
func (s *Store) Acknowledge(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO acknowledgements (key, created_at) VALUES (?, ?)`,
		key, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert acknowledgement: %w", err)
	}
	return nil
}

// --- Run Operations ---

// CreateRun inserts a new run record for a handler execution.
func (s *Store) CreateRun(handler, command string, args []string, dir string) (*models.Run, error) {
	now := time.Now().UTC()
	argsJSON, _ := json.Marshal(args)

	run := &models.Run{
		ID:        uuid.New().String(),
		Handler:   handler,
		Command:   command,
		Args:      args,
		Dir:       dir,
		StartedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, handler, command, args, dir, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Handler, run.Command, string(argsJSON), run.Dir, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// UpdateRun updates a run with results.
func (s *Store) UpdateRun(id string, exitCode int, stdout, stderr string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET exit_code = ?, stdout = ?, stderr = ?, ended_at = ? WHERE id = ?`,
		exitCode, stdout, stderr, time.Now().UTC(), id,
	)
	return err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, handler, command, args, dir, exit_code, stdout, stderr, started_at, ended_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var argsJSON string
		var dir, stdout, stderr sql.NullString
		var endedAt sql.NullTime
		var exitCode sql.NullInt64

		if err := rows.Scan(&run.ID, &run.Handler, &run.Command, &argsJSON, &dir, &exitCode, &stdout, &stderr, &run.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		if argsJSON != "" {
			json.Unmarshal([]byte(argsJSON), &run.Args)
		}
		if dir.Valid {
			run.Dir = dir.String
		}
		if exitCode.Valid {
			run.ExitCode = int(exitCode.Int64)
		}
		if stdout.Valid {
			run.Stdout = stdout.String
		}
		if stderr.Valid {
			run.Stderr = stderr.String
		}
		if endedAt.Valid {
			run.EndedAt = endedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Usage Operations ---

// WriteUsageEvent writes a usage audit record.
func (s *Store) WriteUsageEvent(action, inputsHash, project, details string) (*models.UsageEvent, error) {
	event := &models.UsageEvent{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Project:    project,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO usage_events (id, action, inputs_hash, project, details, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Action, event.InputsHash, event.Project, event.Details, event.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert usage event: %w", err)
	}
	return event, nil
}

// CountUsageEvents returns how many usage events were recorded for action.
func (s *Store) CountUsageEvents(action string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM usage_events WHERE action = ?`, action).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage events: %w", err)
	}
	return count, nil
}
