// Package store persists sessions and trajectory records in sqlite.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store owns the database handle and hands out repositories.
type Store struct {
	db           *sql.DB
	logger       zerolog.Logger
	sessions     *SessionRepository
	trajectories *TrajectoryRepository
}

// Config holds store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Open opens (creating if necessary) the sqlite database and initializes
// the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}
	s.sessions = &SessionRepository{db: db}
	s.trajectories = &TrajectoryRepository{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.DBPath).Msg("Store opened")

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trajectories (
		id TEXT PRIMARY KEY,
		session_id INTEGER NOT NULL REFERENCES sessions(id),
		record_type TEXT NOT NULL DEFAULT '',
		tool_name TEXT NOT NULL DEFAULT '',
		tool_parameters TEXT,
		tool_result TEXT,
		step_data TEXT,
		is_error INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trajectories_session
		ON trajectories(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Sessions returns the session repository.
func (s *Store) Sessions() *SessionRepository {
	return s.sessions
}

// Trajectories returns the trajectory repository.
func (s *Store) Trajectories() *TrajectoryRepository {
	return s.trajectories
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
