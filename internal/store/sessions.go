package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/halim/overlook/internal/model"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// SessionRepository provides access to session rows.
type SessionRepository struct {
	db *sql.DB
}

// Create inserts a new session in pending state and returns it.
func (r *SessionRepository) Create(ctx context.Context, name string, metadata map[string]any) (model.Session, error) {
	now := time.Now().UTC()

	var metaJSON sql.NullString
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return model.Session{}, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(raw), Valid: true}
	}

	if name == "" {
		name = "session " + now.Format("2006-01-02 15:04:05")
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (name, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		name, model.StatusPending, metaJSON, now, now,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to read session id: %w", err)
	}

	return model.Session{
		ID:        id,
		Name:      name,
		Status:    model.StatusPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get returns a session by id, or ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, id int64) (model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, metadata, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// List returns a page of sessions, newest first, with the total count.
// The limit is clamped to [1, 100]; a non-positive limit uses the default.
func (r *SessionRepository) List(ctx context.Context, offset, limit int) ([]model.Session, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, status, metadata, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, limit)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read sessions: %w", err)
	}

	return sessions, total, nil
}

// UpdateStatus sets only the status (and updated_at) of a session.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStaleHalting flips sessions stuck in halting since before the cutoff
// to error, returning their ids. Used by the maintenance sweep.
func (r *SessionRepository) MarkStaleHalting(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE status = ? AND updated_at < ?`,
		model.StatusHalting, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to find stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := r.UpdateStatus(ctx, id, model.StatusError); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var (
		sess     model.Session
		status   string
		metaJSON sql.NullString
	)

	err := row.Scan(&sess.ID, &sess.Name, &status, &metaJSON, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to scan session: %w", err)
	}

	sess.Status = model.Status(status)
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &sess.Metadata); err != nil {
			return model.Session{}, fmt.Errorf("failed to decode session metadata: %w", err)
		}
	}
	return sess, nil
}
