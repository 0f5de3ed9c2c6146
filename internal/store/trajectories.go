package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/halim/overlook/internal/model"
)

// TrajectoryRepository provides access to trajectory rows.
type TrajectoryRepository struct {
	db *sql.DB
}

// Upsert inserts the record, or replaces the existing row with the same id.
func (r *TrajectoryRepository) Upsert(ctx context.Context, rec model.Trajectory) error {
	params, err := marshalColumn(rec.ToolParameters)
	if err != nil {
		return fmt.Errorf("failed to marshal tool parameters: %w", err)
	}
	result, err := marshalColumn(rec.ToolResult)
	if err != nil {
		return fmt.Errorf("failed to marshal tool result: %w", err)
	}
	step, err := marshalColumn(rec.StepData)
	if err != nil {
		return fmt.Errorf("failed to marshal step data: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO trajectories
			(id, session_id, record_type, tool_name, tool_parameters, tool_result, step_data, is_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			record_type = excluded.record_type,
			tool_name = excluded.tool_name,
			tool_parameters = excluded.tool_parameters,
			tool_result = excluded.tool_result,
			step_data = excluded.step_data,
			is_error = excluded.is_error`,
		rec.ID, rec.SessionID, rec.RecordType, rec.ToolName,
		params, result, step, rec.IsError, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trajectory: %w", err)
	}
	return nil
}

// BySession returns all trajectory records for a session in creation order.
func (r *TrajectoryRepository) BySession(ctx context.Context, sessionID int64) ([]model.Trajectory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, record_type, tool_name, tool_parameters, tool_result, step_data, is_error, created_at
		 FROM trajectories WHERE session_id = ? ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trajectories: %w", err)
	}
	defer rows.Close()

	records := []model.Trajectory{}
	for rows.Next() {
		var (
			rec                  model.Trajectory
			params, result, step sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.RecordType, &rec.ToolName,
			&params, &result, &step, &rec.IsError, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory: %w", err)
		}

		if rec.ToolParameters, err = unmarshalColumn(params); err != nil {
			return nil, err
		}
		if rec.ToolResult, err = unmarshalColumn(result); err != nil {
			return nil, err
		}
		if rec.StepData, err = unmarshalColumn(step); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trajectories: %w", err)
	}

	return records, nil
}

func marshalColumn(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalColumn(col sql.NullString) (map[string]any, error) {
	if !col.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, fmt.Errorf("failed to decode trajectory column: %w", err)
	}
	return m, nil
}
