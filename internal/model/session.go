package model

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusHalting   Status = "halting"
	StatusHalted    Status = "halted"

	// StatusUnknown is a legitimate display state for sessions whose backend
	// status could not be determined. It is never accepted on the wire in a
	// status-only update.
	StatusUnknown Status = "unknown"
)

// Recognized reports whether the status is one of the six lifecycle values
// accepted in a status-only update.
func (s Status) Recognized() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusError, StatusHalting, StatusHalted:
		return true
	default:
		return false
	}
}

// Terminal reports whether the session has finished and cannot change
// status on its own.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusHalted:
		return true
	default:
		return false
	}
}

// Session is one agent run.
type Session struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
