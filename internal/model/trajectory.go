package model

import "time"

// Trajectory is one recorded step within a session: a tool invocation, its
// result, or a display-only step.
type Trajectory struct {
	ID             string         `json:"id"`
	SessionID      int64          `json:"session_id"`
	RecordType     string         `json:"record_type"`
	ToolName       string         `json:"tool_name,omitempty"`
	ToolParameters map[string]any `json:"tool_parameters,omitempty"`
	ToolResult     map[string]any `json:"tool_result,omitempty"`
	StepData       map[string]any `json:"step_data,omitempty"`
	IsError        bool           `json:"is_error"`
	CreatedAt      time.Time      `json:"created_at"`
}
