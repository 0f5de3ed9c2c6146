// Package wire defines the websocket message envelope shared by the server
// hub and the console client, and the schema-validated decoders that turn
// payloads into domain shapes. Anything that does not match a known variant
// is rejected with an error; decoding never panics.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/halim/overlook/internal/model"
)

// Message types delivered over the websocket stream.
const (
	TypeTrajectory            = "trajectory"
	TypeSessionUpdate         = "session_update"
	TypeSessionDetailsUpdate  = "session_details_update"
	TypeConnectionEstablished = "connection_established"
)

// Envelope is the tagged wire shape of every websocket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionUpdate is a status-only change to a single session.
type SessionUpdate struct {
	ID     int64        `json:"id"`
	Status model.Status `json:"status"`
}

// DecodeEnvelope validates raw frame bytes against the envelope schema and
// returns the decoded envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if err := validate(envelopeSchema, data); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	return env, nil
}

// DecodeSessionUpdate decodes a session_update payload. Only the six
// lifecycle statuses are accepted; anything else fails validation.
func DecodeSessionUpdate(payload json.RawMessage) (SessionUpdate, error) {
	if err := validate(sessionUpdateSchema, payload); err != nil {
		return SessionUpdate{}, fmt.Errorf("invalid session_update payload: %w", err)
	}

	var upd SessionUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		return SessionUpdate{}, fmt.Errorf("invalid session_update payload: %w", err)
	}
	if !upd.Status.Recognized() {
		return SessionUpdate{}, fmt.Errorf("invalid session_update payload: unrecognized status %q", upd.Status)
	}
	return upd, nil
}

// DecodeTrajectory decodes a trajectory payload into the domain shape.
func DecodeTrajectory(payload json.RawMessage) (model.Trajectory, error) {
	if err := validate(trajectorySchema, payload); err != nil {
		return model.Trajectory{}, fmt.Errorf("invalid trajectory payload: %w", err)
	}

	var rec model.Trajectory
	if err := json.Unmarshal(payload, &rec); err != nil {
		return model.Trajectory{}, fmt.Errorf("invalid trajectory payload: %w", err)
	}
	return rec, nil
}

// DecodeSession decodes a full session payload into the domain shape.
func DecodeSession(payload json.RawMessage) (model.Session, error) {
	if err := validate(sessionSchema, payload); err != nil {
		return model.Session{}, fmt.Errorf("invalid session payload: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return model.Session{}, fmt.Errorf("invalid session payload: %w", err)
	}
	return sess, nil
}

// NewEnvelope wraps a payload value in an envelope of the given type.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}
