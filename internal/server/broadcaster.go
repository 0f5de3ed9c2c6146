package server

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/halim/overlook/internal/model"
	"github.com/halim/overlook/internal/wire"
)

// Broadcaster fans persisted changes out to all connected clients as
// envelope messages. It satisfies runner.Publisher so agent output reaches
// live clients as soon as it is stored.
type Broadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: clients,
		logger:  logger,
	}
}

// SessionStatusChanged broadcasts a status-only session update.
func (b *Broadcaster) SessionStatusChanged(id int64, status model.Status) {
	b.send(wire.TypeSessionUpdate, wire.SessionUpdate{ID: id, Status: status})
}

// TrajectoryRecorded broadcasts a trajectory record.
func (b *Broadcaster) TrajectoryRecorded(rec model.Trajectory) {
	b.send(wire.TypeTrajectory, rec)
}

// SessionChanged broadcasts a full session snapshot.
func (b *Broadcaster) SessionChanged(sess model.Session) {
	b.send(wire.TypeSessionDetailsUpdate, sess)
}

func (b *Broadcaster) send(msgType string, payload any) {
	env, err := wire.NewEnvelope(msgType, payload)
	if err != nil {
		b.logger.Error().Err(err).Str("type", msgType).Msg("Failed to build envelope")
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal envelope")
		return
	}

	clients := b.clients.GetAll()
	if len(clients) == 0 {
		b.logger.Debug().Str("type", msgType).Msg("No clients to broadcast to")
		return
	}

	successCount := 0
	failureCount := 0

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("type", msgType).
				Msg("Failed to broadcast to client")
			failureCount++
		} else {
			successCount++
		}
	}

	b.logger.Debug().
		Str("type", msgType).
		Int("success", successCount).
		Int("failed", failureCount).
		Msg("Broadcast complete")
}
