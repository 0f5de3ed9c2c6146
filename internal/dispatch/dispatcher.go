// Package dispatch routes inbound websocket frames to the client stores.
package dispatch

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/halim/overlook/internal/state"
	"github.com/halim/overlook/internal/wire"
)

// Dispatcher interprets decoded envelopes and applies at most one store
// mutation per message. Malformed or unrecognized input is dropped with a
// diagnostic; nothing here crashes the stream.
type Dispatcher struct {
	sessions     *state.SessionStore
	trajectories *state.TrajectoryStore
	logger       zerolog.Logger
}

// Config holds dispatcher dependencies
type Config struct {
	Sessions     *state.SessionStore
	Trajectories *state.TrajectoryStore
	Logger       zerolog.Logger
}

// New creates a new dispatcher
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Trajectories == nil {
		return nil, errors.New("trajectory store is required")
	}

	return &Dispatcher{
		sessions:     cfg.Sessions,
		trajectories: cfg.Trajectories,
		logger:       cfg.Logger,
	}, nil
}

// Run consumes frames until the channel closes or the context is canceled.
// It is the single consumer of the channel, so messages are processed one
// at a time in delivery order.
func (d *Dispatcher) Run(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug().Msg("Dispatcher stopping")
			return
		case frame, ok := <-frames:
			if !ok {
				d.logger.Debug().Msg("Frame channel closed, dispatcher stopping")
				return
			}
			d.Dispatch(frame)
		}
	}
}

// Dispatch applies a single inbound frame to the stores.
func (d *Dispatcher) Dispatch(data []byte) {
	env, err := wire.DecodeEnvelope(data)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Dropping malformed message")
		return
	}

	switch env.Type {
	case wire.TypeTrajectory:
		rec, err := wire.DecodeTrajectory(env.Payload)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Dropping trajectory message")
			return
		}
		d.trajectories.Upsert(rec)

	case wire.TypeSessionUpdate:
		upd, err := wire.DecodeSessionUpdate(env.Payload)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Dropping session update")
			return
		}
		if !d.sessions.UpdateStatus(upd.ID, upd.Status) {
			d.logger.Debug().
				Int64("sessionId", upd.ID).
				Str("status", string(upd.Status)).
				Msg("Status update for session not in store")
		}

	case wire.TypeSessionDetailsUpdate:
		sess, err := wire.DecodeSession(env.Payload)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Dropping session details update")
			return
		}
		d.sessions.ReplaceSession(sess)

	default:
		d.logger.Debug().Str("type", env.Type).Msg("Unhandled message type")
	}
}
