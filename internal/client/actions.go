package client

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/halim/overlook/internal/model"
	"github.com/halim/overlook/internal/state"
)

// Actions bundles the store-mutating commands the console issues against
// the server. Network failures degrade to a log line; the session store's
// error flag (set by FetchSessions) is the only user-visible error surface.
type Actions struct {
	api          *API
	sessions     *state.SessionStore
	trajectories *state.TrajectoryStore
	logger       zerolog.Logger
}

// ActionsConfig holds action dependencies
type ActionsConfig struct {
	API          *API
	Sessions     *state.SessionStore
	Trajectories *state.TrajectoryStore
	Logger       zerolog.Logger
}

// NewActions creates a new action set
func NewActions(cfg ActionsConfig) (*Actions, error) {
	if cfg.API == nil {
		return nil, errors.New("api client is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Trajectories == nil {
		return nil, errors.New("trajectory store is required")
	}

	return &Actions{
		api:          cfg.API,
		sessions:     cfg.Sessions,
		trajectories: cfg.Trajectories,
		logger:       cfg.Logger,
	}, nil
}

// FetchSessions loads the session list into the store, driving the
// loading and error flags.
func (a *Actions) FetchSessions(ctx context.Context) {
	a.sessions.SetLoading(true)

	page, err := a.api.ListSessions(ctx, 0, 100)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to fetch sessions")
		a.sessions.SetLoading(false)
		a.sessions.SetError(err.Error())
		return
	}

	a.sessions.SetSessions(page.Items)
}

// StartNewSession creates a session on the server, inserts it into the
// store and selects it.
func (a *Actions) StartNewSession(ctx context.Context, name string) (model.Session, error) {
	sess, err := a.api.CreateSession(ctx, name)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to create session")
		return model.Session{}, err
	}

	a.sessions.ReplaceSession(sess)
	a.sessions.Select(sess.ID)
	a.trajectories.Reset(nil)
	return sess, nil
}

// HaltSession asks the server to stop a session. On success the session is
// marked halted locally; on failure the error is logged and nothing else
// happens.
func (a *Actions) HaltSession(ctx context.Context, id int64) {
	if err := a.api.HaltSession(ctx, id); err != nil {
		a.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to halt session")
		return
	}
	a.sessions.MarkHalted(id)
}

// LoadTrajectories replaces the trajectory store with the selected
// session's history.
func (a *Actions) LoadTrajectories(ctx context.Context, sessionID int64) {
	records, err := a.api.SessionTrajectories(ctx, sessionID)
	if err != nil {
		a.logger.Error().Err(err).Int64("sessionId", sessionID).Msg("Failed to load trajectories")
		return
	}
	a.trajectories.Reset(records)
}
