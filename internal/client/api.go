package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/halim/overlook/internal/model"
)

// API is the REST consumer for the session endpoints.
type API struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// APIConfig holds REST client configuration
type APIConfig struct {
	// BaseURL is the server base, e.g. http://127.0.0.1:1818
	BaseURL string
	Logger  zerolog.Logger
	Timeout time.Duration
}

// PaginatedSessions is the list response shape.
type PaginatedSessions struct {
	Total  int             `json:"total"`
	Items  []model.Session `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// NewAPI creates a new REST client
func NewAPI(cfg APIConfig) (*API, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &API{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}, nil
}

// WebSocketURL derives the event stream endpoint from the base URL.
func (a *API) WebSocketURL() (string, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	u.Path = "/v1/ws"
	return u.String(), nil
}

// ListSessions fetches one page of sessions.
func (a *API) ListSessions(ctx context.Context, offset, limit int) (PaginatedSessions, error) {
	endpoint := a.baseURL + "/v1/session?offset=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(limit)

	var page PaginatedSessions
	if err := a.getJSON(ctx, endpoint, &page); err != nil {
		return PaginatedSessions{}, err
	}
	return page, nil
}

// CreateSession spawns a new session on the server.
func (a *API) CreateSession(ctx context.Context, name string) (model.Session, error) {
	body, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/session", bytes.NewReader(body))
	if err != nil {
		return model.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return model.Session{}, fmt.Errorf("create session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return model.Session{}, statusError(resp)
	}

	var sess model.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return model.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return sess, nil
}

// HaltSession requests that the server stop a session.
func (a *API) HaltSession(ctx context.Context, id int64) error {
	endpoint := fmt.Sprintf("%s/v1/session/%d", a.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("halt session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

// SessionTrajectories fetches all trajectory records for a session.
func (a *API) SessionTrajectories(ctx context.Context, id int64) ([]model.Trajectory, error) {
	endpoint := fmt.Sprintf("%s/v1/session/%d/trajectory", a.baseURL, id)

	var records []model.Trajectory
	if err := a.getJSON(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *API) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, msg)
}
