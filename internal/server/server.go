package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/halim/overlook/internal/model"
	"github.com/halim/overlook/internal/store"
	"github.com/halim/overlook/internal/wire"
)

// AgentController is the part of the runner the server drives.
type AgentController interface {
	Start(ctx context.Context, sess model.Session) error
	Stop(id int64) bool
	Running(id int64) bool
}

// Server exposes the session API and the live event stream.
type Server struct {
	host           string
	port           int
	server         *http.Server
	upgrader       websocket.Upgrader
	clients        *ClientRegistry
	broadcaster    *Broadcaster
	store          *store.Store
	agents         AgentController
	cron           *cron.Cron
	sweepSchedule  string
	staleAfter     time.Duration
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// Config holds server configuration
type Config struct {
	Host  string
	Port  int
	Store *store.Store
	// Agents may be nil when the server only serves stored sessions.
	Agents AgentController
	// SweepSchedule is the cron expression for the stale-halting sweep.
	// Empty disables the sweep.
	SweepSchedule string
	// StaleAfter is how long a session may sit in halting before the sweep
	// marks it as errored.
	StaleAfter time.Duration
	Logger     zerolog.Logger
}

// New creates a new server
func New(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}

	clients := NewClientRegistry()

	s := &Server{
		host:          cfg.Host,
		port:          cfg.Port,
		clients:       clients,
		broadcaster:   NewBroadcaster(clients, cfg.Logger),
		store:         cfg.Store,
		agents:        cfg.Agents,
		sweepSchedule: cfg.SweepSchedule,
		staleAfter:    cfg.StaleAfter,
		logger:        cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	return s, nil
}

// Broadcaster returns the event broadcaster so the runner can publish
// through it.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// SetAgents wires the runner in after construction. The runner publishes
// through this server's broadcaster, so the two reference each other.
func (s *Server) SetAgents(agents AgentController) {
	s.agents = agents
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)
	mux.HandleFunc("GET /v1/session", s.handleListSessions)
	mux.HandleFunc("POST /v1/session", s.handleCreateSession)
	mux.HandleFunc("GET /v1/session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/session/{id}", s.handleHaltSession)
	mux.HandleFunc("POST /v1/session/{id}/resume", s.handleResumeSession)
	mux.HandleFunc("GET /v1/session/{id}/trajectory", s.handleSessionTrajectories)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start starts the server and the sweep scheduler.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Server error")
		}
	}()

	if err := s.startSweep(); err != nil {
		return err
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down server")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// handleWebSocket upgrades the connection and registers the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
	}

	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	env, err := wire.NewEnvelope(wire.TypeConnectionEstablished, map[string]any{
		"client_id": clientID,
	})
	if err == nil {
		err = client.WriteJSON(env)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to greet client")
		conn.Close()
		s.clients.Remove(clientID)
		return
	}

	go s.readClient(client)
}

// readClient drains inbound frames until the connection drops. Clients do
// not send anything the server acts on; reading keeps control frames and
// close handshakes flowing.
func (s *Server) readClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}
		s.clients.UpdateActivity(client.ID)
	}
}
