// Package runner executes agent processes for sessions and records their
// output as trajectory records.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/halim/overlook/internal/model"
	"github.com/halim/overlook/internal/store"
)

// Publisher receives every persisted change for fan-out to live clients.
type Publisher interface {
	SessionStatusChanged(id int64, status model.Status)
	TrajectoryRecorded(rec model.Trajectory)
}

// Runner manages one agent process per active session. Stop signals travel
// through per-session channels; the goroutine owns the final status
// transition to halted.
type Runner struct {
	command []string
	store   *store.Store
	pub     Publisher
	logger  zerolog.Logger

	mu     sync.Mutex
	active map[int64]*agentProc
	wg     sync.WaitGroup
}

type agentProc struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (p *agentProc) signalStop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Config holds runner configuration
type Config struct {
	// AgentCommand is the argv launched per session; the session id is
	// appended as the final argument.
	AgentCommand []string
	Store        *store.Store
	Publisher    Publisher
	Logger       zerolog.Logger
}

// New creates a new runner
func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	return &Runner{
		command: cfg.AgentCommand,
		store:   cfg.Store,
		pub:     cfg.Publisher,
		logger:  cfg.Logger,
	}, nil
}

// Start launches the agent goroutine for a session.
func (r *Runner) Start(ctx context.Context, sess model.Session) error {
	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[int64]*agentProc)
	}
	if _, exists := r.active[sess.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("agent for session %d is already running", sess.ID)
	}
	proc := &agentProc{stop: make(chan struct{})}
	r.active[sess.ID] = proc
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx, sess, proc)
	return nil
}

// Running reports whether an agent goroutine is active for the session.
func (r *Runner) Running(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.active[id]
	return ok
}

// Stop signals the session's agent to stop. Returns false when no agent is
// running. The goroutine finalizes the session as halted.
func (r *Runner) Stop(id int64) bool {
	r.mu.Lock()
	proc, ok := r.active[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	proc.signalStop()
	return true
}

// Shutdown stops all agents and waits for their goroutines to finish.
func (r *Runner) Shutdown(timeout time.Duration) {
	r.mu.Lock()
	for _, proc := range r.active {
		proc.signalStop()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		r.logger.Warn().Msg("Timed out waiting for agents to stop")
	}
}

func (r *Runner) run(ctx context.Context, sess model.Session, proc *agentProc) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.active, sess.ID)
		r.mu.Unlock()
	}()

	runID := uuid.New().String()
	logger := r.logger.With().Int64("sessionId", sess.ID).Str("runId", runID).Logger()

	r.setStatus(ctx, sess.ID, model.StatusRunning)

	if len(r.command) == 0 {
		logger.Error().Msg("No agent command configured")
		r.record(ctx, sess.ID, model.Trajectory{
			RecordType: "error",
			IsError:    true,
			StepData:   map[string]any{"display_title": "No agent command configured"},
		})
		r.setStatus(ctx, sess.ID, model.StatusError)
		return
	}

	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append(append([]string{}, r.command[1:]...), strconv.FormatInt(sess.ID, 10))
	cmd := exec.CommandContext(procCtx, r.command[0], args...)
	cmd.Env = append(os.Environ(), "OVERLOOK_RUN_ID="+runID)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open agent stdout")
		r.setStatus(ctx, sess.ID, model.StatusError)
		return
	}

	if err := cmd.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start agent command")
		r.record(ctx, sess.ID, model.Trajectory{
			RecordType: "error",
			IsError:    true,
			StepData:   map[string]any{"display_title": "Agent failed to start", "error": err.Error()},
		})
		r.setStatus(ctx, sess.ID, model.StatusError)
		return
	}

	logger.Info().Str("command", r.command[0]).Int("pid", cmd.Process.Pid).Msg("Agent started")

	// Watch for a stop signal while the scanner drains stdout
	halted := make(chan struct{})
	go func() {
		select {
		case <-proc.stop:
			close(halted)
			cancel()
		case <-procCtx.Done():
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.record(ctx, sess.ID, parseAgentLine(scanner.Bytes()))
	}

	err = cmd.Wait()

	select {
	case <-halted:
		logger.Info().Msg("Agent halted by request")
		r.setStatus(ctx, sess.ID, model.StatusHalted)
		return
	default:
	}

	if err != nil {
		logger.Warn().Err(err).Msg("Agent exited with error")
		r.setStatus(ctx, sess.ID, model.StatusError)
		return
	}

	logger.Info().Msg("Agent completed")
	r.setStatus(ctx, sess.ID, model.StatusCompleted)
}

// parseAgentLine turns one stdout line into a trajectory record. JSON
// objects map onto the record fields, anything else becomes a display step.
func parseAgentLine(line []byte) model.Trajectory {
	var rec model.Trajectory
	if err := json.Unmarshal(line, &rec); err == nil && rec.RecordType != "" {
		return rec
	}

	return model.Trajectory{
		RecordType: "output",
		StepData:   map[string]any{"display_title": string(line)},
	}
}

func (r *Runner) setStatus(ctx context.Context, id int64, status model.Status) {
	if err := r.store.Sessions().UpdateStatus(ctx, id, status); err != nil {
		r.logger.Error().Err(err).Int64("sessionId", id).Msg("Failed to persist status change")
		return
	}
	r.pub.SessionStatusChanged(id, status)
}

func (r *Runner) record(ctx context.Context, sessionID int64, rec model.Trajectory) {
	if rec.ID == "" {
		rec.ID, _ = gonanoid.New()
	}
	rec.SessionID = sessionID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if err := r.store.Trajectories().Upsert(ctx, rec); err != nil {
		r.logger.Error().Err(err).Str("trajectoryId", rec.ID).Msg("Failed to persist trajectory")
		return
	}
	r.pub.TrajectoryRecorded(rec)
}
