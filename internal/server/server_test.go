package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/overlook/internal/model"
	"github.com/halim/overlook/internal/store"
	"github.com/halim/overlook/internal/wire"
)

type fakeAgents struct {
	mu      sync.Mutex
	started []int64
	stopped []int64
	live    map[int64]bool
}

func (f *fakeAgents) Start(_ context.Context, sess model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, sess.ID)
	return nil
}

func (f *fakeAgents) Stop(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[id] {
		return false
	}
	f.stopped = append(f.stopped, id)
	return true
}

func (f *fakeAgents) Running(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[id]
}

func (f *fakeAgents) setLive(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live == nil {
		f.live = make(map[int64]bool)
	}
	f.live[id] = true
}

type fixture struct {
	srv    *Server
	store  *store.Store
	agents *fakeAgents
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.Open(store.Config{
		DBPath: filepath.Join(t.TempDir(), "overlook.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	agents := &fakeAgents{}
	srv, err := New(Config{
		Host:   "127.0.0.1",
		Port:   1818,
		Store:  s,
		Agents: agents,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{srv: srv, store: s, agents: agents, http: ts}
}

func (f *fixture) createSession(t *testing.T, name string) model.Session {
	t.Helper()

	sess, err := f.store.Sessions().Create(context.Background(), name, nil)
	require.NoError(t, err)
	return sess
}

func (f *fixture) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Consume the greeting so tests only see broadcast traffic
	var env wire.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, wire.TypeConnectionEstablished, env.Type)

	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()

	var env wire.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Port: 1818})
	assert.ErrorContains(t, err, "store is required")

	_, err = New(Config{Store: &store.Store{}})
	assert.ErrorContains(t, err, "invalid port")
}

func TestListSessions_Pagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.createSession(t, fmt.Sprintf("s%d", i))
	}

	resp, err := http.Get(f.http.URL + "/v1/session?offset=1&limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page paginatedSessions
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 1, page.Offset)
	assert.Equal(t, "s3", page.Items[0].Name, "newest first")
}

func TestListSessions_RejectsNegativeOffset(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/v1/session?offset=-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var apiErr apiError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "offset must be non-negative", apiErr.Error)
}

func TestListSessions_RejectsZeroLimit(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/v1/session?limit=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var apiErr apiError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	assert.Equal(t, "limit must be positive", apiErr.Error)
}

func TestListSessions_ClampsOversizedLimit(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "demo")

	resp, err := http.Get(f.http.URL + "/v1/session?limit=500")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page paginatedSessions
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, 100, page.Limit)
	assert.Len(t, page.Items, 1)
}

func TestCreateSession_StartsAgentAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	conn := f.dialWS(t)

	body := bytes.NewBufferString(`{"name":"demo"}`)
	resp, err := http.Post(f.http.URL+"/v1/session", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sess model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Equal(t, "demo", sess.Name)
	assert.Equal(t, model.StatusPending, sess.Status)
	assert.NotZero(t, sess.ID)

	f.agents.mu.Lock()
	started := append([]int64{}, f.agents.started...)
	f.agents.mu.Unlock()
	assert.Equal(t, []int64{sess.ID}, started)

	env := readEnvelope(t, conn)
	assert.Equal(t, wire.TypeSessionDetailsUpdate, env.Type)
	got, err := wire.DecodeSession(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestCreateSession_EmptyBody(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.http.URL+"/v1/session", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")

	resp, err := http.Get(fmt.Sprintf("%s/v1/session/%d", f.http.URL, sess.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "demo", got.Name)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/v1/session/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func deleteSession(t *testing.T, baseURL string, id int64) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/session/%d", baseURL, id), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHaltSession_LiveAgentGoesHalting(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")
	require.NoError(t, f.store.Sessions().UpdateStatus(context.Background(), sess.ID, model.StatusRunning))
	f.agents.setLive(sess.ID)
	conn := f.dialWS(t)

	resp := deleteSession(t, f.http.URL, sess.ID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := f.store.Sessions().Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalting, got.Status)

	env := readEnvelope(t, conn)
	require.Equal(t, wire.TypeSessionUpdate, env.Type)
	update, err := wire.DecodeSessionUpdate(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, update.ID)
	assert.Equal(t, model.StatusHalting, update.Status)
}

func TestHaltSession_NoAgentForcesHalted(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")
	require.NoError(t, f.store.Sessions().UpdateStatus(context.Background(), sess.ID, model.StatusRunning))

	resp := deleteSession(t, f.http.URL, sess.ID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := f.store.Sessions().Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalted, got.Status)
}

func TestHaltSession_TerminalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")
	require.NoError(t, f.store.Sessions().UpdateStatus(context.Background(), sess.ID, model.StatusCompleted))
	f.agents.setLive(sess.ID)

	resp := deleteSession(t, f.http.URL, sess.ID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := f.store.Sessions().Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status, "terminal sessions are untouched")

	f.agents.mu.Lock()
	stopped := len(f.agents.stopped)
	f.agents.mu.Unlock()
	assert.Zero(t, stopped)
}

func TestHaltSession_NotFound(t *testing.T) {
	f := newFixture(t)

	resp := deleteSession(t, f.http.URL, 999)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func resumeSession(t *testing.T, baseURL string, id int64) *http.Response {
	t.Helper()

	resp, err := http.Post(fmt.Sprintf("%s/v1/session/%d/resume", baseURL, id), "application/json", nil)
	require.NoError(t, err)
	return resp
}

func TestResumeSession_RestartsHaltedAgent(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")
	require.NoError(t, f.store.Sessions().UpdateStatus(context.Background(), sess.ID, model.StatusHalted))
	conn := f.dialWS(t)

	resp := resumeSession(t, f.http.URL, sess.ID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, model.StatusPending, got.Status)

	stored, err := f.store.Sessions().Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)

	f.agents.mu.Lock()
	started := append([]int64{}, f.agents.started...)
	f.agents.mu.Unlock()
	assert.Equal(t, []int64{sess.ID}, started)

	env := readEnvelope(t, conn)
	require.Equal(t, wire.TypeSessionUpdate, env.Type)
	update, err := wire.DecodeSessionUpdate(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, update.Status)
}

func TestResumeSession_OnlyHaltedIsResumable(t *testing.T) {
	f := newFixture(t)

	for _, status := range []model.Status{
		model.StatusPending,
		model.StatusRunning,
		model.StatusHalting,
		model.StatusCompleted,
		model.StatusError,
	} {
		sess := f.createSession(t, "demo")
		require.NoError(t, f.store.Sessions().UpdateStatus(context.Background(), sess.ID, status))

		resp := resumeSession(t, f.http.URL, sess.ID)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "status %s", status)
	}

	f.agents.mu.Lock()
	started := len(f.agents.started)
	f.agents.mu.Unlock()
	assert.Zero(t, started)
}

func TestResumeSession_LiveAgentConflicts(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")
	require.NoError(t, f.store.Sessions().UpdateStatus(context.Background(), sess.ID, model.StatusHalted))
	f.agents.setLive(sess.ID)

	resp := resumeSession(t, f.http.URL, sess.ID)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	got, err := f.store.Sessions().Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHalted, got.Status, "status is untouched on conflict")
}

func TestResumeSession_NotFound(t *testing.T) {
	f := newFixture(t)

	resp := resumeSession(t, f.http.URL, 999)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionTrajectories(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")
	require.NoError(t, f.store.Trajectories().Upsert(context.Background(), model.Trajectory{
		ID:         "t1",
		SessionID:  sess.ID,
		RecordType: "tool_execution",
		ToolName:   "read_file",
	}))

	resp, err := http.Get(fmt.Sprintf("%s/v1/session/%d/trajectory", f.http.URL, sess.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []model.Trajectory
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "t1", records[0].ID)
}

func TestSessionTrajectories_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, "demo")

	resp, err := http.Get(fmt.Sprintf("%s/v1/session/%d/trajectory", f.http.URL, sess.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []model.Trajectory
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestBroadcaster_FansOutToAllClients(t *testing.T) {
	f := newFixture(t)
	first := f.dialWS(t)
	second := f.dialWS(t)

	f.srv.Broadcaster().TrajectoryRecorded(model.Trajectory{
		ID:         "t1",
		SessionID:  1,
		RecordType: "output",
	})

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		require.Equal(t, wire.TypeTrajectory, env.Type)
		rec, err := wire.DecodeTrajectory(env.Payload)
		require.NoError(t, err)
		assert.Equal(t, "t1", rec.ID)
	}
}

func TestSweepStaleHalting(t *testing.T) {
	f := newFixture(t)
	f.srv.staleAfter = time.Hour
	sess := f.createSession(t, "stuck")
	require.NoError(t, f.store.Sessions().UpdateStatus(context.Background(), sess.ID, model.StatusHalting))

	// Age the row past the cutoff
	_, err := f.store.DB().Exec(
		"UPDATE sessions SET updated_at = ? WHERE id = ?",
		time.Now().Add(-2*time.Hour).UTC(), sess.ID,
	)
	require.NoError(t, err)

	conn := f.dialWS(t)
	f.srv.sweepStaleHalting()

	got, err := f.store.Sessions().Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)

	env := readEnvelope(t, conn)
	require.Equal(t, wire.TypeSessionUpdate, env.Type)
	update, err := wire.DecodeSessionUpdate(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, update.Status)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
