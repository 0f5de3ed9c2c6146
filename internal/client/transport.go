// Package client talks to the overlook server: a websocket transport for
// the live event stream and a small REST consumer for session operations.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultFrameBuffer  = 256
	initialReconnectGap = time.Second
	maxReconnectGap     = 30 * time.Second
)

// Transport owns a single persistent websocket connection. Received frames
// are delivered in order on the Frames channel; the dispatcher is the sole
// consumer. The connection is re-dialed with capped backoff until Close or
// context cancellation.
type Transport struct {
	url    string
	logger zerolog.Logger
	frames chan []byte

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// TransportConfig holds transport configuration
type TransportConfig struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:1818/v1/ws
	URL    string
	Logger zerolog.Logger

	// FrameBuffer is the capacity of the delivery channel. Zero uses the
	// default.
	FrameBuffer int
}

// NewTransport creates a new transport
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket url is required")
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = defaultFrameBuffer
	}

	return &Transport{
		url:    cfg.URL,
		logger: cfg.Logger,
		frames: make(chan []byte, cfg.FrameBuffer),
		done:   make(chan struct{}),
	}, nil
}

// Frames returns the inbound frame channel. It is closed when Run returns.
func (t *Transport) Frames() <-chan []byte {
	return t.frames
}

// Run dials the server and pumps frames until Close is called or the
// context is canceled. Reconnects automatically on read failure.
func (t *Transport) Run(ctx context.Context) {
	defer close(t.frames)

	gap := initialReconnectGap
	for {
		if t.isClosed() || ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
		if err != nil {
			if t.isClosed() || ctx.Err() != nil {
				return
			}
			t.logger.Warn().Err(err).Str("url", t.url).Dur("retryIn", gap).Msg("Websocket dial failed")
			if !t.sleep(ctx, gap) {
				return
			}
			gap = nextGap(gap)
			continue
		}

		t.setConn(conn)
		t.logger.Info().Str("url", t.url).Msg("Websocket connected")
		gap = initialReconnectGap

		if !t.readLoop(ctx, conn) {
			return
		}
	}
}

// readLoop reads frames until the connection breaks. Returns false when the
// transport should stop entirely.
func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if t.isClosed() || ctx.Err() != nil {
				return false
			}
			t.logger.Warn().Err(err).Msg("Websocket read failed, reconnecting")
			return true
		}

		select {
		case t.frames <- data:
		case <-ctx.Done():
			conn.Close()
			return false
		case <-t.done:
			conn.Close()
			return false
		}
	}
}

// Close tears the connection down and stops reconnecting.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()

		close(t.done)
		if conn != nil {
			conn.Close()
		}
	})
	return nil
}

func (t *Transport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conn = conn
	if t.closed {
		conn.Close()
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-t.done:
		return false
	}
}

func nextGap(gap time.Duration) time.Duration {
	gap *= 2
	if gap > maxReconnectGap {
		gap = maxReconnectGap
	}
	return gap
}
