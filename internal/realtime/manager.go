// Package realtime maintains the websocket channel that delivers
// notification pushes. A Manager owns at most one open socket, reconnects
// with a fixed delay up to a bounded attempt count, and dispatches parsed
// frames to a caller-supplied handler. After the retry budget is spent it
// stays disconnected, leaving the unread-count poller as the only source
// of truth until Reconnect is called.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/ncastellan/deskwatch/internal/model"
)

// Status is the observable connection state.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

// String returns the status label used in the UI status line.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// frame is the inbound message envelope. Frames whose Type is not
// "notification" belong to other features sharing the socket and are
// ignored here.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const frameTypeNotification = "notification"

// Config holds Manager construction parameters.
type Config struct {
	// URL is the fully derived websocket URL, including the token and
	// session query parameters. See DialURL.
	URL string

	// ReconnectDelay is the fixed delay between attempts. Defaults to 3s.
	ReconnectDelay time.Duration

	// MaxAttempts caps consecutive failed attempts. A successful open
	// resets the counter. Defaults to 5.
	MaxAttempts int

	// OnNotification receives every pushed notification, in socket
	// arrival order, from the manager's read goroutine.
	OnNotification func(model.Notification)

	// OnStatus observes connection state transitions.
	OnStatus func(Status)

	Log *zap.SugaredLogger
}

// DialURL derives the websocket URL from the API base URL: the realtime
// path is resolved against the base host, the scheme mirrors the page
// scheme (http -> ws, https -> wss), and the bearer token plus client
// session id are carried as query parameters.
func DialURL(apiBase, realtimePath, token, session string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parsing api base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		// already a websocket url
	default:
		return "", fmt.Errorf("unsupported scheme %q in api base url", u.Scheme)
	}

	u.Path = realtimePath
	q := url.Values{}
	q.Set("token", token)
	q.Set("session", session)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Manager owns a single websocket connection and its reconnect loop.
type Manager struct {
	cfg Config
	log *zap.SugaredLogger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	running bool
	status  Status
}

// NewManager creates a Manager. Start must be called to open the socket.
func NewManager(cfg Config) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{cfg: cfg, log: log, status: StatusDisconnected}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start launches the connect/read/reconnect loop. It is a no-op if the
// loop is already running.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx)
}

// Reconnect restarts the loop after the retry budget was exhausted
// (or after Close), giving it a fresh attempt budget. Used on token
// refresh or a manual user action.
func (m *Manager) Reconnect(ctx context.Context) {
	m.Close()
	m.Start(ctx)
}

// Close tears down the connection and stops any scheduled reconnect.
// It is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	m.setStatus(StatusDisconnected)
}

// run dials and reads until the context is cancelled or the attempt
// budget is spent. Attempts are counted per consecutive failure; a
// successful open resets the budget.
func (m *Manager) run(ctx context.Context) {
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		m.setStatus(StatusConnecting)

		conn, err := m.dial(ctx)
		if err != nil {
			attempts++
			m.log.Warnw("websocket dial failed",
				"attempt", attempts, "max", m.cfg.MaxAttempts, "err", err)
			if attempts >= m.cfg.MaxAttempts {
				m.log.Warnw("reconnect budget exhausted, polling-only mode")
				m.setStatus(StatusDisconnected)
				m.stopRunning()
				return
			}
			m.setStatus(StatusDisconnected)
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		attempts = 0
		m.setConn(conn)
		m.setStatus(StatusConnected)
		m.log.Infow("websocket connected")

		err = m.readLoop(ctx, conn)
		m.setConn(nil)
		m.setStatus(StatusDisconnected)

		if ctx.Err() != nil {
			return
		}
		m.log.Warnw("websocket closed, scheduling reconnect", "err", err)

		attempts++
		if attempts >= m.cfg.MaxAttempts {
			m.log.Warnw("reconnect budget exhausted, polling-only mode")
			m.stopRunning()
			return
		}
		if !m.sleep(ctx) {
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, m.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop reads frames until the connection drops. Malformed frames are
// logged and dropped; a single bad frame never takes the connection down.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.log.Warnw("dropping malformed frame", "err", err, "raw", string(data))
			continue
		}
		if f.Type != frameTypeNotification {
			continue
		}
		if len(f.Payload) == 0 {
			m.log.Warnw("dropping notification frame without payload")
			continue
		}

		var n model.Notification
		if err := json.Unmarshal(f.Payload, &n); err != nil {
			m.log.Warnw("dropping undecodable notification payload",
				"err", err, "raw", string(f.Payload))
			continue
		}

		if m.cfg.OnNotification != nil {
			m.cfg.OnNotification(n)
		}
	}
}

// sleep waits the fixed reconnect delay, returning false if the context
// was cancelled first.
func (m *Manager) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(m.cfg.ReconnectDelay):
		return true
	}
}

// setConn swaps the tracked connection, closing any previous one so a
// reconnect never leaves two sockets listening.
func (m *Manager) setConn(conn *websocket.Conn) {
	m.mu.Lock()
	prev := m.conn
	m.conn = conn
	m.mu.Unlock()

	if prev != nil && prev != conn {
		_ = prev.Close(websocket.StatusNormalClosure, "superseded")
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	changed := m.status != s
	m.status = s
	m.mu.Unlock()

	if changed && m.cfg.OnStatus != nil {
		m.cfg.OnStatus(s)
	}
}

func (m *Manager) stopRunning() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}
