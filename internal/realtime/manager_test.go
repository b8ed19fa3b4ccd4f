package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/ncastellan/deskwatch/internal/model"
	"github.com/ncastellan/deskwatch/internal/realtime"
)

func TestDialURLDerivation(t *testing.T) {
	tests := []struct {
		name    string
		apiBase string
		want    string
		wantErr bool
	}{
		{
			name:    "https becomes wss",
			apiBase: "https://desk.example.com/api",
			want:    "wss://desk.example.com/ws",
		},
		{
			name:    "http becomes ws",
			apiBase: "http://localhost:8080",
			want:    "ws://localhost:8080/ws",
		},
		{
			name:    "ws passes through",
			apiBase: "ws://desk.example.com",
			want:    "ws://desk.example.com/ws",
		},
		{
			name:    "unsupported scheme rejected",
			apiBase: "ftp://desk.example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := realtime.DialURL(tt.apiBase, "/ws", "tok", "sess-1")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(got, tt.want+"?") {
				t.Errorf("expected prefix %q, got %q", tt.want, got)
			}

			u, err := url.Parse(got)
			if err != nil {
				t.Fatalf("parsing derived url: %v", err)
			}
			if u.Query().Get("token") != "tok" || u.Query().Get("session") != "sess-1" {
				t.Errorf("missing query params in %q", got)
			}
		})
	}
}

// wsServer runs handler for every websocket upgrade on a test server and
// returns the derived ws:// URL.
func wsServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		handler(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collectNotifications(buf *[]model.Notification, mu *sync.Mutex, notify chan<- struct{}) func(model.Notification) {
	return func(n model.Notification) {
		mu.Lock()
		*buf = append(*buf, n)
		mu.Unlock()
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

func TestManagerDispatchesNotificationFrames(t *testing.T) {
	frames := []string{
		`{"type": "notification", "payload": {"id": "n-1", "title": "Assigned"}}`,
		`{"type": "presence", "payload": {"user": "someone"}}`,
		`this is not json`,
		`{"type": "notification"}`,
		`{"type": "notification", "payload": {"id": "n-2", "title": "Escalated"}}`,
	}

	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	})

	var (
		mu       sync.Mutex
		received []model.Notification
	)
	arrived := make(chan struct{}, 8)

	m := realtime.NewManager(realtime.Config{
		URL:            url,
		ReconnectDelay: 10 * time.Millisecond,
		OnNotification: collectNotifications(&received, &mu, arrived),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Close()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-arrived:
		case <-deadline:
			t.Fatalf("timed out, received %d notifications", n)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if received[0].ID != "n-1" || received[1].ID != "n-2" {
		t.Errorf("unexpected notifications: %+v", received)
	}
}

func TestManagerReconnectsAndResetsBudget(t *testing.T) {
	// Each accepted connection delivers one frame and drops. With
	// MaxAttempts of 2, surviving three connection cycles proves the
	// attempt counter resets on every successful open.
	var connSeq struct {
		mu sync.Mutex
		n  int
	}

	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		connSeq.mu.Lock()
		connSeq.n++
		id := connSeq.n
		connSeq.mu.Unlock()

		frame := `{"type": "notification", "payload": {"id": "conn-` +
			string(rune('0'+id)) + `", "title": "hello"}}`
		_ = conn.Write(ctx, websocket.MessageText, []byte(frame))
		_ = conn.Close(websocket.StatusNormalClosure, "cycling")
	})

	var (
		mu       sync.Mutex
		received []model.Notification
	)
	arrived := make(chan struct{}, 8)

	m := realtime.NewManager(realtime.Config{
		URL:            url,
		ReconnectDelay: 10 * time.Millisecond,
		MaxAttempts:    2,
		OnNotification: collectNotifications(&received, &mu, arrived),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Close()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 3 {
			return
		}
		select {
		case <-arrived:
		case <-deadline:
			t.Fatalf("timed out after %d connection cycles", n)
		}
	}
}

func TestManagerStopsAfterBudgetExhausted(t *testing.T) {
	// Nothing upgrades at this server, so every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websocket here", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	var (
		mu         sync.Mutex
		connecting int
	)
	settled := make(chan struct{}, 16)

	m := realtime.NewManager(realtime.Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectDelay: 5 * time.Millisecond,
		MaxAttempts:    3,
		OnStatus: func(s realtime.Status) {
			mu.Lock()
			if s == realtime.StatusConnecting {
				connecting++
			}
			mu.Unlock()
			select {
			case settled <- struct{}{}:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Close()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := connecting
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-settled:
		case <-deadline:
			t.Fatalf("timed out after %d attempts", n)
		}
	}

	// Give the loop a moment to prove it stopped trying.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	final := connecting
	mu.Unlock()
	if final != 3 {
		t.Errorf("expected exactly 3 attempts, saw %d", final)
	}
	if m.Status() != realtime.StatusDisconnected {
		t.Errorf("expected disconnected after exhausted budget, got %v", m.Status())
	}
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	url := wsServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, _, _ = conn.Read(ctx)
	})

	m := realtime.NewManager(realtime.Config{URL: url})
	m.Start(context.Background())

	m.Close()
	m.Close()

	if m.Status() != realtime.StatusDisconnected {
		t.Errorf("expected disconnected after close, got %v", m.Status())
	}
}
