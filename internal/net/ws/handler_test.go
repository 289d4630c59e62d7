package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AMR-Platform/Interface/internal/hub"
	"github.com/AMR-Platform/Interface/internal/sim"
)

type recordingQueue struct {
	mu   sync.Mutex
	cmds []sim.Command
}

func (q *recordingQueue) Enqueue(cmd sim.Command) (bool, string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, cmd)
	return true, ""
}

func (q *recordingQueue) commands() []sim.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]sim.Command(nil), q.cmds...)
}

func websocketURL(t *testing.T, base, id string) string {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	u.Scheme = "ws"
	if id != "" {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func startServer(t *testing.T) (*hub.Hub, *recordingQueue, *httptest.Server) {
	t.Helper()
	h := hub.New(hub.Config{})
	queue := &recordingQueue{}
	handler := NewHandler(h, queue, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)
	return h, queue, srv
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionForwardsCommandsAndFrames(t *testing.T) {
	h, queue, srv := startServer(t)
	conn := dial(t, websocketURL(t, srv.URL, "observer-1"))
	waitFor(t, "observer attach", func() bool { return h.Count() == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cmd_vel","v":0.5,"w":0}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitFor(t, "command", func() bool { return len(queue.commands()) == 1 })
	cmd := queue.commands()[0]
	if cmd.OriginID != "observer-1" || cmd.Type != sim.CommandVelocity || cmd.Velocity.Linear != 0.5 {
		t.Fatalf("unexpected command %+v", cmd)
	}

	h.Broadcast([]byte(`{"type":"telemetry","seq":1}`))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	if string(payload) != `{"type":"telemetry","seq":1}` {
		t.Fatalf("unexpected frame %s", payload)
	}
}

func TestSessionIgnoresUnknownAndIncompleteMessages(t *testing.T) {
	_, queue, srv := startServer(t)
	conn := dial(t, websocketURL(t, srv.URL, "observer-2"))

	for _, raw := range []string{
		`{"type":"dance"}`,
		`{"type":"goal","x":3}`,
		`{"type":"mode","mode":"turbo"}`,
		`{"type":"goal","x":3,"y":4}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	waitFor(t, "goal command", func() bool { return len(queue.commands()) == 1 })
	if cmd := queue.commands()[0]; cmd.Type != sim.CommandGoal {
		t.Fatalf("expected only the goal command to be queued, got %+v", cmd)
	}
}

func TestSessionClosesOnMalformedJSON(t *testing.T) {
	h, _, srv := startServer(t)
	conn := dial(t, websocketURL(t, srv.URL, "observer-3"))
	waitFor(t, "observer attach", func() bool { return h.Count() == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	waitFor(t, "observer detach", func() bool { return h.Count() == 0 })
}

func TestSessionAssignsIDWhenMissing(t *testing.T) {
	_, queue, srv := startServer(t)
	conn := dial(t, websocketURL(t, srv.URL, ""))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mode","mode":"auto"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitFor(t, "command", func() bool { return len(queue.commands()) == 1 })
	if _, err := uuid.Parse(queue.commands()[0].OriginID); err != nil {
		t.Fatalf("expected generated uuid origin, got %q", queue.commands()[0].OriginID)
	}
}

func TestDisconnectDetachesObserver(t *testing.T) {
	h, _, srv := startServer(t)
	conn := dial(t, websocketURL(t, srv.URL, "observer-4"))
	waitFor(t, "observer attach", func() bool { return h.Count() == 1 })
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(t, "observer detach", func() bool { return h.Count() == 0 })
}
