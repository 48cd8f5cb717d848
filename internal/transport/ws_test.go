package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/softrobotics/wizard/internal/eventbus"
)

// wsServer is a scripted broker endpoint for client tests. Each accepted
// connection is handed to the test through Accept.
type wsServer struct {
	t     *testing.T
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{t: t, conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Accept waits for the next client connection.
func (s *wsServer) Accept() *websocket.Conn {
	s.t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(2 * time.Second):
		s.t.Fatal("timed out waiting for client connection")
		return nil
	}
}

// readFrame reads one frame from the server side and checks its event name.
func readFrame(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	frame, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("server decode: %v", err)
	}
	if frame.Event != event {
		t.Fatalf("expected %q frame, got %q", event, frame.Event)
	}
	return frame
}

// sendFrame pushes one named event to the client.
func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := EncodeFrame(event, payload)
	if err != nil {
		t.Fatalf("server encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func sendRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func fastBackoff() BackoffPolicy {
	return BackoffPolicy{Base: 10 * time.Millisecond, Cap: 40 * time.Millisecond, MaxAttempts: 5}
}

func waitEvent[T any](t *testing.T, sub *eventbus.TypedSubscription[T]) T {
	t.Helper()
	select {
	case env := <-sub.C():
		return env.Payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bus event")
		var zero T
		return zero
	}
}

// waitConnState drains connection events until the requested state arrives.
func waitConnState(t *testing.T, sub *eventbus.TypedSubscription[eventbus.ConnectionEvent], state string) eventbus.ConnectionEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-sub.C():
			if env.Payload.State == state {
				return env.Payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for connection state %q", state)
			return eventbus.ConnectionEvent{}
		}
	}
}

func shutdownClient(t *testing.T, shutdown func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func registerData(t *testing.T, frame Frame) string {
	t.Helper()
	var role string
	if err := json.Unmarshal(frame.Data, &role); err != nil {
		t.Fatalf("register payload: %v", err)
	}
	return role
}
