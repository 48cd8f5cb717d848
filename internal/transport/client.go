package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
)

// DefaultConnectTimeout bounds the websocket handshake.
const DefaultConnectTimeout = 10 * time.Second

const writeDeadline = 5 * time.Second

// ErrNotConnected is returned by send operations while the socket is down.
var ErrNotConnected = errors.New("transport: not connected")

// DialFunc opens a websocket connection. Overridable in tests.
type DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

func defaultDialer(timeout time.Duration) DialFunc {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	return func(ctx context.Context, url string) (*websocket.Conn, error) {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		return conn, err
	}
}

// socket is the reconnecting core shared by the message and video clients.
// It runs a connect loop with exponential backoff, publishes connection
// transitions on its channel topic, and hands every decoded frame to the
// owning client's handler.
type socket struct {
	channel string
	topic   eventbus.TopicDef[eventbus.ConnectionEvent]
	source  eventbus.Source
	url     string

	bus     *eventbus.Bus
	logger  *log.Logger
	dial    DialFunc
	backoff BackoffPolicy

	// onConnect runs right after the handshake, before the read loop;
	// a non-nil error tears the connection down and counts as a failure.
	onConnect func(ctx context.Context) error
	// onFrame handles one decoded inbound frame.
	onFrame func(ctx context.Context, frame Frame)
	// onDisconnect runs once per connection loss, before reconnection.
	onDisconnect func()

	lifecycle eventbus.ServiceLifecycle

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Start launches the connect loop.
func (s *socket) Start(ctx context.Context) error {
	s.lifecycle.Start(ctx)
	s.lifecycle.Go(s.run)
	return nil
}

// Shutdown cancels the connect loop, closes the live connection and waits
// for the worker to drain.
func (s *socket) Shutdown(ctx context.Context) error {
	s.lifecycle.Stop()
	s.closeConn()
	return s.lifecycle.Wait(ctx)
}

// Connected reports whether a live connection is established.
func (s *socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *socket) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		s.publishState(ctx, model.ConnConnecting, attempt, nil, false)
		conn, err := s.dial(ctx, s.url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			s.logger.Printf("[transport:%s] connect attempt %d failed: %v", s.channel, attempt, err)
			s.publishState(ctx, model.ConnError, attempt, err, false)
			if s.backoff.Exhausted(attempt + 1) {
				s.logger.Printf("[transport:%s] giving up after %d attempts", s.channel, attempt)
				s.publishState(ctx, model.ConnDisconnected, attempt, err, true)
				return
			}
			if !sleepCtx(ctx, s.backoff.Delay(attempt)) {
				return
			}
			continue
		}

		attempt = 0
		s.setConn(conn)
		s.logger.Printf("[transport:%s] connected to %s", s.channel, s.url)
		s.publishState(ctx, model.ConnConnected, 0, nil, false)

		if s.onConnect != nil {
			if err := s.onConnect(ctx); err != nil {
				s.logger.Printf("[transport:%s] post-connect setup failed: %v", s.channel, err)
				s.closeConn()
				s.notifyDisconnect(ctx, err)
				attempt = 1
				if !sleepCtx(ctx, s.backoff.Delay(attempt)) {
					return
				}
				continue
			}
		}

		err = s.readUntilClosed(ctx, conn)
		s.closeConn()
		if ctx.Err() != nil {
			return
		}
		s.notifyDisconnect(ctx, err)
		attempt = 1
		if !sleepCtx(ctx, s.backoff.Delay(attempt)) {
			return
		}
	}
}

func (s *socket) readUntilClosed(ctx context.Context, conn *websocket.Conn) error {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if isNormalClose(err) {
				return nil
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		frame, err := DecodeFrame(payload)
		if err != nil {
			s.logger.Printf("[transport:%s] dropping malformed frame: %v", s.channel, err)
			continue
		}
		s.onFrame(ctx, frame)
	}
}

func (s *socket) notifyDisconnect(ctx context.Context, err error) {
	if s.onDisconnect != nil {
		s.onDisconnect()
	}
	if err != nil {
		s.logger.Printf("[transport:%s] connection lost: %v", s.channel, err)
	} else {
		s.logger.Printf("[transport:%s] connection closed", s.channel)
	}
	s.publishState(ctx, model.ConnDisconnected, 0, err, false)
}

func (s *socket) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *socket) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// writeFrame encodes and sends one named event over the live connection.
func (s *socket) writeFrame(event string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *socket) publishState(ctx context.Context, state model.ConnectionState, attempt int, err error, terminal bool) {
	event := eventbus.ConnectionEvent{
		Channel:  s.channel,
		State:    string(state),
		Attempt:  attempt,
		Terminal: terminal,
	}
	if err != nil {
		event.Err = err.Error()
	}
	eventbus.Publish(ctx, s.bus, s.topic, s.source, event)
}

// sleepCtx waits for d, returning false if the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	return false
}
