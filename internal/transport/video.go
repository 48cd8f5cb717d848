package transport

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/softrobotics/wizard/internal/eventbus"
)

// VideoConfig configures the video-socket client.
type VideoConfig struct {
	// URL is the full socket endpoint, e.g. ws://host:3000/video-socket.
	URL string
	// Dial overrides the websocket dialer. Nil uses gorilla with the
	// configured handshake timeout.
	Dial DialFunc
	// ConnectTimeout bounds the handshake when Dial is nil.
	ConnectTimeout time.Duration
	// Backoff overrides the reconnection policy. Zero value uses defaults.
	Backoff BackoffPolicy
	Logger  *log.Logger
}

// VideoClient maintains the camera feed channel. It subscribes to the feed
// after every (re)connect, decodes each frame's base64 payload and publishes
// it on the bus; malformed frames are dropped with a counter.
type VideoClient struct {
	sock          *socket
	bus           *eventbus.Bus
	logger        *log.Logger
	framesDropped atomic.Uint64
}

// NewVideoClient builds the camera feed client.
func NewVideoClient(bus *eventbus.Bus, cfg VideoConfig) *VideoClient {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	backoff := cfg.Backoff
	if backoff.Base <= 0 {
		backoff = DefaultBackoff()
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dial := cfg.Dial
	if dial == nil {
		dial = defaultDialer(timeout)
	}

	c := &VideoClient{bus: bus, logger: logger}
	c.sock = &socket{
		channel: "video",
		topic:   eventbus.Connection.Video,
		source:  eventbus.SourceVideoTransport,
		url:     cfg.URL,
		bus:     bus,
		logger:  logger,
		dial:    dial,
		backoff: backoff,
		onConnect: func(ctx context.Context) error {
			return c.sock.writeFrame(EventSubscribeVideo, nil)
		},
		onFrame: c.handleFrame,
	}
	return c
}

// Start launches the connect loop.
func (c *VideoClient) Start(ctx context.Context) error { return c.sock.Start(ctx) }

// Shutdown unsubscribes from the feed, closes the connection and stops the
// connect loop. The unsubscribe is best effort.
func (c *VideoClient) Shutdown(ctx context.Context) error {
	if err := c.sock.writeFrame(EventUnsubscribeVideo, nil); err != nil && err != ErrNotConnected {
		c.logger.Printf("[transport:video] unsubscribe failed: %v", err)
	}
	return c.sock.Shutdown(ctx)
}

// Connected reports whether the socket is live.
func (c *VideoClient) Connected() bool { return c.sock.Connected() }

// FramesDropped returns the number of malformed frames discarded so far.
func (c *VideoClient) FramesDropped() uint64 { return c.framesDropped.Load() }

func (c *VideoClient) handleFrame(ctx context.Context, frame Frame) {
	if frame.Event != EventVideoFrame {
		c.logger.Printf("[transport:video] ignoring unknown event %q", frame.Event)
		return
	}
	data, err := DecodeVideoFrame(frame.Data)
	if err != nil {
		dropped := c.framesDropped.Add(1)
		c.logger.Printf("[transport:video] dropped malformed frame #%d: %v", dropped, err)
		return
	}
	eventbus.Publish(ctx, c.bus, eventbus.Video.Frame, eventbus.SourceVideoTransport,
		eventbus.VideoFrameEvent{Data: data, Received: time.Now().UTC()})
}
