package transport

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
)

// ErrNotRegistered is returned by dialogue sends before the broker has
// confirmed the operator registration.
var ErrNotRegistered = errors.New("transport: operator not registered")

// MessageConfig configures the message-socket client.
type MessageConfig struct {
	// URL is the full socket endpoint, e.g. ws://host:3000/message-socket.
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

// MessageClient maintains the dialogue channel to the broker. Inbound named
// events are republished as typed bus events; outbound wizard replies and
// voice clips are gated on a confirmed operator registration.
type MessageClient struct {
	sock       *socket
	bus        *eventbus.Bus
	logger     *log.Logger
	registered atomic.Bool
}

// NewMessageClient builds the dialogue channel client.
func NewMessageClient(bus *eventbus.Bus, cfg MessageConfig) *MessageClient {
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

	c := &MessageClient{bus: bus, logger: logger}
	c.sock = &socket{
		channel: "message",
		topic:   eventbus.Connection.Message,
		source:  eventbus.SourceMessageTransport,
		url:     cfg.URL,
		bus:     bus,
		logger:  logger,
		dial:    dial,
		backoff: backoff,
		onConnect: func(ctx context.Context) error {
			return c.sock.writeFrame(EventRegisterOperator, registerRole)
		},
		onFrame: c.handleFrame,
		onDisconnect: func() {
			c.registered.Store(false)
		},
	}
	return c
}

// Start launches the connect loop.
func (c *MessageClient) Start(ctx context.Context) error { return c.sock.Start(ctx) }

// Shutdown closes the connection and stops the connect loop.
func (c *MessageClient) Shutdown(ctx context.Context) error { return c.sock.Shutdown(ctx) }

// Connected reports whether the socket is live.
func (c *MessageClient) Connected() bool { return c.sock.Connected() }

// Registered reports whether the broker confirmed the operator slot.
func (c *MessageClient) Registered() bool { return c.registered.Load() }

// SendWizardMessage delivers an operator text reply to the robot.
func (c *MessageClient) SendWizardMessage(text string, state model.RobotState) error {
	if !c.registered.Load() {
		return ErrNotRegistered
	}
	return c.sock.writeFrame(EventMessage, WizardMessagePayload{
		Type:  "wizard_message",
		Text:  text,
		State: string(state),
	})
}

// SendVoiceResponse delivers a recorded operator voice clip to the robot.
func (c *MessageClient) SendVoiceResponse(audio []byte, state model.RobotState) error {
	if !c.registered.Load() {
		return ErrNotRegistered
	}
	return c.sock.writeFrame(EventVoiceResponse, VoiceResponsePayload{
		Audio:      EncodeVoiceAudio(audio),
		Format:     voiceFormat,
		RobotState: string(state),
	})
}

// Ping emits a keepalive frame. Unlike dialogue sends it only requires a
// live connection; absent replies are non-fatal.
func (c *MessageClient) Ping() error {
	return c.sock.writeFrame(EventPing, nil)
}

func (c *MessageClient) handleFrame(ctx context.Context, frame Frame) {
	switch frame.Event {
	case EventRegistrationConfirmed:
		c.registered.Store(true)
		c.logger.Printf("[transport:message] operator registration confirmed")
		eventbus.Publish(ctx, c.bus, eventbus.Connection.Message, eventbus.SourceMessageTransport,
			eventbus.ConnectionEvent{Channel: "message", State: string(model.ConnRegistered)})

	case EventClientMessage:
		var payload ClientMessagePayload
		if !c.decode(frame, &payload) {
			return
		}
		if strings.TrimSpace(payload.Text) == "" {
			c.logger.Printf("[transport:message] dropping empty client_message")
			return
		}
		eventbus.Publish(ctx, c.bus, eventbus.Messages.Client, eventbus.SourceMessageTransport,
			eventbus.ClientMessageEvent{Text: payload.Text, UserID: payload.UserID, Received: time.Now().UTC()})

	case EventOpenAIMessage:
		var payload ModelReplyPayload
		if !c.decode(frame, &payload) {
			return
		}
		eventbus.Publish(ctx, c.bus, eventbus.Messages.Model, eventbus.SourceMessageTransport,
			eventbus.ModelReplyEvent{Text: payload.Text, State: payload.State})

	case EventOpenAIMessageStates:
		var payload ModelReplyWithStatesPayload
		if !c.decode(frame, &payload) {
			return
		}
		event := eventbus.ModelReplyEvent{UserMessage: payload.UserMessage}
		if len(payload.Responses) > 0 {
			event.Alternatives = make(map[string]string, len(payload.Responses))
			for state, resp := range payload.Responses {
				event.Alternatives[state] = resp.Text
			}
		}
		eventbus.Publish(ctx, c.bus, eventbus.Messages.Model, eventbus.SourceMessageTransport, event)

	case EventRobotMessage:
		var payload RobotMessagePayload
		if !c.decode(frame, &payload) {
			return
		}
		eventbus.Publish(ctx, c.bus, eventbus.Messages.Robot, eventbus.SourceMessageTransport,
			eventbus.RobotMessageEvent{Text: payload.Text, State: payload.State})

	case EventWizardMessage:
		var payload RobotMessagePayload
		if !c.decode(frame, &payload) {
			return
		}
		eventbus.Publish(ctx, c.bus, eventbus.Messages.Wizard, eventbus.SourceMessageTransport,
			eventbus.WizardMessageEvent{Text: payload.Text, State: payload.State})

	case EventUserDetected:
		var payload UserDetectedPayload
		if !c.decode(frame, &payload) {
			return
		}
		if payload.UserID == "" {
			c.logger.Printf("[transport:message] dropping user_detected without userId")
			return
		}
		eventbus.Publish(ctx, c.bus, eventbus.Users.Detected, eventbus.SourceMessageTransport,
			eventbus.UserDetectedEvent{
				UserID:              payload.UserID,
				UserName:            payload.UserName,
				IsNewUser:           payload.IsNewUser,
				NeedsIdentification: payload.NeedsIdentification,
				ConsensusRatio:      payload.ConsensusRatio,
			})

	case EventUserLost:
		var payload UserLostPayload
		if !c.decode(frame, &payload) {
			return
		}
		eventbus.Publish(ctx, c.bus, eventbus.Users.Lost, eventbus.SourceMessageTransport,
			eventbus.UserLostEvent{UserID: payload.UserID})

	default:
		c.logger.Printf("[transport:message] ignoring unknown event %q", frame.Event)
	}
}

func (c *MessageClient) decode(frame Frame, out any) bool {
	if err := decodePayload(frame, out); err != nil {
		c.logger.Printf("[transport:message] malformed %s payload: %v", frame.Event, err)
		return false
	}
	return true
}
