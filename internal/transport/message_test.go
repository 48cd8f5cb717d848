package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
)

func startMessageClient(t *testing.T, bus *eventbus.Bus, url string) *MessageClient {
	t.Helper()
	client := NewMessageClient(bus, MessageConfig{URL: url, Backoff: fastBackoff()})
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { shutdownClient(t, client.Shutdown) })
	return client
}

func TestMessageClientRegistersOnConnect(t *testing.T) {
	server := newWSServer(t)
	bus := eventbus.New()
	defer bus.Shutdown()

	connSub := eventbus.SubscribeTo(bus, eventbus.Connection.Message)
	defer connSub.Close()

	client := startMessageClient(t, bus, server.URL())

	conn := server.Accept()
	frame := readFrame(t, conn, EventRegisterOperator)
	if role := registerData(t, frame); role != "python" {
		t.Fatalf("expected operator role %q, got %q", "python", role)
	}

	waitConnState(t, connSub, string(model.ConnConnected))
	sendFrame(t, conn, EventRegistrationConfirmed, nil)
	waitConnState(t, connSub, string(model.ConnRegistered))

	if !client.Registered() {
		t.Fatal("client should report registered after confirmation")
	}
}

func TestMessageClientRoutesInboundEvents(t *testing.T) {
	server := newWSServer(t)
	bus := eventbus.New()
	defer bus.Shutdown()

	clientSub := eventbus.SubscribeTo(bus, eventbus.Messages.Client)
	modelSub := eventbus.SubscribeTo(bus, eventbus.Messages.Model)
	detectedSub := eventbus.SubscribeTo(bus, eventbus.Users.Detected)
	lostSub := eventbus.SubscribeTo(bus, eventbus.Users.Lost)
	defer clientSub.Close()
	defer modelSub.Close()
	defer detectedSub.Close()
	defer lostSub.Close()

	startMessageClient(t, bus, server.URL())

	conn := server.Accept()
	readFrame(t, conn, EventRegisterOperator)
	sendFrame(t, conn, EventRegistrationConfirmed, nil)

	sendFrame(t, conn, EventClientMessage, ClientMessagePayload{Text: "hi robot", UserID: "user-1"})
	got := waitEvent(t, clientSub)
	if got.Text != "hi robot" || got.UserID != "user-1" {
		t.Fatalf("client message mangled: %+v", got)
	}
	if got.Received.IsZero() {
		t.Fatal("client message must carry a receive timestamp")
	}

	sendFrame(t, conn, EventOpenAIMessage, ModelReplyPayload{Text: "hello human", State: "joy"})
	reply := waitEvent(t, modelSub)
	if reply.Text != "hello human" || reply.State != "joy" {
		t.Fatalf("model reply mangled: %+v", reply)
	}

	sendFrame(t, conn, EventOpenAIMessageStates, ModelReplyWithStatesPayload{
		Responses: map[string]StateResponse{
			"joy": {Text: "great to see you"},
			"sad": {Text: "oh, hello"},
		},
		UserMessage: "hi robot",
	})
	withStates := waitEvent(t, modelSub)
	if len(withStates.Alternatives) != 2 {
		t.Fatalf("expected 2 alternatives, got %+v", withStates.Alternatives)
	}
	if withStates.Alternatives["joy"] != "great to see you" {
		t.Fatalf("alternative mangled: %+v", withStates.Alternatives)
	}
	if withStates.UserMessage != "hi robot" {
		t.Fatalf("user message mangled: %q", withStates.UserMessage)
	}

	sendFrame(t, conn, EventUserDetected, UserDetectedPayload{
		UserID:         "user-1",
		UserName:       "Ada",
		ConsensusRatio: 0.9,
	})
	detected := waitEvent(t, detectedSub)
	if detected.UserID != "user-1" || detected.UserName != "Ada" {
		t.Fatalf("user detection mangled: %+v", detected)
	}

	sendFrame(t, conn, EventUserLost, UserLostPayload{UserID: "user-1"})
	lost := waitEvent(t, lostSub)
	if lost.UserID != "user-1" {
		t.Fatalf("user loss mangled: %+v", lost)
	}
}

func TestMessageClientDropsMalformedAndUnknownFrames(t *testing.T) {
	server := newWSServer(t)
	bus := eventbus.New()
	defer bus.Shutdown()

	clientSub := eventbus.SubscribeTo(bus, eventbus.Messages.Client)
	defer clientSub.Close()

	startMessageClient(t, bus, server.URL())

	conn := server.Accept()
	readFrame(t, conn, EventRegisterOperator)
	sendFrame(t, conn, EventRegistrationConfirmed, nil)

	sendRaw(t, conn, `{"event":"client_message","data":{"text":42}}`)
	sendRaw(t, conn, `{"event":"client_message","data":{"text":"   "}}`)
	sendRaw(t, conn, `{"event":"mystery_event","data":{}}`)
	sendFrame(t, conn, EventClientMessage, ClientMessagePayload{Text: "still alive"})

	got := waitEvent(t, clientSub)
	if got.Text != "still alive" {
		t.Fatalf("expected only the valid message to pass, got %+v", got)
	}
}

func TestMessageClientGatesSendsOnRegistration(t *testing.T) {
	server := newWSServer(t)
	bus := eventbus.New()
	defer bus.Shutdown()

	connSub := eventbus.SubscribeTo(bus, eventbus.Connection.Message)
	defer connSub.Close()

	client := startMessageClient(t, bus, server.URL())

	conn := server.Accept()
	readFrame(t, conn, EventRegisterOperator)
	waitConnState(t, connSub, string(model.ConnConnected))

	if err := client.SendWizardMessage("too early", model.StateJoy); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered before confirmation, got %v", err)
	}

	sendFrame(t, conn, EventRegistrationConfirmed, nil)
	waitConnState(t, connSub, string(model.ConnRegistered))

	if err := client.SendWizardMessage("hello from the booth", model.StateJoy); err != nil {
		t.Fatalf("send after registration: %v", err)
	}
	frame := readFrame(t, conn, EventMessage)
	var msg WizardMessagePayload
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("decode outbound message: %v", err)
	}
	if msg.Type != "wizard_message" || msg.Text != "hello from the booth" || msg.State != "joy" {
		t.Fatalf("outbound message mangled: %+v", msg)
	}

	audio := []byte{0x52, 0x49, 0x46, 0x46, 0x01, 0x02}
	if err := client.SendVoiceResponse(audio, model.StateAttention); err != nil {
		t.Fatalf("send voice: %v", err)
	}
	frame = readFrame(t, conn, EventVoiceResponse)
	var voice VoiceResponsePayload
	if err := json.Unmarshal(frame.Data, &voice); err != nil {
		t.Fatalf("decode outbound voice: %v", err)
	}
	if voice.Format != "wav" {
		t.Fatalf("expected wav format, got %q", voice.Format)
	}
	if voice.RobotState != "attention" {
		t.Fatalf("expected attention state, got %q", voice.RobotState)
	}
	decoded, err := base64.StdEncoding.DecodeString(voice.Audio)
	if err != nil || len(decoded) != len(audio) {
		t.Fatalf("voice audio not base64 round-trippable: %v", err)
	}
}

func TestMessageClientReconnectsAfterDrop(t *testing.T) {
	server := newWSServer(t)
	bus := eventbus.New()
	defer bus.Shutdown()

	connSub := eventbus.SubscribeTo(bus, eventbus.Connection.Message, eventbus.WithSubscriptionBuffer(32))
	defer connSub.Close()

	client := startMessageClient(t, bus, server.URL())

	first := server.Accept()
	readFrame(t, first, EventRegisterOperator)
	sendFrame(t, first, EventRegistrationConfirmed, nil)
	waitConnState(t, connSub, string(model.ConnRegistered))

	first.Close()
	waitConnState(t, connSub, string(model.ConnDisconnected))

	second := server.Accept()
	readFrame(t, second, EventRegisterOperator)
	waitConnState(t, connSub, string(model.ConnConnected))
	if client.Registered() {
		t.Fatal("registration must reset across reconnects")
	}
	sendFrame(t, second, EventRegistrationConfirmed, nil)
	waitConnState(t, connSub, string(model.ConnRegistered))
}

func TestMessageClientGivesUpAfterMaxAttempts(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	connSub := eventbus.SubscribeTo(bus, eventbus.Connection.Message, eventbus.WithSubscriptionBuffer(32))
	defer connSub.Close()

	dialErr := errors.New("broker offline")
	client := NewMessageClient(bus, MessageConfig{
		URL:     "ws://127.0.0.1:1/message-socket",
		Backoff: BackoffPolicy{Base: time.Millisecond, Cap: 4 * time.Millisecond, MaxAttempts: 3},
		Dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			return nil, dialErr
		},
	})
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer shutdownClient(t, client.Shutdown)

	terminal := waitConnState(t, connSub, string(model.ConnDisconnected))
	if !terminal.Terminal {
		t.Fatalf("expected terminal status, got %+v", terminal)
	}
	if terminal.Attempt != 3 {
		t.Fatalf("expected 3 attempts before giving up, got %d", terminal.Attempt)
	}
}
