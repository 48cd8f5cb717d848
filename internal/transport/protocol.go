// Package transport implements the two duplex WebSocket channels to the
// broker: the message socket carrying named dialogue events and the video
// socket carrying base64-encoded camera frames. Both clients own an
// independent reconnection state machine with exponential backoff and
// republish every inbound event on the process bus.
package transport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Channel path prefixes on the broker.
const (
	MessageSocketPath = "/message-socket"
	VideoSocketPath   = "/video-socket"
)

// registerRole is the operator tag the broker expects on register_operator.
// It names the legacy operator-console slot on the broker side.
const registerRole = "python"

// Inbound event names accepted from the broker.
const (
	EventClientMessage         = "client_message"
	EventOpenAIMessage         = "openai_message"
	EventOpenAIMessageStates   = "openai_message_with_states"
	EventRobotMessage          = "robot_message"
	EventWizardMessage         = "wizard_message"
	EventUserDetected          = "user_detected"
	EventUserLost              = "user_lost"
	EventRegistrationConfirmed = "registration_confirmed"
	EventVideoFrame            = "video-frame"
)

// Outbound event names sent to the broker.
const (
	EventRegisterOperator = "register_operator"
	EventMessage          = "message"
	EventVoiceResponse    = "voice_response"
	EventSubscribeVideo   = "subscribe_video"
	EventUnsubscribeVideo = "unsubscribe_video"
	EventPing             = "ping"
)

// voiceFormat tags the encoding of outbound voice clips.
const voiceFormat = "wav"

// Frame is one named event on either socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals a named event with its payload.
func EncodeFrame(event string, payload any) ([]byte, error) {
	frame := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("transport: encode %s payload: %w", event, err)
		}
		frame.Data = data
	}
	out, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s frame: %w", event, err)
	}
	return out, nil
}

// DecodeFrame unmarshals a named event.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("transport: decode frame: %w", err)
	}
	if frame.Event == "" {
		return Frame{}, errors.New("transport: frame has no event name")
	}
	return frame, nil
}

// decodePayload unmarshals a frame body into out. A frame without a body
// decodes into the zero value.
func decodePayload(frame Frame, out any) error {
	if len(frame.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(frame.Data, out); err != nil {
		return fmt.Errorf("transport: decode %s payload: %w", frame.Event, err)
	}
	return nil
}

// ClientMessagePayload is the body of client_message.
type ClientMessagePayload struct {
	Text   string `json:"text"`
	UserID string `json:"userId,omitempty"`
}

// ModelReplyPayload is the body of openai_message.
type ModelReplyPayload struct {
	Text  string `json:"text"`
	State string `json:"state,omitempty"`
}

// StateResponse is one per-state alternative phrasing.
type StateResponse struct {
	Text string `json:"text"`
}

// ModelReplyWithStatesPayload is the body of openai_message_with_states.
type ModelReplyWithStatesPayload struct {
	Responses   map[string]StateResponse `json:"responses"`
	UserMessage string                   `json:"user_message,omitempty"`
}

// RobotMessagePayload is the body of robot_message and wizard_message.
type RobotMessagePayload struct {
	Text  string `json:"text"`
	State string `json:"state,omitempty"`
}

// UserDetectedPayload is the body of user_detected.
type UserDetectedPayload struct {
	UserID              string  `json:"userId"`
	UserName            string  `json:"userName,omitempty"`
	IsNewUser           bool    `json:"isNewUser,omitempty"`
	NeedsIdentification bool    `json:"needsIdentification,omitempty"`
	ConsensusRatio      float64 `json:"consensusRatio,omitempty"`
}

// UserLostPayload is the body of user_lost.
type UserLostPayload struct {
	UserID string `json:"userId"`
}

// WizardMessagePayload is the body of the outbound message event.
type WizardMessagePayload struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	State string `json:"state"`
}

// VoiceResponsePayload is the body of the outbound voice_response event.
type VoiceResponsePayload struct {
	Audio      string `json:"audio"`
	Format     string `json:"format"`
	RobotState string `json:"robot_state"`
}

// EncodeVoiceAudio base64-encodes a recorded clip for the wire.
func EncodeVoiceAudio(audio []byte) string {
	return base64.StdEncoding.EncodeToString(audio)
}

// videoFramePayload is the object form of a video-frame body.
type videoFramePayload struct {
	Frame string `json:"frame"`
}

// DecodeVideoFrame extracts the raw image bytes from a video-frame body.
// The broker sends either a bare base64 string or an object with a frame
// field; the field itself may be raw base64 or a data-URI
// ("data:image/jpeg;base64,<body>").
func DecodeVideoFrame(data json.RawMessage) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("transport: empty video frame")
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		var obj videoFramePayload
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("transport: unrecognised video frame shape: %w", err)
		}
		encoded = obj.Frame
	}

	if idx := strings.Index(encoded, ";base64,"); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+len(";base64,"):]
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("transport: video frame has no payload")
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("transport: decode video frame: %w", err)
	}
	return decoded, nil
}
