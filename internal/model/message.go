package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyText rejects messages whose text is empty after trimming.
var ErrEmptyText = errors.New("model: message text is empty")

// Message is one utterance in a session.
type Message struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	Sender           Sender         `json:"sender"`
	Type             Sender         `json:"message_type"`
	RobotState       RobotState     `json:"robot_state,omitempty"`
	UserID           string         `json:"user_id,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
	IsProcessed      bool           `json:"is_processed"`
	IsSent           bool           `json:"is_sent"`
	RequiresResponse bool           `json:"requires_response"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// NewMessage builds a message with a fresh id and creation timestamp.
// Text is trimmed; empty text is rejected.
func NewMessage(text string, sender Sender) (*Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyText
	}
	return &Message{
		ID:        uuid.NewString(),
		Text:      trimmed,
		Sender:    sender,
		Type:      sender,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// MarkProcessed stamps the processing timestamp once.
func (m *Message) MarkProcessed() {
	if m.IsProcessed {
		return
	}
	now := time.Now().UTC()
	m.ProcessedAt = &now
	m.IsProcessed = true
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.ProcessedAt != nil {
		ts := *m.ProcessedAt
		out.ProcessedAt = &ts
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Encode serialises the message to JSON.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("model: encode message: %w", err)
	}
	return data, nil
}

// DecodeMessage deserialises a message produced by Encode. The non-empty
// text invariant is enforced on the way back in.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("model: decode message: %w", err)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, ErrEmptyText
	}
	return &msg, nil
}
