package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
	SessionError  SessionStatus = "error"
)

// ErrSessionClosed rejects appends to a session that is no longer active.
var ErrSessionClosed = errors.New("model: session is not active")

// Session is one continuous conversation tied to at most one user. Messages
// are appended in pipeline order; sessions never resume once ended.
type Session struct {
	ID           string         `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	Status       SessionStatus  `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	LastActivity time.Time      `json:"last_activity"`
	Messages     []*Message     `json:"messages"`
	Counters     map[Sender]int `json:"counters"`
}

// NewSession starts an ACTIVE session pinned to the given user id.
func NewSession(userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       SessionActive,
		CreatedAt:    now,
		StartedAt:    now,
		LastActivity: now,
		Counters:     make(map[Sender]int),
	}
}

// Append adds a message to the session log, stamping the message with the
// session's identity. Appends to ENDED or PAUSED sessions are rejected.
func (s *Session) Append(msg *Message) error {
	if msg == nil {
		return errors.New("model: nil message")
	}
	if s.Status != SessionActive {
		return fmt.Errorf("%w (status %s)", ErrSessionClosed, s.Status)
	}

	msg.SessionID = s.ID
	if s.UserID != "" {
		msg.UserID = s.UserID
	}

	s.Messages = append(s.Messages, msg)
	if s.Counters == nil {
		s.Counters = make(map[Sender]int)
	}
	s.Counters[msg.Sender]++
	s.LastActivity = time.Now().UTC()
	return nil
}

// End closes the session. Ending an already-ended session is a no-op.
func (s *Session) End() {
	if s.Status == SessionEnded {
		return
	}
	now := time.Now().UTC()
	if now.Before(s.StartedAt) {
		now = s.StartedAt
	}
	s.Status = SessionEnded
	s.EndedAt = &now
	s.LastActivity = now
}

// MessageCount returns the length of the message log.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// CounterTotal sums the per-sender counters. It always equals MessageCount.
func (s *Session) CounterTotal() int {
	total := 0
	for _, n := range s.Counters {
		total += n
	}
	return total
}

// Transcript returns a deep copy of the message log in append order.
func (s *Session) Transcript() []*Message {
	out := make([]*Message, 0, len(s.Messages))
	for _, msg := range s.Messages {
		out = append(out, msg.Clone())
	}
	return out
}

// Encode serialises the session, preserving message order.
func (s *Session) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("model: encode session: %w", err)
	}
	return data, nil
}

// DecodeSession deserialises a session produced by Encode.
func DecodeSession(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("model: decode session: %w", err)
	}
	if sess.Counters == nil {
		sess.Counters = make(map[Sender]int)
	}
	return &sess, nil
}
