package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/softrobotics/wizard/internal/model"
)

func mustMessage(t *testing.T, text string, sender model.Sender) *model.Message {
	t.Helper()
	msg, err := model.NewMessage(text, sender)
	if err != nil {
		t.Fatalf("NewMessage(%q) failed: %v", text, err)
	}
	return msg
}

func TestSessionAppendStampsIdentity(t *testing.T) {
	sess := model.NewSession("u1")
	msg := mustMessage(t, "hi", model.SenderClient)

	if err := sess.Append(msg); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if msg.SessionID != sess.ID {
		t.Fatalf("expected session id stamp %q, got %q", sess.ID, msg.SessionID)
	}
	if msg.UserID != "u1" {
		t.Fatalf("expected user id stamp u1, got %q", msg.UserID)
	}
}

func TestSessionCountersMatchLog(t *testing.T) {
	sess := model.NewSession("u1")

	senders := []model.Sender{
		model.SenderClient, model.SenderRobot, model.SenderWizard,
		model.SenderClient, model.SenderSystem, model.SenderWizard,
	}
	for i, sender := range senders {
		if err := sess.Append(mustMessage(t, fmt.Sprintf("m%d", i), sender)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	if sess.MessageCount() != len(senders) {
		t.Fatalf("expected %d messages, got %d", len(senders), sess.MessageCount())
	}
	if sess.CounterTotal() != sess.MessageCount() {
		t.Fatalf("counter total %d != message count %d", sess.CounterTotal(), sess.MessageCount())
	}
	if sess.Counters[model.SenderClient] != 2 || sess.Counters[model.SenderWizard] != 2 {
		t.Fatalf("unexpected counters: %v", sess.Counters)
	}
}

func TestSessionRejectsAppendAfterEnd(t *testing.T) {
	sess := model.NewSession("u1")
	sess.End()

	err := sess.Append(mustMessage(t, "late", model.SenderClient))
	if !errors.Is(err, model.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if sess.MessageCount() != 0 {
		t.Fatal("rejected append must not grow the log")
	}
}

func TestSessionRejectsAppendWhenPaused(t *testing.T) {
	sess := model.NewSession("u1")
	sess.Status = model.SessionPaused

	if err := sess.Append(mustMessage(t, "x", model.SenderClient)); !errors.Is(err, model.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionEndStampsOrderedTimestamps(t *testing.T) {
	sess := model.NewSession("u1")
	sess.End()

	if sess.Status != model.SessionEnded {
		t.Fatalf("expected ENDED status, got %q", sess.Status)
	}
	if sess.EndedAt == nil {
		t.Fatal("expected ended timestamp")
	}
	if sess.EndedAt.Before(sess.StartedAt) {
		t.Fatalf("ended_at %v before started_at %v", sess.EndedAt, sess.StartedAt)
	}

	// Ending twice keeps the original timestamp.
	first := *sess.EndedAt
	sess.End()
	if !sess.EndedAt.Equal(first) {
		t.Fatal("second End must be a no-op")
	}
}

func TestSessionEncodeDecodePreservesOrder(t *testing.T) {
	sess := model.NewSession("u1")
	for i := 0; i < 5; i++ {
		if err := sess.Append(mustMessage(t, fmt.Sprintf("m%d", i), model.SenderClient)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	data, err := sess.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := model.DecodeSession(data)
	if err != nil {
		t.Fatalf("DecodeSession failed: %v", err)
	}

	if decoded.ID != sess.ID || decoded.UserID != sess.UserID {
		t.Fatalf("identity lost: %+v", decoded)
	}
	if decoded.MessageCount() != 5 {
		t.Fatalf("expected 5 messages, got %d", decoded.MessageCount())
	}
	for i, msg := range decoded.Messages {
		want := fmt.Sprintf("m%d", i)
		if msg.Text != want {
			t.Fatalf("message order lost at %d: expected %q, got %q", i, want, msg.Text)
		}
	}
	if decoded.CounterTotal() != 5 {
		t.Fatalf("counters lost: %v", decoded.Counters)
	}
}

func TestSessionTranscriptIsACopy(t *testing.T) {
	sess := model.NewSession("u1")
	if err := sess.Append(mustMessage(t, "original", model.SenderClient)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	transcript := sess.Transcript()
	transcript[0].Text = "mutated"

	if sess.Messages[0].Text != "original" {
		t.Fatal("transcript shares messages with the session log")
	}
}
