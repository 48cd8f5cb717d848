package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/softrobotics/wizard/internal/model"
)

func TestNewMessageTrimsText(t *testing.T) {
	msg, err := model.NewMessage("  hello  ", model.SenderClient)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if msg.Text != "hello" {
		t.Fatalf("expected trimmed text, got %q", msg.Text)
	}
	if msg.ID == "" {
		t.Fatal("expected generated message id")
	}
	if msg.Type != model.SenderClient {
		t.Fatalf("expected message type to mirror sender, got %q", msg.Type)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("expected creation timestamp")
	}
}

func TestNewMessageRejectsEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := model.NewMessage(text, model.SenderWizard); !errors.Is(err, model.ErrEmptyText) {
			t.Fatalf("expected ErrEmptyText for %q, got %v", text, err)
		}
	}
}

func TestMessageMarkProcessedIsIdempotent(t *testing.T) {
	msg, err := model.NewMessage("x", model.SenderClient)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	msg.MarkProcessed()
	if !msg.IsProcessed || msg.ProcessedAt == nil {
		t.Fatal("expected message marked processed")
	}
	first := *msg.ProcessedAt

	msg.MarkProcessed()
	if !msg.ProcessedAt.Equal(first) {
		t.Fatal("expected second MarkProcessed to be a no-op")
	}
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg, err := model.NewMessage("round trip", model.SenderRobot)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	msg.RobotState = model.StateJoy
	msg.UserID = "u1"
	msg.SessionID = "s1"
	msg.RequiresResponse = true
	msg.Metadata = map[string]any{"origin": "test"}
	msg.MarkProcessed()

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := model.DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}

	if decoded.ID != msg.ID || decoded.Text != msg.Text || decoded.Sender != msg.Sender {
		t.Fatalf("identity fields lost: %+v", decoded)
	}
	if decoded.RobotState != model.StateJoy {
		t.Fatalf("robot state lost: %q", decoded.RobotState)
	}
	if decoded.UserID != "u1" || decoded.SessionID != "s1" {
		t.Fatalf("session stamps lost: %+v", decoded)
	}
	if !decoded.RequiresResponse || !decoded.IsProcessed {
		t.Fatalf("flags lost: %+v", decoded)
	}
	if decoded.ProcessedAt == nil || !decoded.ProcessedAt.Equal(*msg.ProcessedAt) {
		t.Fatal("processed timestamp lost")
	}
	if !decoded.CreatedAt.Equal(msg.CreatedAt) {
		t.Fatal("created timestamp lost")
	}
	if decoded.Metadata["origin"] != "test" {
		t.Fatalf("metadata lost: %+v", decoded.Metadata)
	}
}

func TestDecodeMessageRejectsEmptyText(t *testing.T) {
	if _, err := model.DecodeMessage([]byte(`{"id":"x","text":"   "}`)); !errors.Is(err, model.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestMessageClone(t *testing.T) {
	msg, err := model.NewMessage("clone me", model.SenderWizard)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	ts := time.Now().UTC()
	msg.ProcessedAt = &ts
	msg.Metadata = map[string]any{"k": "v"}

	clone := msg.Clone()
	clone.Metadata["k"] = "other"
	*clone.ProcessedAt = ts.Add(time.Hour)

	if msg.Metadata["k"] != "v" {
		t.Fatal("clone shares metadata map with original")
	}
	if !msg.ProcessedAt.Equal(ts) {
		t.Fatal("clone shares processed timestamp with original")
	}
}
