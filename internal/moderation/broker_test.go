package moderation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
	"github.com/softrobotics/wizard/internal/moderation"
)

func awaitOutcome(t *testing.T, done <-chan moderation.Outcome) moderation.Outcome {
	t.Helper()
	select {
	case outcome := <-done:
		return outcome
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for moderation outcome")
		return moderation.Outcome{}
	}
}

func TestBrokerAcceptDeliversEditedText(t *testing.T) {
	broker := moderation.New(nil, nil)
	ctx := context.Background()

	req, done := broker.Open(ctx, moderation.Request{Text: "raw model reply", State: model.StateJoy})
	if req.ID == "" {
		t.Fatal("open must assign a request id")
	}
	if !broker.Outstanding() {
		t.Fatal("request should be outstanding after open")
	}

	err := broker.Resolve(ctx, req.ID, moderation.Outcome{
		Kind:  moderation.Accepted,
		Text:  "polished reply",
		State: model.StateHello,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	outcome := awaitOutcome(t, done)
	if outcome.Kind != moderation.Accepted {
		t.Fatalf("expected accepted, got %q", outcome.Kind)
	}
	if outcome.Text != "polished reply" || outcome.State != model.StateHello {
		t.Fatalf("edit lost: %+v", outcome)
	}
	if broker.Outstanding() {
		t.Fatal("request should clear after resolve")
	}
}

func TestBrokerAcceptDefaultsToRequestedReply(t *testing.T) {
	broker := moderation.New(nil, nil)
	ctx := context.Background()

	req, done := broker.Open(ctx, moderation.Request{Text: "as proposed", State: model.StateYes})
	if err := broker.Resolve(ctx, req.ID, moderation.Outcome{Kind: moderation.Accepted}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	outcome := awaitOutcome(t, done)
	if outcome.Text != "as proposed" || outcome.State != model.StateYes {
		t.Fatalf("expected request defaults, got %+v", outcome)
	}
}

func TestBrokerVoiceAcceptCarriesAudio(t *testing.T) {
	broker := moderation.New(nil, nil)
	ctx := context.Background()

	req, done := broker.Open(ctx, moderation.Request{Text: "speak this", State: model.StateJoy})
	clip := []byte{0x52, 0x49, 0x46, 0x46}
	err := broker.Resolve(ctx, req.ID, moderation.Outcome{Kind: moderation.VoiceAccepted, Audio: clip})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	outcome := awaitOutcome(t, done)
	if outcome.Kind != moderation.VoiceAccepted {
		t.Fatalf("expected voice accept, got %q", outcome.Kind)
	}
	if len(outcome.Audio) != len(clip) {
		t.Fatalf("audio clip lost: %+v", outcome)
	}
}

func TestBrokerSingleOutstandingRequest(t *testing.T) {
	broker := moderation.New(nil, nil)
	ctx := context.Background()

	_, firstDone := broker.Open(ctx, moderation.Request{Text: "first"})
	second, secondDone := broker.Open(ctx, moderation.Request{Text: "second"})

	preempted := awaitOutcome(t, firstDone)
	if preempted.Kind != moderation.Rejected {
		t.Fatalf("pre-empted request must resolve rejected, got %q", preempted.Kind)
	}

	pending, ok := broker.Pending()
	if !ok || pending.ID != second.ID {
		t.Fatalf("expected second request pending, got %+v ok=%v", pending, ok)
	}

	if err := broker.Resolve(ctx, second.ID, moderation.Outcome{Kind: moderation.Accepted}); err != nil {
		t.Fatalf("resolve second: %v", err)
	}
	if got := awaitOutcome(t, secondDone); got.Kind != moderation.Accepted {
		t.Fatalf("second request outcome mangled: %+v", got)
	}
}

func TestBrokerResolveErrors(t *testing.T) {
	broker := moderation.New(nil, nil)
	ctx := context.Background()

	if err := broker.Resolve(ctx, "", moderation.Outcome{Kind: moderation.Accepted}); !errors.Is(err, moderation.ErrNoPending) {
		t.Fatalf("expected ErrNoPending, got %v", err)
	}

	req, _ := broker.Open(ctx, moderation.Request{Text: "pending"})
	err := broker.Resolve(ctx, "someone-else", moderation.Outcome{Kind: moderation.Accepted})
	if !errors.Is(err, moderation.ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest, got %v", err)
	}
	if !broker.Outstanding() {
		t.Fatal("mismatched resolve must not clear the pending request")
	}

	if err := broker.Resolve(ctx, req.ID, moderation.Outcome{Kind: moderation.Rejected}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestBrokerCancel(t *testing.T) {
	broker := moderation.New(nil, nil)
	ctx := context.Background()

	_, done := broker.Open(ctx, moderation.Request{Text: "doomed"})
	if !broker.Cancel(ctx, "session ended") {
		t.Fatal("cancel should report an outstanding request")
	}
	if got := awaitOutcome(t, done); got.Kind != moderation.Rejected {
		t.Fatalf("cancelled request must resolve rejected, got %q", got.Kind)
	}
	if broker.Cancel(ctx, "again") {
		t.Fatal("cancel with nothing pending should report false")
	}
}

func TestBrokerPublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	broker := moderation.New(bus, nil)
	ctx := context.Background()

	requestedSub := eventbus.SubscribeTo(bus, eventbus.Moderation.Requested)
	resolvedSub := eventbus.SubscribeTo(bus, eventbus.Moderation.Resolved)
	defer requestedSub.Close()
	defer resolvedSub.Close()

	req, _ := broker.Open(ctx, moderation.Request{Text: "review me", State: model.StateSad})

	select {
	case env := <-requestedSub.C():
		if env.Payload.RequestID != req.ID || env.Payload.Text != "review me" {
			t.Fatalf("requested event mangled: %+v", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for requested event")
	}

	if err := broker.Resolve(ctx, req.ID, moderation.Outcome{Kind: moderation.Accepted, Text: "reviewed"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	select {
	case env := <-resolvedSub.C():
		if env.Payload.Outcome != string(moderation.Accepted) || env.Payload.Text != "reviewed" {
			t.Fatalf("resolved event mangled: %+v", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolved event")
	}
}
