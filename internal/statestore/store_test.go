package statestore_test

import (
	"testing"
	"time"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
	"github.com/softrobotics/wizard/internal/statestore"
)

func collectChanges(t *testing.T, sub *eventbus.TypedSubscription[eventbus.StateChangedEvent], n int) []eventbus.StateChangedEvent {
	t.Helper()
	out := make([]eventbus.StateChangedEvent, 0, n)
	for len(out) < n {
		select {
		case env := <-sub.C():
			out = append(out, env.Payload)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d/%d change events", len(out), n)
		}
	}
	return out
}

func TestStoreDefaults(t *testing.T) {
	store := statestore.New(nil)

	if store.Mode() != model.ModeManual {
		t.Fatalf("expected MANUAL default, got %q", store.Mode())
	}
	if store.RobotState() != model.StateAttention {
		t.Fatalf("expected attention default, got %q", store.RobotState())
	}
	if store.IsReady() {
		t.Fatal("store must not be ready before connect+register")
	}
}

func TestStorePublishesChangeEvents(t *testing.T) {
	bus := eventbus.New()
	store := statestore.New(bus)
	sub := eventbus.SubscribeTo(bus, eventbus.State.Changed, eventbus.WithSubscriptionBuffer(16))
	defer sub.Close()

	store.SetConnected(true)
	store.SetRegistered(true)
	store.SetMode(model.ModeAutomatic)

	changes := collectChanges(t, sub, 3)
	fields := map[string]any{}
	for _, ch := range changes {
		fields[ch.Field] = ch.Value
	}
	if fields["is_connected"] != true {
		t.Fatalf("missing is_connected change: %v", fields)
	}
	if fields["is_registered"] != true {
		t.Fatalf("missing is_registered change: %v", fields)
	}
	if fields["operation_mode"] != model.ModeAutomatic {
		t.Fatalf("missing operation_mode change: %v", fields)
	}
}

func TestStoreSettersAreIdempotentOnBus(t *testing.T) {
	bus := eventbus.New()
	store := statestore.New(bus)
	sub := eventbus.SubscribeTo(bus, eventbus.State.Changed, eventbus.WithSubscriptionBuffer(16))
	defer sub.Close()

	store.SetConnected(true)
	store.SetConnected(true) // no second event

	collectChanges(t, sub, 1)
	select {
	case env := <-sub.C():
		t.Fatalf("expected no event for unchanged value, got %+v", env.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisconnectClearsRegistration(t *testing.T) {
	store := statestore.New(nil)
	store.SetConnected(true)
	store.SetRegistered(true)

	if !store.IsReady() {
		t.Fatal("expected ready after connect+register")
	}

	store.SetConnected(false)
	if store.Registered() {
		t.Fatal("disconnect must clear registration")
	}
	if store.IsReady() {
		t.Fatal("store must not be ready while disconnected")
	}
}

func TestReadyPredicate(t *testing.T) {
	store := statestore.New(nil)

	store.SetConnected(true)
	store.SetRegistered(true)
	store.SetProcessing(true)
	if store.IsReady() {
		t.Fatal("processing store must not be ready")
	}

	store.SetProcessing(false)
	if !store.IsReady() {
		t.Fatal("expected ready once processing stops")
	}
}

func TestCounters(t *testing.T) {
	store := statestore.New(nil)

	if got := store.Increment(statestore.CounterMessagesSent); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	store.Increment(statestore.CounterMessagesSent)
	store.Increment(statestore.CounterUsersDetected)

	if store.Counter(statestore.CounterMessagesSent) != 2 {
		t.Fatalf("unexpected messages_sent: %d", store.Counter(statestore.CounterMessagesSent))
	}

	counters := store.Counters()
	counters[statestore.CounterMessagesSent] = 99
	if store.Counter(statestore.CounterMessagesSent) != 2 {
		t.Fatal("Counters must return a copy")
	}
}

func TestModeChangeCounter(t *testing.T) {
	store := statestore.New(nil)

	store.SetMode(model.ModeAutomatic)
	store.SetMode(model.ModeAutomatic) // unchanged, not counted
	store.SetMode(model.ModeManual)

	if got := store.Counter(statestore.CounterModeChanges); got != 2 {
		t.Fatalf("expected 2 mode changes, got %d", got)
	}
}

func TestSnapshot(t *testing.T) {
	store := statestore.New(nil)
	store.SetConnected(true)
	store.SetCurrentUserID("u1")
	store.SetCurrentSessionID("s1")
	store.SetRobotState(model.StateJoy)
	store.SetAppStatus("connected")
	store.Increment(statestore.CounterSessionsCreated)

	snap := store.Snapshot()
	if !snap.Connected || snap.CurrentUserID != "u1" || snap.CurrentSessionID != "s1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.RobotState != model.StateJoy || snap.AppStatus != "connected" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Counters[statestore.CounterSessionsCreated] != 1 {
		t.Fatalf("snapshot counters wrong: %v", snap.Counters)
	}
}
