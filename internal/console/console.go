// Package console is the command and observer surface the operator UI talks
// to. It composes reads from the state store and the pipeline into one view
// and forwards operator commands; it owns no dialogue state of its own.
package console

import (
	"context"
	"fmt"
	"log"

	"github.com/softrobotics/wizard/internal/audioio"
	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
	"github.com/softrobotics/wizard/internal/moderation"
	"github.com/softrobotics/wizard/internal/pipeline"
	"github.com/softrobotics/wizard/internal/statestore"
)

// View is the full operator-facing snapshot.
type View struct {
	State          statestore.Snapshot
	CurrentUser    *model.User
	CurrentSession *model.Session
	Moderation     *moderation.Request
}

// Console forwards operator commands to the coordinator and exposes reads.
type Console struct {
	bus    *eventbus.Bus
	store  *statestore.Store
	coord  *pipeline.Coordinator
	broker *moderation.Broker
	logger *log.Logger
}

// New wires the console over the running core.
func New(bus *eventbus.Bus, store *statestore.Store, coord *pipeline.Coordinator, broker *moderation.Broker, logger *log.Logger) *Console {
	if logger == nil {
		logger = log.Default()
	}
	return &Console{bus: bus, store: store, coord: coord, broker: broker, logger: logger}
}

// Snapshot returns a consistent operator view.
func (c *Console) Snapshot() View {
	view := View{State: c.store.Snapshot()}
	if user, ok := c.coord.CurrentUser(); ok {
		view.CurrentUser = user
	}
	if session, ok := c.coord.CurrentSession(); ok {
		view.CurrentSession = session
	}
	if pending, ok := c.broker.Pending(); ok {
		view.Moderation = &pending
	}
	return view
}

// Stats returns the counter map.
func (c *Console) Stats() map[string]int64 {
	return c.store.Counters()
}

// Transcript returns the active session's message log.
func (c *Console) Transcript() ([]*model.Message, error) {
	return c.coord.Transcript()
}

// Session returns any known session by id, for reviewing ended conversations.
func (c *Console) Session(id string) (*model.Session, bool) {
	return c.coord.Session(id)
}

// History exposes the bus event ring for the debug pane.
func (c *Console) History(topic eventbus.Topic, tail int) []eventbus.Envelope {
	return c.bus.History(topic, tail)
}

// PauseEvents freezes live delivery so the operator can inspect the feed.
// History keeps recording while paused.
func (c *Console) PauseEvents() {
	c.bus.Pause()
	c.logger.Printf("[console] event feed paused")
}

// ResumeEvents restores live delivery.
func (c *Console) ResumeEvents() {
	c.bus.Resume()
	c.logger.Printf("[console] event feed resumed")
}

// EventsPaused reports whether the live feed is currently frozen.
func (c *Console) EventsPaused() bool {
	return c.bus.Paused()
}

// SetOperationMode switches between manual and automatic dialogue handling.
func (c *Console) SetOperationMode(ctx context.Context, mode model.OperationMode) error {
	switch mode {
	case model.ModeManual, model.ModeAutomatic:
	default:
		return fmt.Errorf("console: unknown operation mode %q", mode)
	}
	c.coord.SetMode(ctx, mode)
	return nil
}

// SendWizardText sends an operator-typed reply with the chosen state.
func (c *Console) SendWizardText(ctx context.Context, text string, state model.RobotState) error {
	return c.coord.SendWizardText(ctx, text, state)
}

// SendWizardVoice sends a recorded clip. The clip must be a readable WAV
// file; anything else is refused before it reaches the wire.
func (c *Console) SendWizardVoice(ctx context.Context, audio []byte, state model.RobotState) error {
	if _, err := audioio.Probe(audio); err != nil {
		return fmt.Errorf("console: refusing voice clip: %w", err)
	}
	return c.coord.SendWizardVoice(ctx, audio, state)
}

// ResolveModeration applies the operator decision to the pending request.
// An empty requestID targets whatever is pending.
func (c *Console) ResolveModeration(ctx context.Context, requestID string, outcome moderation.Outcome) error {
	if outcome.Kind == moderation.VoiceAccepted {
		if _, err := audioio.Probe(outcome.Audio); err != nil {
			return fmt.Errorf("console: refusing voice clip: %w", err)
		}
	}
	return c.coord.ResolveModeration(ctx, requestID, outcome)
}
