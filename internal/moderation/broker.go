// Package moderation implements the operator review cycle for model replies.
// In manual mode each candidate reply is parked here until the operator
// accepts it (as text or voice), edits it, or rejects it. At most one
// request is outstanding at a time; opening a new one pre-empts the
// previous request as rejected.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
)

// ErrNoPending is returned when a decision arrives with nothing to decide.
var ErrNoPending = errors.New("moderation: no pending request")

// ErrUnknownRequest is returned when a decision names a request that is no
// longer outstanding.
var ErrUnknownRequest = errors.New("moderation: unknown request")

// OutcomeKind classifies an operator decision.
type OutcomeKind string

const (
	// Accepted sends the (possibly edited) text reply.
	Accepted OutcomeKind = "accepted"
	// VoiceAccepted sends a recorded voice clip instead of text.
	VoiceAccepted OutcomeKind = "voice_accepted"
	// Rejected drops the candidate reply entirely.
	Rejected OutcomeKind = "rejected"
)

// Request is one candidate reply awaiting operator review.
type Request struct {
	ID           string
	Text         string
	State        model.RobotState
	Alternatives map[string]string
	UserMessage  string
	CreatedAt    time.Time
}

// Outcome is the operator's decision for a request.
type Outcome struct {
	Kind  OutcomeKind
	Text  string
	State model.RobotState
	// Audio carries the recorded clip for VoiceAccepted decisions.
	Audio []byte
}

type pending struct {
	request Request
	done    chan Outcome
}

// Broker holds the single outstanding moderation request and routes the
// operator decision back to the pipeline worker waiting on it.
type Broker struct {
	bus    *eventbus.Bus
	logger *log.Logger

	mu      sync.Mutex
	current *pending
}

// New builds a broker publishing lifecycle events on bus.
func New(bus *eventbus.Bus, logger *log.Logger) *Broker {
	if logger == nil {
		logger = log.Default()
	}
	return &Broker{bus: bus, logger: logger}
}

// Open parks a candidate reply for review and returns the channel the
// decision will arrive on. An already-outstanding request is resolved as
// Rejected first.
func (b *Broker) Open(ctx context.Context, req Request) (Request, <-chan Outcome) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	b.mu.Lock()
	preempted := b.current
	p := &pending{request: req, done: make(chan Outcome, 1)}
	b.current = p
	b.mu.Unlock()

	if preempted != nil {
		b.logger.Printf("[moderation] request %s pre-empted by %s", preempted.request.ID, req.ID)
		b.finish(ctx, preempted, Outcome{Kind: Rejected})
	}

	b.logger.Printf("[moderation] request %s awaiting review", req.ID)
	eventbus.Publish(ctx, b.bus, eventbus.Moderation.Requested, eventbus.SourceModeration,
		eventbus.ModerationRequestedEvent{
			RequestID: req.ID,
			Text:      req.Text,
			State:     string(req.State),
		})

	return req, p.done
}

// Resolve applies the operator decision to the outstanding request.
// requestID may be empty to mean "whatever is pending".
func (b *Broker) Resolve(ctx context.Context, requestID string, outcome Outcome) error {
	b.mu.Lock()
	p := b.current
	if p == nil {
		b.mu.Unlock()
		return ErrNoPending
	}
	if requestID != "" && requestID != p.request.ID {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	b.current = nil
	b.mu.Unlock()

	if outcome.Kind == Accepted && outcome.Text == "" {
		outcome.Text = p.request.Text
	}
	if outcome.State == "" {
		outcome.State = p.request.State
	}

	b.finish(ctx, p, outcome)
	return nil
}

// Cancel rejects the outstanding request, if any. Used on session teardown
// and shutdown so no worker stays parked forever.
func (b *Broker) Cancel(ctx context.Context, reason string) bool {
	b.mu.Lock()
	p := b.current
	b.current = nil
	b.mu.Unlock()
	if p == nil {
		return false
	}
	b.logger.Printf("[moderation] request %s cancelled: %s", p.request.ID, reason)
	b.finish(ctx, p, Outcome{Kind: Rejected})
	return true
}

// Pending returns the outstanding request, if any.
func (b *Broker) Pending() (Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Request{}, false
	}
	return b.current.request, true
}

// Outstanding reports whether a request awaits review.
func (b *Broker) Outstanding() bool {
	_, ok := b.Pending()
	return ok
}

func (b *Broker) finish(ctx context.Context, p *pending, outcome Outcome) {
	p.done <- outcome
	eventbus.Publish(ctx, b.bus, eventbus.Moderation.Resolved, eventbus.SourceModeration,
		eventbus.ModerationResolvedEvent{
			RequestID: p.request.ID,
			Outcome:   string(outcome.Kind),
			Text:      outcome.Text,
			State:     string(outcome.State),
		})
}
