// Package pipeline is the dialogue coordinator. It owns the current user and
// session, classifies every inbound message event, routes model replies
// through moderation (manual mode) or straight to the robot (automatic
// mode), and keeps the per-session transcript consistent across user
// switches, disconnects and mode changes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
	"github.com/softrobotics/wizard/internal/moderation"
	"github.com/softrobotics/wizard/internal/statestore"
)

// Timing defaults.
const (
	DefaultUserClearGrace    = 5 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultDrainPacing       = 100 * time.Millisecond
)

// voicePlaceholder stands in for transcript text when a voice clip is sent
// without an accompanying text.
const voicePlaceholder = "(voice reply)"

// ErrNoActiveSession is returned by transcript reads with nothing to show.
var ErrNoActiveSession = errors.New("pipeline: no active session")

// Sender is the outbound half of the message transport used by the
// coordinator. *transport.MessageClient satisfies it.
type Sender interface {
	SendWizardMessage(text string, state model.RobotState) error
	SendVoiceResponse(audio []byte, state model.RobotState) error
	Ping() error
	Connected() bool
}

// Config tunes the coordinator's timers.
type Config struct {
	// UserClearGrace delays clearing the current user after user_lost so
	// a quick re-detection keeps the operator view stable.
	UserClearGrace time.Duration
	// KeepaliveInterval spaces ping frames while connected.
	KeepaliveInterval time.Duration
	// DrainPacing spaces queue items while draining pending messages.
	DrainPacing time.Duration
	Logger      *log.Logger
}

func (c Config) withDefaults() Config {
	if c.UserClearGrace <= 0 {
		c.UserClearGrace = DefaultUserClearGrace
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.DrainPacing < 0 {
		c.DrainPacing = DefaultDrainPacing
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Coordinator drives the dialogue. Users and sessions live in id-keyed maps;
// everything else references them by id so ending a session is a status flip,
// never a dangling pointer.
type Coordinator struct {
	bus    *eventbus.Bus
	store  *statestore.Store
	broker *moderation.Broker
	sender Sender
	logger *log.Logger
	cfg    Config

	lifecycle eventbus.ServiceLifecycle

	mu               sync.Mutex
	users            map[string]*model.User
	sessions         map[string]*model.Session
	currentUserID    string
	currentSessionID string
	clearTimer       *time.Timer
	clearTarget      string
	queue            []*model.Message

	draining atomic.Bool
}

// New wires a coordinator. All collaborators are required except sender,
// which may be nil in tests that only exercise ingestion.
func New(bus *eventbus.Bus, store *statestore.Store, broker *moderation.Broker, sender Sender, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		bus:      bus,
		store:    store,
		broker:   broker,
		sender:   sender,
		logger:   cfg.Logger,
		cfg:      cfg,
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
	}
}

// Start subscribes to the inbound topics and launches the event loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycle.Start(ctx)

	clientSub := eventbus.SubscribeTo(c.bus, eventbus.Messages.Client, eventbus.WithSubscriptionName("pipeline.client"))
	modelSub := eventbus.SubscribeTo(c.bus, eventbus.Messages.Model, eventbus.WithSubscriptionName("pipeline.model"))
	robotSub := eventbus.SubscribeTo(c.bus, eventbus.Messages.Robot, eventbus.WithSubscriptionName("pipeline.robot"))
	wizardSub := eventbus.SubscribeTo(c.bus, eventbus.Messages.Wizard, eventbus.WithSubscriptionName("pipeline.wizard"))
	detectedSub := eventbus.SubscribeTo(c.bus, eventbus.Users.Detected, eventbus.WithSubscriptionName("pipeline.detected"))
	lostSub := eventbus.SubscribeTo(c.bus, eventbus.Users.Lost, eventbus.WithSubscriptionName("pipeline.lost"))
	connSub := eventbus.SubscribeTo(c.bus, eventbus.Connection.Message, eventbus.WithSubscriptionName("pipeline.conn"))
	c.lifecycle.AddSubscriptions(clientSub, modelSub, robotSub, wizardSub, detectedSub, lostSub, connSub)

	c.lifecycle.Go(func(ctx context.Context) {
		c.run(ctx, clientSub, modelSub, robotSub, wizardSub, detectedSub, lostSub, connSub)
	})
	return nil
}

// Shutdown stops the event loop, ends the active session and cancels any
// outstanding moderation request. Safe to call more than once.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.lifecycle.Stop()

	c.mu.Lock()
	c.stopClearTimerLocked()
	c.endCurrentSessionLocked(ctx, "shutdown")
	c.mu.Unlock()

	c.broker.Cancel(ctx, "shutdown")
	return c.lifecycle.Wait(ctx)
}

func (c *Coordinator) run(ctx context.Context,
	clientSub *eventbus.TypedSubscription[eventbus.ClientMessageEvent],
	modelSub *eventbus.TypedSubscription[eventbus.ModelReplyEvent],
	robotSub *eventbus.TypedSubscription[eventbus.RobotMessageEvent],
	wizardSub *eventbus.TypedSubscription[eventbus.WizardMessageEvent],
	detectedSub *eventbus.TypedSubscription[eventbus.UserDetectedEvent],
	lostSub *eventbus.TypedSubscription[eventbus.UserLostEvent],
	connSub *eventbus.TypedSubscription[eventbus.ConnectionEvent],
) {
	keepalive := time.NewTicker(c.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-clientSub.C():
			if ok {
				c.handleClientMessage(ctx, env.Payload)
			}
		case env, ok := <-modelSub.C():
			if ok {
				c.handleModelReply(ctx, env.Payload)
			}
		case env, ok := <-robotSub.C():
			if ok {
				c.handleTranscriptEcho(ctx, env.Payload.Text, env.Payload.State, model.SenderRobot)
			}
		case env, ok := <-wizardSub.C():
			if ok {
				c.handleTranscriptEcho(ctx, env.Payload.Text, env.Payload.State, model.SenderWizard)
			}
		case env, ok := <-detectedSub.C():
			if ok {
				c.handleUserDetected(ctx, env.Payload)
			}
		case env, ok := <-lostSub.C():
			if ok {
				c.handleUserLost(ctx, env.Payload)
			}
		case env, ok := <-connSub.C():
			if ok {
				c.handleConnection(env.Payload)
			}
		case <-keepalive.C:
			c.keepalive()
		}
	}
}

// ---------------------------------------------------------------------------
// User presence
// ---------------------------------------------------------------------------

func (c *Coordinator) handleUserDetected(ctx context.Context, ev eventbus.UserDetectedEvent) {
	c.mu.Lock()

	user, known := c.users[ev.UserID]
	if !known {
		user = model.NewUser(ev.UserID)
		c.users[ev.UserID] = user
		c.store.Increment(statestore.CounterUsersDetected)
		c.logger.Printf("[pipeline] new user detected: %s", ev.UserID)
	} else {
		user.Touch()
	}
	if ev.ConsensusRatio > 0 {
		user.ConsensusRatio = ev.ConsensusRatio
	}
	identified := ev.UserName != "" && user.Identify(ev.UserName)

	// A re-detection before the grace expires keeps the user pinned.
	if c.clearTarget == ev.UserID {
		c.stopClearTimerLocked()
	}

	switched := ev.UserID != c.currentUserID
	needsSession := c.activeSessionLocked() == nil
	if switched {
		c.endCurrentSessionLocked(ctx, "user_switch")
	}
	if switched || needsSession {
		c.currentUserID = ev.UserID
		c.startSessionLocked(ctx, ev.UserID)
	}
	c.mu.Unlock()

	if switched {
		c.broker.Cancel(ctx, "user switched")
	}
	c.store.SetCurrentUserID(ev.UserID)
	if identified {
		eventbus.Publish(ctx, c.bus, eventbus.Users.Identified, eventbus.SourcePipeline,
			eventbus.UserIdentifiedEvent{UserID: ev.UserID, UserName: ev.UserName})
	}
}

func (c *Coordinator) handleUserLost(ctx context.Context, ev eventbus.UserLostEvent) {
	c.mu.Lock()
	if user, ok := c.users[ev.UserID]; ok {
		user.MarkLost()
	}
	if ev.UserID != c.currentUserID {
		c.mu.Unlock()
		return
	}
	c.endCurrentSessionLocked(ctx, "user_lost")
	c.scheduleUserClearLocked(ev.UserID)
	c.mu.Unlock()

	c.broker.Cancel(ctx, "user lost")
}

// scheduleUserClearLocked arms the delayed clearing of the current user.
func (c *Coordinator) scheduleUserClearLocked(userID string) {
	c.stopClearTimerLocked()
	c.clearTarget = userID
	c.clearTimer = time.AfterFunc(c.cfg.UserClearGrace, func() {
		c.clearUser(userID)
	})
}

func (c *Coordinator) stopClearTimerLocked() {
	if c.clearTimer != nil {
		c.clearTimer.Stop()
		c.clearTimer = nil
	}
	c.clearTarget = ""
}

func (c *Coordinator) clearUser(userID string) {
	c.mu.Lock()
	if c.clearTarget != userID {
		c.mu.Unlock()
		return
	}
	c.clearTimer = nil
	c.clearTarget = ""
	if c.currentUserID == userID {
		c.currentUserID = ""
	}
	delete(c.users, userID)
	c.mu.Unlock()

	c.logger.Printf("[pipeline] cleared lost user %s", userID)
	c.store.SetCurrentUserID("")
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (c *Coordinator) activeSessionLocked() *model.Session {
	if c.currentSessionID == "" {
		return nil
	}
	session := c.sessions[c.currentSessionID]
	if session == nil || session.Status != model.SessionActive {
		return nil
	}
	return session
}

func (c *Coordinator) startSessionLocked(ctx context.Context, userID string) *model.Session {
	session := model.NewSession(userID)
	c.sessions[session.ID] = session
	c.currentSessionID = session.ID

	c.store.Increment(statestore.CounterSessionsCreated)
	c.store.SetCurrentSessionID(session.ID)
	c.logger.Printf("[pipeline] session %s started for user %q", session.ID, userID)
	eventbus.Publish(ctx, c.bus, eventbus.Sessions.Lifecycle, eventbus.SourcePipeline,
		eventbus.SessionLifecycleEvent{
			SessionID: session.ID,
			UserID:    userID,
			Status:    string(model.SessionActive),
			Reason:    "started",
		})
	return session
}

func (c *Coordinator) endCurrentSessionLocked(ctx context.Context, reason string) {
	session := c.activeSessionLocked()
	c.currentSessionID = ""
	if session == nil {
		return
	}
	session.End()
	c.store.SetCurrentSessionID("")
	c.logger.Printf("[pipeline] session %s ended (%s)", session.ID, reason)
	eventbus.Publish(ctx, c.bus, eventbus.Sessions.Lifecycle, eventbus.SourcePipeline,
		eventbus.SessionLifecycleEvent{
			SessionID: session.ID,
			UserID:    session.UserID,
			Status:    string(model.SessionEnded),
			Reason:    reason,
		})
}

// sessionForAppendLocked returns the active session, starting one when
// nothing is active yet (messages may arrive before any detection).
func (c *Coordinator) sessionForAppendLocked(ctx context.Context) *model.Session {
	if session := c.activeSessionLocked(); session != nil {
		return session
	}
	return c.startSessionLocked(ctx, c.currentUserID)
}

// ---------------------------------------------------------------------------
// Inbound messages
// ---------------------------------------------------------------------------

func (c *Coordinator) handleClientMessage(ctx context.Context, ev eventbus.ClientMessageEvent) {
	msg, err := model.NewMessage(ev.Text, model.SenderClient)
	if err != nil {
		c.ingestError(ctx, "client_message", err)
		return
	}
	msg.RequiresResponse = true
	if ev.UserID != "" {
		msg.UserID = ev.UserID
	}

	c.mu.Lock()
	session := c.sessionForAppendLocked(ctx)
	if err := session.Append(msg); err != nil {
		c.mu.Unlock()
		c.ingestError(ctx, "client_message", err)
		return
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	c.store.Increment(statestore.CounterMessagesReceived)
	c.store.SetWaitingResponse(true)
	c.lifecycle.Go(c.drainQueue)
}

func (c *Coordinator) handleModelReply(ctx context.Context, ev eventbus.ModelReplyEvent) {
	text, state := candidateReply(ev, c.logger)
	if text == "" {
		c.ingestError(ctx, "openai_message", errors.New("model reply carries no text"))
		return
	}

	robotMsg, err := model.NewMessage(text, model.SenderRobot)
	if err != nil {
		c.ingestError(ctx, "openai_message", err)
		return
	}
	robotMsg.RobotState = state

	c.mu.Lock()
	session := c.sessionForAppendLocked(ctx)
	if err := session.Append(robotMsg); err != nil {
		c.mu.Unlock()
		c.ingestError(ctx, "openai_message", err)
		return
	}
	c.mu.Unlock()

	c.store.SetWaitingResponse(false)

	if c.store.Mode() == model.ModeAutomatic {
		if err := c.dispatchText(ctx, text, state); err != nil {
			c.logger.Printf("[pipeline] automatic dispatch failed: %v", err)
		}
		return
	}

	req, done := c.broker.Open(ctx, moderation.Request{
		Text:         text,
		State:        state,
		Alternatives: ev.Alternatives,
		UserMessage:  ev.UserMessage,
	})
	c.lifecycle.Go(func(ctx context.Context) {
		c.awaitModeration(ctx, req, done)
	})
}

// handleTranscriptEcho appends robot_message/wizard_message frames for
// transcript fidelity. They are never re-dispatched.
func (c *Coordinator) handleTranscriptEcho(ctx context.Context, text, state string, sender model.Sender) {
	msg, err := model.NewMessage(text, sender)
	if err != nil {
		c.ingestError(ctx, string(sender), err)
		return
	}
	msg.RobotState = model.CoerceRobotState(state, c.logger)

	c.mu.Lock()
	session := c.sessionForAppendLocked(ctx)
	err = session.Append(msg)
	c.mu.Unlock()
	if err != nil {
		c.ingestError(ctx, string(sender), err)
	}
}

func candidateReply(ev eventbus.ModelReplyEvent, logger *log.Logger) (string, model.RobotState) {
	if len(ev.Alternatives) == 0 {
		return ev.Text, model.CoerceRobotState(ev.State, logger)
	}
	// Per-state alternatives: prefer the neutral phrasing, else the first
	// state in stable order.
	if text, ok := ev.Alternatives[string(model.StateAttention)]; ok && text != "" {
		return text, model.StateAttention
	}
	states := make([]string, 0, len(ev.Alternatives))
	for state := range ev.Alternatives {
		states = append(states, state)
	}
	sort.Strings(states)
	for _, state := range states {
		if text := ev.Alternatives[state]; text != "" {
			return text, model.CoerceRobotState(state, logger)
		}
	}
	return "", model.StateAttention
}

// ---------------------------------------------------------------------------
// Pending queue
// ---------------------------------------------------------------------------

// drainQueue marks pending client messages processed, one at a time.
// Re-entrance is prevented by the draining flag; is_processing mirrors the
// drain on the state store.
func (c *Coordinator) drainQueue(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.draining.CompareAndSwap(false, true) {
		return
	}
	c.store.SetProcessing(true)
	defer func() {
		c.store.SetProcessing(false)
		c.draining.Store(false)
	}()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		msg.MarkProcessed()
		c.mu.Unlock()

		if c.cfg.DrainPacing > 0 {
			timer := time.NewTimer(c.cfg.DrainPacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// PendingCount returns the number of client messages awaiting processing.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// ---------------------------------------------------------------------------
// Moderation
// ---------------------------------------------------------------------------

func (c *Coordinator) awaitModeration(ctx context.Context, req moderation.Request, done <-chan moderation.Outcome) {
	select {
	case <-ctx.Done():
		return
	case outcome := <-done:
		switch outcome.Kind {
		case moderation.Accepted:
			if err := c.dispatchText(ctx, outcome.Text, outcome.State); err != nil {
				c.logger.Printf("[pipeline] moderated dispatch failed: %v", err)
			}
		case moderation.VoiceAccepted:
			if err := c.dispatchVoice(ctx, outcome.Text, outcome.Audio, outcome.State); err != nil {
				c.logger.Printf("[pipeline] moderated voice dispatch failed: %v", err)
			}
		case moderation.Rejected:
			c.logger.Printf("[pipeline] moderation request %s rejected, reply discarded", req.ID)
		}
	}
}

// ResolveModeration applies an operator decision to the pending request.
func (c *Coordinator) ResolveModeration(ctx context.Context, requestID string, outcome moderation.Outcome) error {
	return c.broker.Resolve(ctx, requestID, outcome)
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// SendWizardText sends an operator text reply through the full outbound
// path: transcript append first, then transport, then acknowledgement.
func (c *Coordinator) SendWizardText(ctx context.Context, text string, state model.RobotState) error {
	return c.dispatchText(ctx, text, state)
}

// SendWizardVoice sends a recorded operator clip. The transcript records the
// spoken text when the caller knows it.
func (c *Coordinator) SendWizardVoice(ctx context.Context, audio []byte, state model.RobotState) error {
	return c.dispatchVoice(ctx, "", audio, state)
}

func (c *Coordinator) dispatchText(ctx context.Context, text string, state model.RobotState) error {
	if c.sender == nil {
		return errors.New("pipeline: no message transport configured")
	}
	msg, session, err := c.appendOutboundLocked(ctx, text, state, false)
	if err != nil {
		return err
	}
	if err := c.sender.SendWizardMessage(msg.Text, state); err != nil {
		c.sendError(ctx, err)
		return fmt.Errorf("pipeline: send wizard message: %w", err)
	}
	c.acknowledge(ctx, msg, session, false)
	return nil
}

func (c *Coordinator) dispatchVoice(ctx context.Context, text string, audio []byte, state model.RobotState) error {
	if c.sender == nil {
		return errors.New("pipeline: no message transport configured")
	}
	if len(audio) == 0 {
		return errors.New("pipeline: voice reply carries no audio")
	}
	if text == "" {
		text = voicePlaceholder
	}
	msg, session, err := c.appendOutboundLocked(ctx, text, state, true)
	if err != nil {
		return err
	}
	if err := c.sender.SendVoiceResponse(audio, state); err != nil {
		c.sendError(ctx, err)
		return fmt.Errorf("pipeline: send voice response: %w", err)
	}
	c.acknowledge(ctx, msg, session, true)
	return nil
}

// appendOutboundLocked stamps a WIZARD message into the session log before
// any transport I/O so the transcript reflects intent even when the network
// fails.
func (c *Coordinator) appendOutboundLocked(ctx context.Context, text string, state model.RobotState, voice bool) (*model.Message, *model.Session, error) {
	msg, err := model.NewMessage(text, model.SenderWizard)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: build wizard message: %w", err)
	}
	msg.RobotState = state
	if voice {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]any, 1)
		}
		msg.Metadata["voice"] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.sessionForAppendLocked(ctx)
	if err := session.Append(msg); err != nil {
		return nil, nil, fmt.Errorf("pipeline: append wizard message: %w", err)
	}
	return msg, session, nil
}

func (c *Coordinator) acknowledge(ctx context.Context, msg *model.Message, session *model.Session, voice bool) {
	c.mu.Lock()
	msg.IsSent = true
	c.mu.Unlock()

	c.store.Increment(statestore.CounterMessagesSent)
	c.store.SetRobotState(msg.RobotState)
	eventbus.Publish(ctx, c.bus, eventbus.Messages.Sent, eventbus.SourcePipeline,
		eventbus.MessageSentEvent{
			MessageID: msg.ID,
			SessionID: session.ID,
			Text:      msg.Text,
			State:     string(msg.RobotState),
			Voice:     voice,
		})
}

// ---------------------------------------------------------------------------
// Mode, connection, keepalive
// ---------------------------------------------------------------------------

// SetMode switches between manual moderation and automatic pass-through.
// Entering automatic mode drains the pending queue immediately.
func (c *Coordinator) SetMode(ctx context.Context, mode model.OperationMode) {
	c.store.SetMode(mode)
	c.logger.Printf("[pipeline] operation mode set to %s", mode)
	if mode == model.ModeAutomatic {
		c.lifecycle.Go(c.drainQueue)
	}
}

func (c *Coordinator) handleConnection(ev eventbus.ConnectionEvent) {
	switch model.ConnectionState(ev.State) {
	case model.ConnConnected:
		c.store.SetConnected(true)
		c.store.SetAppStatus("connected")
	case model.ConnRegistered:
		c.store.SetRegistered(true)
		c.store.SetAppStatus("ready")
	case model.ConnDisconnected:
		c.store.SetConnected(false)
		if ev.Terminal {
			c.store.SetAppStatus("offline")
		} else {
			c.store.SetAppStatus("reconnecting")
		}
	case model.ConnError:
		c.store.SetAppStatus("reconnecting")
	}
}

// keepalive pings the broker while connected, unless a moderation request
// is outstanding.
func (c *Coordinator) keepalive() {
	if c.sender == nil || !c.sender.Connected() {
		return
	}
	if c.broker.Outstanding() {
		return
	}
	if err := c.sender.Ping(); err != nil {
		c.logger.Printf("[pipeline] keepalive ping failed: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// CurrentUser returns a copy of the pinned user.
func (c *Coordinator) CurrentUser() (*model.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.users[c.currentUserID]
	if !ok {
		return nil, false
	}
	return user.Clone(), true
}

// CurrentSession returns a copy of the active session.
func (c *Coordinator) CurrentSession() (*model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.activeSessionLocked()
	if session == nil {
		return nil, false
	}
	clone, err := cloneSession(session)
	if err != nil {
		return nil, false
	}
	return clone, true
}

// Session returns a copy of any known session by id, active or ended.
func (c *Coordinator) Session(id string) (*model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	clone, err := cloneSession(session)
	if err != nil {
		return nil, false
	}
	return clone, true
}

// Transcript returns a copy of the active session's message log.
func (c *Coordinator) Transcript() ([]*model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.activeSessionLocked()
	if session == nil {
		return nil, ErrNoActiveSession
	}
	return session.Transcript(), nil
}

func cloneSession(session *model.Session) (*model.Session, error) {
	raw, err := session.Encode()
	if err != nil {
		return nil, err
	}
	return model.DecodeSession(raw)
}

func (c *Coordinator) ingestError(ctx context.Context, stage string, err error) {
	c.logger.Printf("[pipeline] %s rejected: %v", stage, err)
	eventbus.Publish(ctx, c.bus, eventbus.Pipeline.Error, eventbus.SourcePipeline,
		eventbus.PipelineErrorEvent{Stage: stage, Message: err.Error(), Recoverable: true})
}

func (c *Coordinator) sendError(ctx context.Context, err error) {
	c.logger.Printf("[pipeline] transport send failed: %v", err)
	eventbus.Publish(ctx, c.bus, eventbus.Pipeline.Error, eventbus.SourcePipeline,
		eventbus.PipelineErrorEvent{Stage: "send", Message: err.Error(), Recoverable: true})
}
