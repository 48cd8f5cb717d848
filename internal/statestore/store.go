// Package statestore holds the single process-wide view of operator-visible
// state. Reads are direct; every mutation goes through a setter that
// publishes a state.changed event on the bus.
package statestore

import (
	"context"
	"sync"

	"github.com/softrobotics/wizard/internal/eventbus"
	"github.com/softrobotics/wizard/internal/model"
)

// Counter names tracked by the store.
const (
	CounterMessagesSent     = "messages_sent"
	CounterMessagesReceived = "messages_received"
	CounterSessionsCreated  = "sessions_created"
	CounterUsersDetected    = "users_detected"
	CounterModeChanges      = "mode_changes"
	CounterFramesDropped    = "frames_dropped"
)

// Store is the single source of truth for operator-visible state.
type Store struct {
	bus *eventbus.Bus

	mu                sync.RWMutex
	mode              model.OperationMode
	connected         bool
	registered        bool
	processing        bool
	waitingResponse   bool
	currentUserID     string
	currentSessionID  string
	currentRobotState model.RobotState
	appStatus         string
	counters          map[string]int64
}

// New creates a store in MANUAL mode with the robot at attention.
func New(bus *eventbus.Bus) *Store {
	return &Store{
		bus:               bus,
		mode:              model.ModeManual,
		currentRobotState: model.StateAttention,
		appStatus:         "starting",
		counters:          make(map[string]int64),
	}
}

func (s *Store) publishChange(field string, value any) {
	eventbus.Publish(context.Background(), s.bus, eventbus.State.Changed, eventbus.SourceStateStore, eventbus.StateChangedEvent{
		Field: field,
		Value: value,
	})
}

// Mode returns the current operation mode.
func (s *Store) Mode() model.OperationMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches the operation mode and bumps the mode-change counter when
// the mode actually changes.
func (s *Store) SetMode(mode model.OperationMode) {
	s.mu.Lock()
	changed := s.mode != mode
	s.mode = mode
	if changed {
		s.counters[CounterModeChanges]++
	}
	s.mu.Unlock()

	if changed {
		s.publishChange("operation_mode", mode)
	}
}

// Connected reports whether the message transport is up.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetConnected records message-transport connectivity. Losing the connection
// also clears registration.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	droppedRegistration := false
	if !connected && s.registered {
		s.registered = false
		droppedRegistration = true
	}
	s.mu.Unlock()

	if changed {
		s.publishChange("is_connected", connected)
	}
	if droppedRegistration {
		s.publishChange("is_registered", false)
	}
}

// Registered reports whether the broker acknowledged operator registration.
func (s *Store) Registered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registered
}

// SetRegistered records the registration acknowledgement.
func (s *Store) SetRegistered(registered bool) {
	s.mu.Lock()
	changed := s.registered != registered
	s.registered = registered
	s.mu.Unlock()

	if changed {
		s.publishChange("is_registered", registered)
	}
}

// Processing reports whether the pipeline is draining its queue.
func (s *Store) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing
}

// SetProcessing toggles the pipeline-busy flag.
func (s *Store) SetProcessing(processing bool) {
	s.mu.Lock()
	changed := s.processing != processing
	s.processing = processing
	s.mu.Unlock()

	if changed {
		s.publishChange("is_processing", processing)
	}
}

// WaitingResponse reports whether a moderation request is outstanding.
func (s *Store) WaitingResponse() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitingResponse
}

// SetWaitingResponse toggles the moderation-outstanding flag.
func (s *Store) SetWaitingResponse(waiting bool) {
	s.mu.Lock()
	changed := s.waitingResponse != waiting
	s.waitingResponse = waiting
	s.mu.Unlock()

	if changed {
		s.publishChange("is_waiting_response", waiting)
	}
}

// CurrentUserID returns the id of the user currently pinned to the pipeline.
func (s *Store) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentUserID
}

// SetCurrentUserID records the pinned user id ("" when none).
func (s *Store) SetCurrentUserID(id string) {
	s.mu.Lock()
	changed := s.currentUserID != id
	s.currentUserID = id
	s.mu.Unlock()

	if changed {
		s.publishChange("current_user", id)
	}
}

// CurrentSessionID returns the id of the active session, if any.
func (s *Store) CurrentSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSessionID
}

// SetCurrentSessionID records the active session id ("" when none).
func (s *Store) SetCurrentSessionID(id string) {
	s.mu.Lock()
	changed := s.currentSessionID != id
	s.currentSessionID = id
	s.mu.Unlock()

	if changed {
		s.publishChange("current_session", id)
	}
}

// RobotState returns the currently selected emotional state.
func (s *Store) RobotState() model.RobotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRobotState
}

// SetRobotState records the selected emotional state.
func (s *Store) SetRobotState(state model.RobotState) {
	s.mu.Lock()
	changed := s.currentRobotState != state
	s.currentRobotState = state
	s.mu.Unlock()

	if changed {
		s.publishChange("current_robot_state", state)
	}
}

// AppStatus returns the human-readable application status line.
func (s *Store) AppStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appStatus
}

// SetAppStatus updates the status line shown to the operator.
func (s *Store) SetAppStatus(status string) {
	s.mu.Lock()
	changed := s.appStatus != status
	s.appStatus = status
	s.mu.Unlock()

	if changed {
		s.publishChange("app_status", status)
	}
}

// IsReady gates outbound operations: connected, registered and not busy.
func (s *Store) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected && s.registered && !s.processing
}

// Increment bumps a named counter by one and returns the new value.
func (s *Store) Increment(name string) int64 {
	s.mu.Lock()
	s.counters[name]++
	value := s.counters[name]
	s.mu.Unlock()
	return value
}

// Counter returns the current value of a named counter.
func (s *Store) Counter(name string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name]
}

// Counters returns a copy of all counters.
func (s *Store) Counters() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// Snapshot is a consistent copy of the store for the observer surface.
type Snapshot struct {
	Mode             model.OperationMode
	Connected        bool
	Registered       bool
	Processing       bool
	WaitingResponse  bool
	CurrentUserID    string
	CurrentSessionID string
	RobotState       model.RobotState
	AppStatus        string
	Counters         map[string]int64
}

// Snapshot returns a consistent copy of every field.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	return Snapshot{
		Mode:             s.mode,
		Connected:        s.connected,
		Registered:       s.registered,
		Processing:       s.processing,
		WaitingResponse:  s.waitingResponse,
		CurrentUserID:    s.currentUserID,
		CurrentSessionID: s.currentSessionID,
		RobotState:       s.currentRobotState,
		AppStatus:        s.appStatus,
		Counters:         counters,
	}
}
