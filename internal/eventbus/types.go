package eventbus

import (
	"time"
)

// Topic identifies a logical channel on the bus.
type Topic string

// Standard topics published by the console core.
const (
	TopicMessagesClient Topic = "messages.client"
	TopicMessagesModel  Topic = "messages.model"
	TopicMessagesRobot  Topic = "messages.robot"
	TopicMessagesWizard Topic = "messages.wizard"
	TopicMessagesSent   Topic = "messages.sent"

	TopicUsersDetected   Topic = "users.detected"
	TopicUsersIdentified Topic = "users.identified"
	TopicUsersLost       Topic = "users.lost"

	TopicSessionsLifecycle Topic = "sessions.lifecycle"

	TopicConnectionMessage Topic = "connection.message"
	TopicConnectionVideo   Topic = "connection.video"

	TopicVideoFrame Topic = "video.frame"

	TopicStateChanged Topic = "state.changed"

	TopicModerationRequested Topic = "moderation.requested"
	TopicModerationResolved  Topic = "moderation.resolved"

	TopicPipelineError Topic = "pipeline.error"
)

// Source describes which component produced an event.
type Source string

const (
	SourceMessageTransport Source = "message_transport"
	SourceVideoTransport   Source = "video_transport"
	SourcePipeline         Source = "pipeline"
	SourceStateStore       Source = "state_store"
	SourceModeration       Source = "moderation"
	SourceConsole          Source = "console"
	SourceUnknown          Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// ClientMessageEvent carries one user utterance received from the broker.
type ClientMessageEvent struct {
	Text     string
	UserID   string
	Received time.Time
}

// ModelReplyEvent delivers a candidate AI reply. Alternatives maps an
// emotional-state name to an alternative phrasing; it is empty for plain
// openai_message events.
type ModelReplyEvent struct {
	Text         string
	State        string
	Alternatives map[string]string
	UserMessage  string
}

// RobotMessageEvent mirrors a message the robot already spoke, kept for
// transcript fidelity.
type RobotMessageEvent struct {
	Text  string
	State string
}

// WizardMessageEvent mirrors an operator reply observed on the wire.
type WizardMessageEvent struct {
	Text  string
	State string
}

// MessageSentEvent confirms that an outbound wizard message was acknowledged
// by the transport.
type MessageSentEvent struct {
	MessageID string
	SessionID string
	Text      string
	State     string
	Voice     bool
}

// UserDetectedEvent notifies that the vision backend detected a user.
type UserDetectedEvent struct {
	UserID              string
	UserName            string
	IsNewUser           bool
	NeedsIdentification bool
	ConsensusRatio      float64
}

// UserIdentifiedEvent is published once a detected user has a display name.
type UserIdentifiedEvent struct {
	UserID   string
	UserName string
}

// UserLostEvent notifies that the vision backend lost track of a user.
type UserLostEvent struct {
	UserID string
}

// SessionLifecycleEvent summarises session state transitions.
type SessionLifecycleEvent struct {
	SessionID string
	UserID    string
	Status    string
	Reason    string
}

// ConnectionEvent reports transport state machine transitions.
type ConnectionEvent struct {
	Channel  string // "message" or "video"
	State    string
	Attempt  int
	Err      string
	Terminal bool
}

// VideoFrameEvent carries one decoded camera frame.
type VideoFrameEvent struct {
	Data     []byte
	Received time.Time
}

// StateChangedEvent is published by the state store on every mutation.
type StateChangedEvent struct {
	Field string
	Value any
}

// ModerationRequestedEvent announces that a candidate reply awaits review.
type ModerationRequestedEvent struct {
	RequestID string
	Text      string
	State     string
}

// ModerationResolvedEvent records the operator's decision.
type ModerationResolvedEvent struct {
	RequestID string
	Outcome   string
	Text      string
	State     string
}

// PipelineErrorEvent logs problems inside the message pipeline.
type PipelineErrorEvent struct {
	Stage       string
	Message     string
	Recoverable bool
}

// ---------------------------------------------------------------------------
// Typed topic descriptors
// ---------------------------------------------------------------------------
// Each TopicDef binds a Topic constant to its payload type, enabling
// compile-time enforcement via Publish[T] and SubscribeTo[T].

// Messages groups message topic descriptors.
var Messages = struct {
	Client TopicDef[ClientMessageEvent]
	Model  TopicDef[ModelReplyEvent]
	Robot  TopicDef[RobotMessageEvent]
	Wizard TopicDef[WizardMessageEvent]
	Sent   TopicDef[MessageSentEvent]
}{
	Client: NewTopicDef[ClientMessageEvent](TopicMessagesClient),
	Model:  NewTopicDef[ModelReplyEvent](TopicMessagesModel),
	Robot:  NewTopicDef[RobotMessageEvent](TopicMessagesRobot),
	Wizard: NewTopicDef[WizardMessageEvent](TopicMessagesWizard),
	Sent:   NewTopicDef[MessageSentEvent](TopicMessagesSent),
}

// Users groups user-presence topic descriptors.
var Users = struct {
	Detected   TopicDef[UserDetectedEvent]
	Identified TopicDef[UserIdentifiedEvent]
	Lost       TopicDef[UserLostEvent]
}{
	Detected:   NewTopicDef[UserDetectedEvent](TopicUsersDetected),
	Identified: NewTopicDef[UserIdentifiedEvent](TopicUsersIdentified),
	Lost:       NewTopicDef[UserLostEvent](TopicUsersLost),
}

// Sessions groups session topic descriptors.
var Sessions = struct {
	Lifecycle TopicDef[SessionLifecycleEvent]
}{
	Lifecycle: NewTopicDef[SessionLifecycleEvent](TopicSessionsLifecycle),
}

// Connection groups transport topic descriptors.
var Connection = struct {
	Message TopicDef[ConnectionEvent]
	Video   TopicDef[ConnectionEvent]
}{
	Message: NewTopicDef[ConnectionEvent](TopicConnectionMessage),
	Video:   NewTopicDef[ConnectionEvent](TopicConnectionVideo),
}

// Video groups video topic descriptors.
var Video = struct {
	Frame TopicDef[VideoFrameEvent]
}{
	Frame: NewTopicDef[VideoFrameEvent](TopicVideoFrame),
}

// State groups state-store topic descriptors.
var State = struct {
	Changed TopicDef[StateChangedEvent]
}{
	Changed: NewTopicDef[StateChangedEvent](TopicStateChanged),
}

// Moderation groups moderation topic descriptors.
var Moderation = struct {
	Requested TopicDef[ModerationRequestedEvent]
	Resolved  TopicDef[ModerationResolvedEvent]
}{
	Requested: NewTopicDef[ModerationRequestedEvent](TopicModerationRequested),
	Resolved:  NewTopicDef[ModerationResolvedEvent](TopicModerationResolved),
}

// Pipeline groups pipeline topic descriptors.
var Pipeline = struct {
	Error TopicDef[PipelineErrorEvent]
}{
	Error: NewTopicDef[PipelineErrorEvent](TopicPipelineError),
}
