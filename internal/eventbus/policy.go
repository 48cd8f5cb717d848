package eventbus

// Priority classifies a topic's importance for delivery guarantees.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityCritical Priority = 2
)

// DeliveryStrategy determines behaviour when a subscriber's channel is full.
type DeliveryStrategy string

const (
	// StrategyDropOldest removes the oldest event from the channel and enqueues the new one.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming event when the channel is full.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
)

// DeliveryPolicy controls how a topic handles backpressure.
type DeliveryPolicy struct {
	Strategy DeliveryStrategy
	Priority Priority
}

// defaultPolicy is used for topics without an explicit entry in defaultPolicies.
var defaultPolicy = DeliveryPolicy{
	Strategy: StrategyDropOldest,
	Priority: PriorityNormal,
}

// defaultPolicies maps known topics to their delivery policies.
var defaultPolicies = map[Topic]DeliveryPolicy{
	// Critical — drops mean lost dialogue or broken transcript.
	TopicMessagesClient:    {Strategy: StrategyDropOldest, Priority: PriorityCritical},
	TopicMessagesModel:     {Strategy: StrategyDropOldest, Priority: PriorityCritical},
	TopicMessagesWizard:    {Strategy: StrategyDropOldest, Priority: PriorityCritical},
	TopicUsersDetected:     {Strategy: StrategyDropOldest, Priority: PriorityCritical},
	TopicUsersLost:         {Strategy: StrategyDropOldest, Priority: PriorityCritical},
	TopicSessionsLifecycle: {Strategy: StrategyDropOldest, Priority: PriorityCritical},

	// Normal — tolerant of occasional drops.
	TopicMessagesRobot:     {Strategy: StrategyDropOldest, Priority: PriorityNormal},
	TopicMessagesSent:      {Strategy: StrategyDropOldest, Priority: PriorityNormal},
	TopicConnectionMessage: {Strategy: StrategyDropOldest, Priority: PriorityNormal},
	TopicConnectionVideo:   {Strategy: StrategyDropOldest, Priority: PriorityNormal},
	TopicStateChanged:      {Strategy: StrategyDropOldest, Priority: PriorityNormal},
	TopicPipelineError:     {Strategy: StrategyDropOldest, Priority: PriorityNormal},

	// Low — high-volume frame stream; stale frames are worthless.
	TopicVideoFrame: {Strategy: StrategyDropNewest, Priority: PriorityLow},
}

// policyFor returns the delivery policy for a topic, falling back to defaultPolicy.
func policyFor(topic Topic, overrides map[Topic]DeliveryPolicy) DeliveryPolicy {
	if overrides != nil {
		if p, ok := overrides[topic]; ok {
			return p
		}
	}
	if p, ok := defaultPolicies[topic]; ok {
		return p
	}
	return defaultPolicy
}
