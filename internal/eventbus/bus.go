package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// historyCapacity bounds the append-only event history kept for debugging.
const historyCapacity = 1000

// Bus orchestrates topic-based publish/subscribe messaging.
type Bus struct {
	logger        *log.Logger
	mu            sync.RWMutex
	subscribers   map[Topic]map[uint64]*Subscription
	topicBuffers  map[Topic]int
	topicPolicies map[Topic]DeliveryPolicy
	observers     []Observer
	nextID        uint64

	paused atomic.Bool

	publishTotal atomic.Uint64
	droppedTotal atomic.Uint64

	histMu   sync.Mutex
	history  []Envelope
	histNext int
	histLen  int
}

// Observer is notified synchronously about every published envelope.
// Implementations must be fast and must not block.
type Observer interface {
	OnPublish(env Envelope)
}

// New constructs a bus with default topic buffer sizes.
func New(opts ...BusOption) *Bus {
	defaults := map[Topic]int{
		TopicMessagesClient:    256,
		TopicMessagesModel:     256,
		TopicMessagesRobot:     256,
		TopicMessagesWizard:    256,
		TopicMessagesSent:      128,
		TopicUsersDetected:     128,
		TopicUsersIdentified:   64,
		TopicUsersLost:         128,
		TopicSessionsLifecycle: 256,
		TopicConnectionMessage: 64,
		TopicConnectionVideo:   64,
		TopicVideoFrame:        64,
		TopicStateChanged:      256,
	}

	bus := &Bus{
		logger:        log.Default(),
		subscribers:   make(map[Topic]map[uint64]*Subscription),
		topicBuffers:  defaults,
		topicPolicies: make(map[Topic]DeliveryPolicy),
		history:       make([]Envelope, historyCapacity),
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTopicBuffer sets the buffer size for a given topic.
func WithTopicBuffer(topic Topic, size int) BusOption {
	return func(b *Bus) {
		if size <= 0 {
			size = 1
		}
		if b.topicBuffers == nil {
			b.topicBuffers = make(map[Topic]int)
		}
		b.topicBuffers[topic] = size
	}
}

// WithTopicPolicy overrides the delivery policy for a specific topic.
func WithTopicPolicy(topic Topic, policy DeliveryPolicy) BusOption {
	return func(b *Bus) {
		if b.topicPolicies == nil {
			b.topicPolicies = make(map[Topic]DeliveryPolicy)
		}
		b.topicPolicies[topic] = policy
	}
}

// WithObserver registers an observer invoked on every publish.
func WithObserver(obs Observer) BusOption {
	return func(b *Bus) {
		if obs != nil {
			b.observers = append(b.observers, obs)
		}
	}
}

// Publish sends the envelope to all subscribers of the topic.
// If b is nil the call is a no-op.
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	if b == nil || env.Topic == "" {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = SourceUnknown
	}

	b.publishTotal.Add(1)
	b.record(env)

	for _, obs := range b.observers {
		obs.OnPublish(env)
	}

	if b.paused.Load() {
		return
	}

	b.mu.RLock()
	subs := b.subscribers[env.Topic]
	for _, sub := range subs {
		sub.deliver(ctx, env, b)
	}
	b.mu.RUnlock()
}

// Pause suppresses delivery to subscribers. Publishing still records history
// and counters so shutdown diagnostics stay complete.
func (b *Bus) Pause() {
	if b == nil {
		return
	}
	b.paused.Store(true)
}

// Resume re-enables delivery after a Pause.
func (b *Bus) Resume() {
	if b == nil {
		return
	}
	b.paused.Store(false)
}

// Paused reports whether delivery is currently suppressed.
func (b *Bus) Paused() bool {
	return b != nil && b.paused.Load()
}

// record appends the envelope to the bounded history ring.
func (b *Bus) record(env Envelope) {
	b.histMu.Lock()
	b.history[b.histNext] = env
	b.histNext = (b.histNext + 1) % historyCapacity
	if b.histLen < historyCapacity {
		b.histLen++
	}
	b.histMu.Unlock()
}

// History returns up to tail most recent events, oldest first. An empty topic
// matches every topic; tail <= 0 returns everything retained.
func (b *Bus) History(topic Topic, tail int) []Envelope {
	if b == nil {
		return nil
	}

	b.histMu.Lock()
	ordered := make([]Envelope, 0, b.histLen)
	start := b.histNext - b.histLen
	if start < 0 {
		start += historyCapacity
	}
	for i := 0; i < b.histLen; i++ {
		env := b.history[(start+i)%historyCapacity]
		if topic == "" || env.Topic == topic {
			ordered = append(ordered, env)
		}
	}
	b.histMu.Unlock()

	if tail > 0 && len(ordered) > tail {
		ordered = ordered[len(ordered)-tail:]
	}
	return ordered
}

// Metrics summarise bus activity.
type Metrics struct {
	PublishTotal uint64
	DroppedTotal uint64
}

// Metrics returns a snapshot of publish/drop counters.
func (b *Bus) Metrics() Metrics {
	if b == nil {
		return Metrics{}
	}
	return Metrics{
		PublishTotal: b.publishTotal.Load(),
		DroppedTotal: b.droppedTotal.Load(),
	}
}

// Subscribe registers a subscriber for the given topic.
// If b is nil the returned Subscription has a closed channel and Close is a no-op.
func (b *Bus) Subscribe(topic Topic, opts ...SubscriptionOption) *Subscription {
	if b == nil {
		ch := make(chan Envelope)
		close(ch)
		done := make(chan struct{})
		close(done)
		sub := &Subscription{ch: ch, done: done}
		sub.closed.Store(true)
		return sub
	}
	cfg := subscriptionConfig{
		bufferSize: b.topicBuffers[topic],
	}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = 1
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := atomic.AddUint64(&b.nextID, 1)
	sub := &Subscription{
		topic:  topic,
		id:     id,
		name:   cfg.name,
		ch:     make(chan Envelope, cfg.bufferSize),
		done:   make(chan struct{}),
		bus:    b,
		policy: policyFor(topic, b.topicPolicies),
	}

	b.mu.Lock()
	if _, exists := b.subscribers[topic]; !exists {
		b.subscribers[topic] = make(map[uint64]*Subscription)
	}
	b.subscribers[topic][id] = sub
	b.mu.Unlock()

	if cfg.ctx != nil {
		go func() {
			select {
			case <-cfg.ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Shutdown closes all subscriptions and empties routing tables.
// If b is nil the call is a no-op.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for id, sub := range subs {
			sub.closeLocked()
			delete(subs, id)
		}
		delete(b.subscribers, topic)
	}
}

// SubscriptionOption customises individual subscriptions.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	bufferSize int
	name       string
	ctx        context.Context
}

// WithSubscriptionBuffer overrides the channel buffer for a subscription.
func WithSubscriptionBuffer(size int) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	}
}

// WithSubscriptionName records a human friendly identifier used in logs.
func WithSubscriptionName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.name = name
	}
}

// WithContext ties the subscription lifecycle to a context.
// When the context is cancelled the subscription is automatically closed.
// A nil context is ignored.
func WithContext(ctx context.Context) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if ctx != nil {
			cfg.ctx = ctx
		}
	}
}

// Subscription represents a consumer listening to a topic.
type Subscription struct {
	topic Topic
	id    uint64
	name  string
	ch    chan Envelope
	done  chan struct{} // closed when the subscription is closed

	bus     *Bus
	closed  atomic.Bool
	dropped atomic.Uint64
	policy  DeliveryPolicy
}

// C exposes the event channel.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Close removes the subscription and closes the channel.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	close(s.done)

	if s.bus == nil {
		close(s.ch)
		return
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subscribers[s.topic]; ok {
		delete(subs, s.id)
	}
	close(s.ch)
}

func (s *Subscription) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	close(s.ch)
}

func (s *Subscription) deliver(ctx context.Context, env Envelope, bus *Bus) {
	if s.closed.Load() {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	// Fast path: non-blocking send.
	select {
	case s.ch <- env:
		return
	default:
	}

	// Channel full — apply policy.
	switch s.policy.Strategy {
	case StrategyDropNewest:
		s.recordDrop(bus, "drop-newest")
	default: // StrategyDropOldest
		select {
		case <-s.ch:
			s.recordDrop(bus, "drop-oldest")
		default:
		}
		select {
		case s.ch <- env:
		default:
			s.recordDrop(bus, "drop-current")
		}
	}
}

func (s *Subscription) recordDrop(bus *Bus, reason string) {
	count := s.dropped.Add(1)
	if bus != nil {
		bus.droppedTotal.Add(1)
		if bus.logger != nil {
			name := s.name
			if name == "" {
				name = "subscription"
			}
			bus.logger.Printf("[eventbus] dropped event #%d for %s on topic %s (%s)", count, name, s.topic, reason)
		}
	}
}
