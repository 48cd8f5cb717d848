package eventbus

import (
	"context"
	"sync"
)

// Closer is any subscription handle that can be shut.
type Closer interface {
	Close()
}

// SubscriptionGroup collects subscription handles so a service can drop
// them all at shutdown. The zero value is ready to use.
type SubscriptionGroup struct {
	mu   sync.Mutex
	subs []Closer
}

// Add tracks the given handles. Nils are skipped.
func (g *SubscriptionGroup) Add(subs ...Closer) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			g.subs = append(g.subs, sub)
		}
	}
}

// CloseAll closes every tracked handle and empties the group.
func (g *SubscriptionGroup) CloseAll() {
	if g == nil {
		return
	}
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// ServiceLifecycle bundles the plumbing every bus-driven service repeats:
// a cancellable run context, tracked subscriptions, and a wait group over
// worker goroutines. The zero value is ready; call Start before Go so
// workers receive the run context.
type ServiceLifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc
	subs   SubscriptionGroup
	wg     sync.WaitGroup
}

// Start derives the run context from parent.
func (l *ServiceLifecycle) Start(parent context.Context) {
	l.ctx, l.cancel = context.WithCancel(parent)
}

// AddSubscriptions tracks handles to close on Stop.
func (l *ServiceLifecycle) AddSubscriptions(subs ...Closer) {
	l.subs.Add(subs...)
}

// Go runs worker on a tracked goroutine. Workers started before Start
// receive a nil context and must cope.
func (l *ServiceLifecycle) Go(worker func(ctx context.Context)) {
	if worker == nil {
		return
	}
	l.wg.Add(1)
	ctx := l.ctx
	go func() {
		defer l.wg.Done()
		worker(ctx)
	}()
}

// Stop cancels the run context and closes tracked subscriptions. Workers
// are not awaited; use Wait.
func (l *ServiceLifecycle) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.subs.CloseAll()
}

// Wait blocks until every worker has returned, or until ctx is done.
func (l *ServiceLifecycle) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
