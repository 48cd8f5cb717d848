package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultShutdownTimeout = 5 * time.Second

// ServiceHost starts registered services in order and stops them in reverse.
// Services are registered before Start; a failed start rolls back the ones
// already running.
type ServiceHost struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*registration
	started bool
	errors  chan error
	cancel  context.CancelFunc
}

// Option configures a service registration.
type Option func(*registration)

type registration struct {
	name            string
	service         Service
	running         bool
	shutdownTimeout time.Duration
	errWatch        bool
}

// WithShutdownTimeout customises the shutdown timeout for a service.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(reg *registration) {
		reg.shutdownTimeout = timeout
	}
}

// NewServiceHost creates an empty service host.
func NewServiceHost() *ServiceHost {
	return &ServiceHost{
		entries: make(map[string]*registration),
		errors:  make(chan error, 1),
	}
}

// Register adds a service under the provided name. Registration order is
// start order.
func (h *ServiceHost) Register(name string, svc Service, opts ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("runtime: cannot register service %q after start", name)
	}
	if _, exists := h.entries[name]; exists {
		return fmt.Errorf("runtime: service %q already registered", name)
	}
	if svc == nil {
		return fmt.Errorf("runtime: service %q is nil", name)
	}

	reg := &registration{
		name:            name,
		service:         svc,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(reg)
	}

	h.entries[name] = reg
	h.order = append(h.order, name)
	return nil
}

// Start launches all registered services in registration order.
func (h *ServiceHost) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("runtime: service host already started")
	}
	h.started = true
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	started := make([]*registration, 0, len(h.order))
	for _, name := range h.order {
		reg := h.registration(name)
		if reg == nil {
			continue
		}
		if err := reg.service.Start(runCtx); err != nil {
			h.stopStarted(started)
			return fmt.Errorf("runtime: start service %q: %w", name, err)
		}
		reg.running = true
		h.watchErrors(reg)
		started = append(started, reg)
	}
	return nil
}

// Stop shuts all services down in reverse registration order, bounding each
// shutdown with its configured timeout. Safe to call more than once.
func (h *ServiceHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var stopErr error
	for i := len(h.order) - 1; i >= 0; i-- {
		reg := h.registration(h.order[i])
		if reg == nil || !reg.running {
			continue
		}
		if err := h.shutdownOne(ctx, reg); err != nil {
			stopErr = err
		}
	}
	return stopErr
}

// Errors returns a channel receiving fatal service errors.
func (h *ServiceHost) Errors() <-chan error {
	return h.errors
}

func (h *ServiceHost) shutdownOne(ctx context.Context, reg *registration) error {
	timeout := reg.shutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reg.running = false
	if err := reg.service.Shutdown(stopCtx); err != nil && err != context.Canceled {
		return fmt.Errorf("runtime: shutdown service %q: %w", reg.name, err)
	}
	return nil
}

func (h *ServiceHost) registration(name string) *registration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[name]
}

// watchErrors forwards fatal errors from services that expose an Errors
// channel. The first error wins; later ones are dropped.
func (h *ServiceHost) watchErrors(reg *registration) {
	observable, ok := reg.service.(interface{ Errors() <-chan error })
	if !ok || reg.errWatch {
		return
	}
	reg.errWatch = true

	go func(name string, ch <-chan error) {
		for err := range ch {
			if err == nil {
				continue
			}
			select {
			case h.errors <- fmt.Errorf("%s service error: %w", name, err):
			default:
			}
		}
	}(reg.name, observable.Errors())
}

func (h *ServiceHost) stopStarted(started []*registration) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	for i := len(started) - 1; i >= 0; i-- {
		// Ignore errors while rolling back a failed start.
		_ = h.shutdownOne(ctx, started[i])
	}
}
