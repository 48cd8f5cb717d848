package transport

import "time"

// Backoff defaults shared by both socket clients.
const (
	DefaultBackoffBase   = 5 * time.Second
	DefaultBackoffCap    = 30 * time.Second
	DefaultMaxAttempts   = 10
	DefaultBackoffFactor = 2
)

// BackoffPolicy computes reconnection delays. The delay doubles per failed
// attempt from Base up to Cap; after MaxAttempts consecutive failures the
// client gives up permanently.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns the standard reconnection policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:        DefaultBackoffBase,
		Cap:         DefaultBackoffCap,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns the wait before reconnection attempt n (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= DefaultBackoffFactor
		if delay >= p.Cap {
			return p.Cap
		}
	}
	if delay > p.Cap {
		return p.Cap
	}
	return delay
}

// Exhausted reports whether attempt n exceeds the retry budget.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
