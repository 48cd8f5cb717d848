package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Service is a unit the daemon brings up and tears down. Start must not
// block; long-running work belongs on goroutines the service owns and
// drains in Shutdown.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Lifecycle is a one-shot shutdown latch shared by the daemon run loop and
// anything that may trigger termination.
type Lifecycle struct {
	once sync.Once
	done chan struct{}
}

// NewLifecycle returns an armed latch.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Done is closed once Shutdown has been called.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Shutdown trips the latch. Subsequent calls are no-ops.
func (l *Lifecycle) Shutdown() {
	l.once.Do(func() { close(l.done) })
}

// WritePIDFile records pid at path, creating parent directories as needed.
// The file is only readable by the owner.
func WritePIDFile(path string, pid int) error {
	if path == "" {
		return errors.New("runtime: pid file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("runtime: create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("runtime: write pid file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes the pid file, tolerating its absence.
func RemovePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
