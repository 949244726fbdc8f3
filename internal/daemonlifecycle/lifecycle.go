// Package daemonlifecycle runs registered shutdown handlers in registration
// order, each best-effort, on daemon shutdown (spec.md section 5).
// Grounded on internal/channels.Registry.StopAll's
// iteration-with-continue-on-error pattern, generalized beyond channels to
// every subsystem the daemon owns (scheduler, channel manager, exec
// registry, HTTP listener).
package daemonlifecycle

import (
	"context"
	"fmt"
	"sync"
)

// Handler is a single shutdown step. It should return promptly once ctx is
// done, even if it cannot finish cleanly.
type Handler func(ctx context.Context) error

// Registry holds shutdown handlers in registration order.
type Registry struct {
	mu       sync.Mutex
	handlers []namedHandler
}

type namedHandler struct {
	name string
	fn   Handler
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register appends a named shutdown handler.
func (r *Registry) Register(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, namedHandler{name: name, fn: fn})
}

// Shutdown runs every handler in registration order, best-effort: a failing
// handler is logged via onError (if non-nil) and does not stop the rest
// from running. ctx bounds the total grace period; handlers that ignore
// ctx may still run past it, but Shutdown itself returns once ctx expires
// if handlers are still pending, assuming the caller wants its deadline
// honored even for uncooperative handlers.
func (r *Registry) Shutdown(ctx context.Context, onError func(name string, err error)) {
	r.mu.Lock()
	handlers := append([]namedHandler(nil), r.handlers...)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, h := range handlers {
			if err := h.fn(ctx); err != nil && onError != nil {
				onError(h.name, err)
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if onError != nil {
			onError("shutdown", fmt.Errorf("grace deadline exceeded with handlers still running: %w", ctx.Err()))
		}
	}
}
