// Package approval implements the Approval Gate (spec.md 4.3): it decides,
// per the configured Mode, whether a tool call must pause for a human
// allow/deny decision, and blocks the caller on a one-shot channel rather
// than the corpus's 100ms poll loop (spec.md Design Notes section 9).
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurana/undoable-sub002/pkg/models"
)

// Mode controls which tool categories are gated.
type Mode string

const (
	ModeOff    Mode = "off"
	ModeMutate Mode = "mutate"
	ModeAlways Mode = "always"
)

// RequiresApproval reports whether a tool in category needs gating under
// mode. "read" never requires approval, in any mode (spec.md 4.3).
func RequiresApproval(mode Mode, category models.ToolCategory) bool {
	if category == models.ToolCategoryRead {
		return false
	}
	switch mode {
	case ModeOff:
		return false
	case ModeAlways:
		return true
	case ModeMutate:
		switch category {
		case models.ToolCategoryMutate, models.ToolCategoryExec, models.ToolCategoryNetwork:
			return true
		default:
			return false
		}
	default:
		return false
	}
}

type waiter struct {
	approval models.PendingApproval
	resultCh chan bool // true = allow, false = deny
	once     sync.Once
}

func (w *waiter) resolve(allow bool) {
	w.once.Do(func() {
		w.resultCh <- allow
		close(w.resultCh)
	})
}

// Gate holds pending approvals and resolves them by id.
type Gate struct {
	mode Mode

	mu      sync.Mutex
	waiters map[string]*waiter
}

// New constructs a Gate in the given mode.
func New(mode Mode) *Gate {
	return &Gate{mode: mode, waiters: make(map[string]*waiter)}
}

// Mode returns the gate's current mode.
func (g *Gate) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// SetMode updates the gate's mode; it does not affect approvals already
// pending.
func (g *Gate) SetMode(mode Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = mode
}

// Arm creates a pending approval for toolName/description if category
// requires gating under the current mode. It returns (pending, true) when
// the caller must wait via Wait; (zero, false) when the call may proceed
// immediately.
func (g *Gate) Arm(toolName, description string, category models.ToolCategory) (models.PendingApproval, bool) {
	g.mu.Lock()
	mode := g.mode
	g.mu.Unlock()

	if !RequiresApproval(mode, category) {
		return models.PendingApproval{}, false
	}

	pending := models.PendingApproval{
		ID:          uuid.NewString(),
		ToolName:    toolName,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	g.mu.Lock()
	g.waiters[pending.ID] = &waiter{approval: pending, resultCh: make(chan bool, 1)}
	g.mu.Unlock()

	return pending, true
}

// Wait blocks until id is resolved, the context is done, or deadline
// elapses, whichever comes first. Per spec.md 4.3, absence of resolution
// within the deadline returns denied by default.
func (g *Gate) Wait(ctx context.Context, id string, deadline time.Duration) (allow bool, err error) {
	g.mu.Lock()
	w, ok := g.waiters[id]
	g.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("approval: unknown pending approval %q", id)
	}

	var timeoutCh <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case allow, ok := <-w.resultCh:
		if !ok {
			return false, nil
		}
		g.cleanup(id)
		return allow, nil
	case <-timeoutCh:
		g.cleanup(id)
		return false, nil
	case <-ctx.Done():
		g.cleanup(id)
		return false, ctx.Err()
	}
}

// Resolve satisfies a pending approval's waiter(s) with allow/deny. It is
// idempotent: resolving an already-resolved or unknown id is a no-op error.
func (g *Gate) Resolve(id string, allow bool) error {
	g.mu.Lock()
	w, ok := g.waiters[id]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("approval: unknown pending approval %q", id)
	}
	w.resolve(allow)
	return nil
}

// ListPending returns every approval awaiting resolution.
func (g *Gate) ListPending() []models.PendingApproval {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.PendingApproval, 0, len(g.waiters))
	for _, w := range g.waiters {
		out = append(out, w.approval)
	}
	return out
}

func (g *Gate) cleanup(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.waiters, id)
}
