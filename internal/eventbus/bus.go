// Package eventbus provides the in-process publish/subscribe fan-out of
// typed run events described in spec.md section 4.1. Dispatch is a flat,
// synchronous loop over matched subscribers (see Publish); the "never
// blocks on a slow subscriber" requirement is therefore a contract on
// Handler itself, not a property Bus enforces for you — "slow subscribers
// must drop or buffer internally" per spec.md 4.1.
package eventbus

import (
	"sync"

	"github.com/neurana/undoable-sub002/pkg/models"
)

// Handler receives a single RunEvent. Publish calls every matched Handler
// inline and in order; a Handler that does I/O or might be slow MUST hand
// the event off to its own goroutine or buffered channel (e.g. a two-lane
// high/low-priority buffer for droppable vs. non-droppable event types)
// rather than block inside the callback, or it will stall every other
// subscriber's delivery for that Publish call.
type Handler func(models.RunEvent)

// subscription pairs a handler with the run id it's filtered to ("" means
// wildcard, matching every run).
type subscription struct {
	id      uint64
	runID   string
	handler Handler
}

// Bus is the process-wide event bus. One Bus is shared by every active run;
// subscribers register for a specific run id or for every run via "*".
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[uint64]subscription),
	}
}

// Publish delivers event to every subscriber registered for its RunID and
// to every wildcard subscriber. Delivery order matches subscription order
// for a given publish call. A handler panic is recovered and dropped so one
// bad subscriber never takes down the publisher or any other subscriber.
// Publish itself does no buffering: a Handler that blocks blocks this call,
// and every subsequent matched handler, until it returns. See the Handler
// doc comment.
func (b *Bus) Publish(event models.RunEvent) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.runID == "" || sub.runID == event.RunID {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event models.RunEvent) {
	defer func() {
		_ = recover()
	}()
	h(event)
}

// Subscribe registers handler for events belonging to runID. Pass "" to
// subscribe to every run (equivalent to OnAll). Returns an unsubscribe
// function.
func (b *Bus) Subscribe(runID string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{id: id, runID: runID, handler: handler}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// OnAll registers a privileged sink that observes every event regardless of
// run id. The Run Manager uses this to persist every event durably.
func (b *Bus) OnAll(handler Handler) (unsubscribe func()) {
	return b.Subscribe("", handler)
}

// SubscriberCount reports the number of live subscriptions, for tests and
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
