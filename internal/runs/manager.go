// Package runs implements the Run Manager: run records, status transitions,
// and the per-run event log persisted to disk for replay (spec.md 4.2).
package runs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/neurana/undoable-sub002/internal/eventbus"
	"github.com/neurana/undoable-sub002/pkg/models"
)

// ErrNotFound is returned by GetByID/UpdateStatus for an unknown run id.
type ErrNotFound struct{ ID string }

func (e ErrNotFound) Error() string { return fmt.Sprintf("run not found: %s", e.ID) }

// ErrInvalidTransition is returned by UpdateStatus when from->to is not a
// legal edge in the status graph.
type ErrInvalidTransition struct {
	From, To models.RunStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid run transition: %s -> %s", e.From, e.To)
}

// runEntry bundles a Run with its sequence counter and event log, all
// guarded by the manager's per-run lock (single writer per run, per
// spec.md section 5).
type runEntry struct {
	mu       sync.Mutex
	run      models.Run
	sequence uint64
	events   []models.RunEvent
}

// Manager owns every Run and its event log for the life of the daemon
// process.
type Manager struct {
	bus   *eventbus.Bus
	store Store

	mu      sync.RWMutex
	entries map[string]*runEntry
}

// New constructs a Manager. store may be nil, in which case runs are kept
// in memory only (used by tests).
func New(bus *eventbus.Bus, store Store) *Manager {
	return &Manager{
		bus:     bus,
		store:   store,
		entries: make(map[string]*runEntry),
	}
}

// Create assigns an id and initial status "created", persists the run, and
// returns a copy of the record.
func (m *Manager) Create(input models.CreateRunInput) (models.Run, error) {
	now := time.Now().UTC()
	run := models.Run{
		ID:          uuid.NewString(),
		Instruction: input.Instruction,
		AgentID:     input.AgentID,
		UserID:      input.UserID,
		JobID:       input.JobID,
		SessionID:   input.SessionID,
		Status:      models.RunStatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	entry := &runEntry{run: run}
	m.mu.Lock()
	m.entries[run.ID] = entry
	m.mu.Unlock()

	if err := m.persist(entry); err != nil {
		return models.Run{}, err
	}
	return run, nil
}

// GetByID returns a copy of the run record.
func (m *Manager) GetByID(id string) (models.Run, error) {
	entry, ok := m.lookup(id)
	if !ok {
		return models.Run{}, ErrNotFound{ID: id}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.run, nil
}

// List returns a copy of every known run, ordered by creation time.
func (m *Manager) List() []models.Run {
	m.mu.RLock()
	entries := make([]*runEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]models.Run, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.run)
		e.mu.Unlock()
	}
	return out
}

// ListByJobID returns every run created by the given scheduler job.
func (m *Manager) ListByJobID(jobID string) []models.Run {
	all := m.List()
	out := make([]models.Run, 0)
	for _, r := range all {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out
}

// Events returns a copy of the run's persisted event log, for SSE replay on
// reconnect.
func (m *Manager) Events(id string) ([]models.RunEvent, error) {
	entry, ok := m.lookup(id)
	if !ok {
		return nil, ErrNotFound{ID: id}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]models.RunEvent, len(entry.events))
	copy(out, entry.events)
	return out, nil
}

// UpdateStatus validates from->to against the status graph, mutates the
// run, persists it, and publishes a STATUS_CHANGED event. Pausing is
// special-cased: PausedFrom records the active state to resume into.
func (m *Manager) UpdateStatus(id string, newStatus models.RunStatus, reason string) (models.Run, error) {
	entry, ok := m.lookup(id)
	if !ok {
		return models.Run{}, ErrNotFound{ID: id}
	}

	entry.mu.Lock()
	from := entry.run.Status
	if newStatus == from {
		entry.mu.Unlock()
		return entry.run, nil
	}
	var to models.RunStatus
	if newStatus == models.RunStatusPaused {
		if !models.CanTransition(from, models.RunStatusPaused) {
			entry.mu.Unlock()
			return models.Run{}, ErrInvalidTransition{From: from, To: newStatus}
		}
		entry.run.PausedFrom = string(from)
		to = models.RunStatusPaused
	} else if from == models.RunStatusPaused {
		// Resuming: any target is accepted as long as it matches the
		// recorded paused-from state, or is a terminal state reachable
		// from it (cancel-while-paused).
		pausedFrom := models.RunStatus(entry.run.PausedFrom)
		if newStatus != pausedFrom && !models.CanTransition(pausedFrom, newStatus) {
			entry.mu.Unlock()
			return models.Run{}, ErrInvalidTransition{From: from, To: newStatus}
		}
		entry.run.PausedFrom = ""
		to = newStatus
	} else {
		if !models.CanTransition(from, newStatus) {
			entry.mu.Unlock()
			return models.Run{}, ErrInvalidTransition{From: from, To: newStatus}
		}
		to = newStatus
	}

	entry.run.Status = to
	entry.run.UpdatedAt = time.Now().UTC()
	run := entry.run
	seq := atomic.AddUint64(&entry.sequence, 1)
	event := models.RunEvent{
		RunID:    id,
		Sequence: seq,
		Type:     models.RunEventStatusChanged,
		Time:     run.UpdatedAt,
		StatusChanged: &models.StatusChangedPayload{
			From:   from,
			To:     to,
			Reason: reason,
		},
	}
	entry.events = append(entry.events, event)
	entry.mu.Unlock()

	if err := m.persist(entry); err != nil {
		return models.Run{}, err
	}
	if m.bus != nil {
		m.bus.Publish(event)
	}
	return run, nil
}

// AppendEvent assigns the next sequence number to event, appends it to the
// run's durable log, and publishes it on the bus. It never mutates the
// run's Status field directly — use UpdateStatus for STATUS_CHANGED.
func (m *Manager) AppendEvent(runID string, event models.RunEvent) (models.RunEvent, error) {
	entry, ok := m.lookup(runID)
	if !ok {
		return models.RunEvent{}, ErrNotFound{ID: runID}
	}

	entry.mu.Lock()
	event.RunID = runID
	event.Sequence = atomic.AddUint64(&entry.sequence, 1)
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	entry.events = append(entry.events, event)
	entry.mu.Unlock()

	if err := m.persist(entry); err != nil {
		return models.RunEvent{}, err
	}
	if m.bus != nil {
		m.bus.Publish(event)
	}
	return event, nil
}

func (m *Manager) lookup(id string) (*runEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *Manager) persist(entry *runEntry) error {
	if m.store == nil {
		return nil
	}
	entry.mu.Lock()
	run := entry.run
	events := make([]models.RunEvent, len(entry.events))
	copy(events, entry.events)
	entry.mu.Unlock()
	return m.store.Save(run, events)
}

// Recover loads every persisted run from the store, restores it in memory,
// and marks any run still in a non-terminal status "failed" with reason
// "orphaned on restart" (spec.md 4.2), since its executor goroutine did not
// survive the restart.
func (m *Manager) Recover() error {
	if m.store == nil {
		return nil
	}
	records, err := m.store.LoadAll()
	if err != nil {
		return err
	}

	for _, rec := range records {
		entry := &runEntry{run: rec.Run, events: rec.Events}
		if len(rec.Events) > 0 {
			entry.sequence = rec.Events[len(rec.Events)-1].Sequence
		}
		m.mu.Lock()
		m.entries[rec.Run.ID] = entry
		m.mu.Unlock()

		if !rec.Run.Status.Terminal() {
			if _, err := m.UpdateStatus(rec.Run.ID, models.RunStatusFailed, "orphaned on restart"); err != nil {
				return err
			}
		}
	}
	return nil
}
