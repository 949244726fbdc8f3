// Package undo implements the Undo Service (spec.md 4.3): two LIFO stacks
// over recorded Action Log entries, reversed or replayed through a
// per-tool-name Applier. Concurrency is serialized per action id via a
// ref-counted mutex, the same shape internal/agent's session lock uses for
// session ids (spec.md section 5).
package undo

import (
	"context"
	"fmt"
	"sync"

	"github.com/neurana/undoable-sub002/internal/actionlog"
	"github.com/neurana/undoable-sub002/pkg/models"
)

// Applier reverses or replays a single tool's recorded effect. Tools that
// cannot be reversed (e.g. channel sends) should not register an Applier;
// Undo on such an action returns ErrNotUndoable.
type Applier interface {
	Undo(ctx context.Context, rec *models.ActionRecord) error
	Redo(ctx context.Context, rec *models.ActionRecord) error
}

// ErrNotUndoable is returned when an action has no registered Applier or
// was recorded with Undoable=false.
type ErrNotUndoable struct{ ToolName string }

func (e ErrNotUndoable) Error() string {
	return fmt.Sprintf("undo: %q is not undoable", e.ToolName)
}

type actionLock struct {
	mu   sync.Mutex
	refs int
}

// Service owns the undoable/redoable stacks and dispatches to appliers.
type Service struct {
	log      *actionlog.Log
	appliers map[string]Applier

	mu       sync.Mutex
	undoable []string // stack: push/pop at the end
	redoable []string

	locksMu sync.Mutex
	locks   map[string]*actionLock
}

// New constructs a Service backed by log.
func New(log *actionlog.Log) *Service {
	return &Service{
		log:      log,
		appliers: make(map[string]Applier),
		locks:    make(map[string]*actionLock),
	}
}

// RegisterApplier wires a tool name to its undo/redo implementation.
func (s *Service) RegisterApplier(toolName string, a Applier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliers[toolName] = a
}

// RecordUndoable pushes a just-finished, undoable action onto the undo
// stack. Call this after actionlog.Log.Finish for any record with
// Undoable=true.
func (s *Service) RecordUndoable(actionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undoable = append(s.undoable, actionID)
}

// UndoAction reverses a single action by id, regardless of its stack
// position, and moves it onto the redo stack on success.
func (s *Service) UndoAction(ctx context.Context, id string) error {
	unlock := s.lockAction(id)
	defer unlock()

	rec, ok := s.log.GetByID(id)
	if !ok {
		return fmt.Errorf("undo: unknown action %q", id)
	}
	if rec.Undone {
		return nil
	}
	if !rec.Undoable {
		return ErrNotUndoable{ToolName: rec.ToolName}
	}

	s.mu.Lock()
	applier, ok := s.appliers[rec.ToolName]
	s.mu.Unlock()
	if !ok {
		return ErrNotUndoable{ToolName: rec.ToolName}
	}

	if err := applier.Undo(ctx, rec); err != nil {
		return err
	}

	s.log.MarkUndone(id, true)
	s.mu.Lock()
	s.removeLocked(&s.undoable, id)
	s.redoable = append(s.redoable, id)
	s.mu.Unlock()
	return nil
}

// UndoLastN pops up to n ids from the top of the undo stack (most recent
// first) and reverses each in turn, stopping at the first error.
func (s *Service) UndoLastN(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		s.mu.Lock()
		if len(s.undoable) == 0 {
			s.mu.Unlock()
			return nil
		}
		id := s.undoable[len(s.undoable)-1]
		s.mu.Unlock()

		if err := s.UndoAction(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UndoAll drains the entire undo stack, most-recent first.
func (s *Service) UndoAll(ctx context.Context) error {
	for {
		s.mu.Lock()
		empty := len(s.undoable) == 0
		s.mu.Unlock()
		if empty {
			return nil
		}
		if err := s.UndoLastN(ctx, 1); err != nil {
			return err
		}
	}
}

// RedoAction replays a previously undone action by id and moves it back
// onto the undo stack on success.
func (s *Service) RedoAction(ctx context.Context, id string) error {
	unlock := s.lockAction(id)
	defer unlock()

	rec, ok := s.log.GetByID(id)
	if !ok {
		return fmt.Errorf("undo: unknown action %q", id)
	}
	if !rec.Undone {
		return nil
	}

	s.mu.Lock()
	applier, ok := s.appliers[rec.ToolName]
	s.mu.Unlock()
	if !ok {
		return ErrNotUndoable{ToolName: rec.ToolName}
	}

	if err := applier.Redo(ctx, rec); err != nil {
		return err
	}

	s.log.MarkUndone(id, false)
	s.mu.Lock()
	s.removeLocked(&s.redoable, id)
	s.undoable = append(s.undoable, id)
	s.mu.Unlock()
	return nil
}

// RedoLastN mirrors UndoLastN over the redo stack.
func (s *Service) RedoLastN(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		s.mu.Lock()
		if len(s.redoable) == 0 {
			s.mu.Unlock()
			return nil
		}
		id := s.redoable[len(s.redoable)-1]
		s.mu.Unlock()

		if err := s.RedoAction(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RedoAll mirrors UndoAll over the redo stack.
func (s *Service) RedoAll(ctx context.Context) error {
	for {
		s.mu.Lock()
		empty := len(s.redoable) == 0
		s.mu.Unlock()
		if empty {
			return nil
		}
		if err := s.RedoLastN(ctx, 1); err != nil {
			return err
		}
	}
}

// removeLocked deletes the first occurrence of id from stack. Must be
// called with s.mu held.
func (s *Service) removeLocked(stack *[]string, id string) {
	for i, v := range *stack {
		if v == id {
			*stack = append((*stack)[:i], (*stack)[i+1:]...)
			return
		}
	}
}

func (s *Service) lockAction(id string) func() {
	s.locksMu.Lock()
	l := s.locks[id]
	if l == nil {
		l = &actionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs <= 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}
