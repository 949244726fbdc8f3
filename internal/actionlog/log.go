// Package actionlog implements the Action Log (spec.md 4.3): an append-only
// record of every tool invocation, two-phase (begin/finish) so a record
// exists even if the tool never returns, guarded by a single mutex-protected
// append path (grounded on internal/audit.Logger's buffered-writer
// discipline, narrowed to the spec's ActionRecord shape).
package actionlog

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurana/undoable-sub002/pkg/models"
)

// Filter narrows List results; zero-value fields are wildcards.
type Filter struct {
	ToolName string
	Category models.ToolCategory
}

// Log holds every Action Record for the life of the daemon.
type Log struct {
	mu      sync.Mutex
	records []*models.ActionRecord
	byID    map[string]*models.ActionRecord
	writer  io.Writer // optional durable append-only sink
}

// New constructs a Log. writer, if non-nil, receives one JSON line per
// finished record (e.g. an append-mode file) for durability.
func New(writer io.Writer) *Log {
	return &Log{
		byID:   make(map[string]*models.ActionRecord),
		writer: writer,
	}
}

// Begin opens a record for a tool invocation about to run. The record is
// not visible to List/GetByID until Finish completes it.
func (l *Log) Begin(runID, toolName string, args json.RawMessage, category models.ToolCategory) *models.ActionRecord {
	rec := &models.ActionRecord{
		ID:        uuid.NewString(),
		RunID:     runID,
		ToolName:  toolName,
		Category:  category,
		Args:      string(args),
		Approval:  models.ApprovalNotRequired,
		StartedAt: time.Now().UTC(),
	}
	return rec
}

// Finish completes rec with its outcome and appends it to the durable log.
// undoability is decided here, once, and never revisited.
func (l *Log) Finish(rec *models.ActionRecord, approval models.ApprovalState, undoable bool, before, after []byte, execErr error) *models.ActionRecord {
	rec.Approval = approval
	rec.Undoable = undoable
	rec.BeforeState = before
	rec.AfterState = after
	rec.DurationMs = time.Since(rec.StartedAt).Milliseconds()
	if execErr != nil {
		rec.Error = execErr.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	l.byID[rec.ID] = rec
	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(rec)
	}
	return rec
}

// List returns records matching filter, in append order.
func (l *Log) List(filter Filter) []*models.ActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*models.ActionRecord, 0, len(l.records))
	for _, r := range l.records {
		if filter.ToolName != "" && r.ToolName != filter.ToolName {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		out = append(out, r)
	}
	return out
}

// GetByID returns a single record by id.
func (l *Log) GetByID(id string) (*models.ActionRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[id]
	return r, ok
}

// MarkUndone flips a record's Undone flag, so a restarted daemon can rebuild
// Undo Service stack membership from the log alone.
func (l *Log) MarkUndone(id string, undone bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[id]
	if !ok {
		return false
	}
	r.Undone = undone
	return true
}
