package models

import "time"

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusCreated          RunStatus = "created"
	RunStatusPlanning         RunStatus = "planning"
	RunStatusApprovalRequired RunStatus = "approval_required"
	RunStatusApplying         RunStatus = "applying"
	RunStatusPaused           RunStatus = "paused"
	RunStatusCompleted        RunStatus = "completed"
	RunStatusFailed           RunStatus = "failed"
	RunStatusCancelled        RunStatus = "cancelled"
	RunStatusApplied          RunStatus = "applied"
)

// Terminal reports whether status is a sink state: no further
// STATUS_CHANGED to a non-terminal state may follow it.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusApplied:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the status graph from section 4.2: any key's
// value set is the set of statuses reachable directly from that key. Pause
// and resume are handled separately (see run.CanResumeTo) because the
// target of a resume depends on which state was paused, not a fixed edge.
var validTransitions = map[RunStatus]map[RunStatus]bool{
	RunStatusCreated:          {RunStatusPlanning: true, RunStatusPaused: true},
	RunStatusPlanning:         {RunStatusApplying: true, RunStatusPaused: true, RunStatusCancelled: true},
	RunStatusApplying: {
		RunStatusCompleted:        true,
		RunStatusFailed:           true,
		RunStatusCancelled:        true,
		RunStatusApprovalRequired: true,
		RunStatusPaused:           true,
	},
	RunStatusApprovalRequired: {RunStatusApplying: true, RunStatusCancelled: true, RunStatusPaused: true},
	RunStatusPaused:           {}, // resume target depends on the paused-from state; see CanResumeTo
	RunStatusCompleted:        {RunStatusApplied: true},
	RunStatusApplied:          {RunStatusApplied: true}, // re-apply is a no-op
	RunStatusFailed:           {},
	RunStatusCancelled:        {},
}

// CanTransition reports whether from -> to is a valid direct edge, honoring
// the "any active state -> paused" rule and terminal-state sinks.
func CanTransition(from, to RunStatus) bool {
	if from.Terminal() && !(from == RunStatusCompleted && to == RunStatusApplied) && !(from == RunStatusApplied && to == RunStatusApplied) {
		return false
	}
	if to == RunStatusPaused {
		return !from.Terminal() && from != RunStatusPaused
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Run is a single agent task with persisted event history.
type Run struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	AgentID     string    `json:"agent_id"`
	UserID      string    `json:"user_id"` // creator; "scheduler" for scheduler-originated runs
	JobID       string    `json:"job_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Status      RunStatus `json:"status"`
	// PausedFrom records the active status a paused run should resume to.
	PausedFrom string    `json:"paused_from,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateRunInput is the argument to the Run Manager's create operation.
type CreateRunInput struct {
	UserID      string
	AgentID     string
	Instruction string
	JobID       string
	SessionID   string
}
