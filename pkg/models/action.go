package models

import "time"

// ToolCategory classifies a tool's side-effect surface; it governs both
// approval-gating and undo eligibility.
type ToolCategory string

const (
	ToolCategoryRead    ToolCategory = "read"
	ToolCategoryMutate  ToolCategory = "mutate"
	ToolCategoryExec    ToolCategory = "exec"
	ToolCategoryNetwork ToolCategory = "network"
	ToolCategorySystem  ToolCategory = "system"
)

// ApprovalState records what the Approval Gate decided for an Action Record.
type ApprovalState string

const (
	ApprovalNone        ApprovalState = "none"
	ApprovalGranted     ApprovalState = "granted"
	ApprovalDenied      ApprovalState = "denied"
	ApprovalNotRequired ApprovalState = "not_required"
)

// ActionRecord is a single tool invocation in the Action Log. Records are
// append-only; undoability is decided at record time and never revisited.
type ActionRecord struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id,omitempty"`
	ToolName    string        `json:"tool_name"`
	Category    ToolCategory  `json:"category"`
	Args        string        `json:"args"` // raw JSON
	Approval    ApprovalState `json:"approval"`
	Undoable    bool          `json:"undoable"`
	BeforeState []byte        `json:"before_state,omitempty"`
	AfterState  []byte        `json:"after_state,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	DurationMs  int64         `json:"duration_ms"`
	Error       string        `json:"error,omitempty"`

	// Undone/Redone track this record's position in the Undo Service's
	// stacks, so a restarted daemon can rebuild stack membership from the
	// log alone.
	Undone bool `json:"undone,omitempty"`
}
