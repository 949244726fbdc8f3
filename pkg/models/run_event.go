package models

import "time"

// RunEventType identifies the kind of a RunEvent. Adapted from the agent
// package's AgentEvent discriminated-union shape (version/type/sequence plus
// one non-nil payload pointer per type), retargeted to the run-level event
// vocabulary this daemon's executor, scheduler, and channel bridge emit.
type RunEventType string

const (
	RunEventStatusChanged       RunEventType = "STATUS_CHANGED"
	RunEventActionProgress      RunEventType = "ACTION_PROGRESS"
	RunEventLLMToken            RunEventType = "LLM_TOKEN"
	RunEventLLMThinking         RunEventType = "LLM_THINKING"
	RunEventToolCall            RunEventType = "TOOL_CALL"
	RunEventToolResult          RunEventType = "TOOL_RESULT"
	RunEventToolApprovalRequest RunEventType = "TOOL_APPROVAL_REQUESTED"
	RunEventRunCompleted        RunEventType = "RUN_COMPLETED"
	RunEventRunFailed           RunEventType = "RUN_FAILED"
	RunEventRunWarning          RunEventType = "RUN_WARNING"
)

// RunEvent is a single entry in a run's append-only, totally-ordered event
// log. Exactly one payload field is populated for a given Type.
type RunEvent struct {
	RunID    string       `json:"run_id"`
	Sequence uint64       `json:"seq"`
	Type     RunEventType `json:"type"`
	Time     time.Time    `json:"ts"`

	StatusChanged *StatusChangedPayload `json:"status_changed,omitempty"`
	Progress      *ActionProgressPayload `json:"progress,omitempty"`
	Token         *LLMTokenPayload       `json:"token,omitempty"`
	Thinking      *LLMTokenPayload       `json:"thinking,omitempty"`
	ToolCall      *ToolCallPayload       `json:"tool_call,omitempty"`
	ToolResult    *ToolResultPayload     `json:"tool_result,omitempty"`
	Approval      *ApprovalRequestedPayload `json:"approval,omitempty"`
	Completed     *RunCompletedPayload   `json:"completed,omitempty"`
	Failed        *RunFailedPayload      `json:"failed,omitempty"`
	Warning       *RunWarningPayload     `json:"warning,omitempty"`
}

// StatusChangedPayload reports a run's status transition.
type StatusChangedPayload struct {
	From   RunStatus `json:"from"`
	To     RunStatus `json:"to"`
	Reason string    `json:"reason,omitempty"`
}

// ActionProgressPayload reports loop progress.
type ActionProgressPayload struct {
	Iteration     int `json:"iteration"`
	MaxIterations int `json:"max_iterations"`
}

// LLMTokenPayload carries a streamed content delta (used for both
// LLM_TOKEN and LLM_THINKING events).
type LLMTokenPayload struct {
	Delta string `json:"delta"`
}

// ToolCallPayload describes a dispatched tool call.
type ToolCallPayload struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Args      string `json:"args"` // raw JSON
	Iteration int    `json:"iteration"`
}

// ToolResultPayload describes a tool call's outcome.
type ToolResultPayload struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Result  string `json:"result,omitempty"` // raw JSON
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ApprovalRequestedPayload announces a pending approval tied to a tool call.
type ApprovalRequestedPayload struct {
	ApprovalID string `json:"approval_id"`
	ToolName   string `json:"tool_name"`
}

// RunCompletedPayload carries the final assistant content.
type RunCompletedPayload struct {
	Content string `json:"content"`
}

// RunFailedPayload carries the terminal error.
type RunFailedPayload struct {
	Error string `json:"error"`
}

// RunWarningPayload carries a non-fatal warning, e.g. iteration exhaustion.
type RunWarningPayload struct {
	Message string `json:"message"`
}
