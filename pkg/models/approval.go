package models

import "time"

// PendingApproval is a gated tool call awaiting a human allow/deny
// decision. Waiters block on its resolution or a timeout (spec.md 4.3).
type PendingApproval struct {
	ID          string    `json:"id"`
	ToolName    string    `json:"tool_name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
