package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ToolResult is the outcome of a single exec tool invocation, handed back to
// the toolregistry adapter for marshaling into the registry's raw-JSON
// ExecuteFunc contract.
type ToolResult struct {
	Content string
	IsError bool
}

// ExecTool runs shell commands.
type ExecTool struct {
	name    string
	manager *Manager
}

// NewExecTool creates an exec tool with the given name.
func NewExecTool(name string, manager *Manager) *ExecTool {
	if strings.TrimSpace(name) == "" {
		name = "exec"
	}
	return &ExecTool{name: name, manager: manager}
}

func (t *ExecTool) Name() string { return t.name }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace (supports optional background execution)."
}

func (t *ExecTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory (relative to workspace).",
			},
			"env": map[string]interface{}{
				"type":        "object",
				"description": "Environment overrides (string values).",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Stdin content to pass to the command.",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (0 = no timeout).",
				"minimum":     0,
			},
			"background": map[string]interface{}{
				"type":        "boolean",
				"description": "Run in background and return a process id.",
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ExecTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if t.manager == nil {
		return toolError("exec manager unavailable"), nil
	}
	var input struct {
		Command        string            `json:"command"`
		Cwd            string            `json:"cwd"`
		Env            map[string]string `json:"env"`
		Input          string            `json:"input"`
		TimeoutSeconds int               `json:"timeout_seconds"`
		Background     bool              `json:"background"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return toolError("command is required"), nil
	}

	timeout := time.Duration(input.TimeoutSeconds) * time.Second

	if input.Background {
		proc, err := t.manager.startBackground(ctx, command, input.Cwd, input.Env, input.Input, timeout)
		if err != nil {
			return toolError(err.Error()), nil
		}
		payload, _ := json.MarshalIndent(map[string]interface{}{
			"status":     "running",
			"process_id": proc.id,
		}, "", "  ")
		return &ToolResult{Content: string(payload)}, nil
	}

	result, err := t.manager.runSync(ctx, command, input.Cwd, input.Env, input.Input, timeout)
	if err != nil {
		return toolError(err.Error()), nil
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &ToolResult{Content: string(payload)}, nil
}

// ProcessTool inspects and manages background exec processes, reading and
// acting through the manager's execsession.Registry so it sees sessions
// re-adopted after a daemon restart (recovered=true) in addition to the
// ones it spawned this boot.
type ProcessTool struct {
	manager *Manager
}

// NewProcessTool creates a process tool.
func NewProcessTool(manager *Manager) *ProcessTool {
	return &ProcessTool{manager: manager}
}

func (t *ProcessTool) Name() string { return "process" }

func (t *ProcessTool) Description() string {
	return "Manage background exec processes (list, status, log, write, kill, remove)."
}

func (t *ProcessTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "Action: list, status, log, write, kill, remove.",
			},
			"process_id": map[string]interface{}{
				"type":        "string",
				"description": "Process id for actions that target a process.",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Input for write action.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ProcessTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	_ = ctx
	if t.manager == nil {
		return toolError("process manager unavailable"), nil
	}
	var input struct {
		Action    string `json:"action"`
		ProcessID string `json:"process_id"`
		Input     string `json:"input"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "" {
		return toolError("action is required"), nil
	}

	switch action {
	case "list":
		running := t.manager.sessions.ListRunning()
		finished := t.manager.sessions.ListFinished()
		infos := make([]map[string]interface{}, 0, len(running)+len(finished))
		for _, s := range running {
			infos = append(infos, map[string]interface{}{
				"process_id": s.ID, "command": s.Command, "status": "running",
				"started_at": s.StartedAt, "recovered": s.Recovered, "backgrounded": s.Backgrounded,
			})
		}
		for _, f := range finished {
			infos = append(infos, map[string]interface{}{
				"process_id": f.ID, "command": f.Command, "status": string(f.Status),
				"started_at": f.StartedAt, "ended_at": f.EndedAt, "recovered": f.Recovered,
			})
		}
		payload, _ := json.MarshalIndent(map[string]interface{}{"processes": infos}, "", "  ")
		return &ToolResult{Content: string(payload)}, nil
	case "status", "log", "write", "kill", "remove":
		id := strings.TrimSpace(input.ProcessID)
		if id == "" {
			return toolError("process_id is required"), nil
		}
		switch action {
		case "status":
			if s, ok := t.manager.sessions.GetRunning(id); ok {
				payload, _ := json.MarshalIndent(map[string]interface{}{
					"process_id": s.ID, "command": s.Command, "status": "running",
					"started_at": s.StartedAt, "recovered": s.Recovered,
				}, "", "  ")
				return &ToolResult{Content: string(payload)}, nil
			}
			for _, f := range t.manager.sessions.ListFinished() {
				if f.ID == id {
					payload, _ := json.MarshalIndent(f, "", "  ")
					return &ToolResult{Content: string(payload)}, nil
				}
			}
			return toolError("process not found"), nil
		case "log":
			if s, ok := t.manager.sessions.GetRunning(id); ok {
				payload, _ := json.MarshalIndent(map[string]interface{}{
					"aggregated": s.Aggregated(), "tail": s.Tail(), "truncated": s.Truncated(), "status": "running",
				}, "", "  ")
				return &ToolResult{Content: string(payload)}, nil
			}
			for _, f := range t.manager.sessions.ListFinished() {
				if f.ID == id {
					payload, _ := json.MarshalIndent(map[string]interface{}{
						"aggregated": f.Aggregated, "tail": f.Tail, "truncated": f.Truncated, "status": string(f.Status),
					}, "", "  ")
					return &ToolResult{Content: string(payload)}, nil
				}
			}
			return toolError("process not found"), nil
		case "write":
			if input.Input == "" {
				return toolError("input is required"), nil
			}
			if err := t.manager.sessions.WriteStdin(id, []byte(input.Input)); err != nil {
				return toolError(fmt.Sprintf("write stdin: %v", err)), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{"status": "written"}, "", "  ")
			return &ToolResult{Content: string(payload)}, nil
		case "kill":
			if err := t.manager.sessions.KillSession(id, 5*time.Second); err != nil {
				return toolError(fmt.Sprintf("kill process: %v", err)), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{"status": "killed"}, "", "  ")
			return &ToolResult{Content: string(payload)}, nil
		case "remove":
			if _, stillRunning := t.manager.sessions.GetRunning(id); stillRunning {
				return toolError("process still running"), nil
			}
			t.manager.remove(id)
			if !t.manager.sessions.Forget(id) {
				return toolError("process not found"), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{"status": "removed"}, "", "  ")
			return &ToolResult{Content: string(payload)}, nil
		}
	}
	return toolError("unsupported action"), nil
}

func toolError(message string) *ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return &ToolResult{Content: string(payload), IsError: true}
}
