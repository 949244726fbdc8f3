package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/neurana/undoable-sub002/internal/execsession"
)

func TestExecToolRunsCommand(t *testing.T) {
	mgr := NewManager(t.TempDir())
	tool := NewExecTool("exec", mgr)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "echo hello",
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Fatalf("expected stdout in result: %s", result.Content)
	}
}

func TestProcessToolLifecycle(t *testing.T) {
	mgr := NewManager(t.TempDir())
	execTool := NewExecTool("exec", mgr)
	procTool := NewProcessTool(mgr)

	params, _ := json.Marshal(map[string]interface{}{
		"command":    "echo background",
		"background": true,
	})
	result, err := execTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success: %s", result.Content)
	}

	var payload struct {
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if payload.ProcessID == "" {
		t.Fatalf("expected process_id")
	}

	time.Sleep(50 * time.Millisecond)
	statusParams, _ := json.Marshal(map[string]interface{}{
		"action":     "status",
		"process_id": payload.ProcessID,
	})
	statusResult, err := procTool.Execute(context.Background(), statusParams)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if statusResult.IsError {
		t.Fatalf("expected status success: %s", statusResult.Content)
	}

	removeParams, _ := json.Marshal(map[string]interface{}{
		"action":     "remove",
		"process_id": payload.ProcessID,
	})
	removeResult, err := procTool.Execute(context.Background(), removeParams)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removeResult.IsError {
		t.Fatalf("expected remove success: %s", removeResult.Content)
	}
}

// TestBackgroundProcessRegistersExecSession verifies a background exec call
// registers with the manager's execsession.Registry (spec.md 4.6), so it is
// visible to the daemon's boot-time recovery pass, not just this package's
// own in-memory process map.
func TestBackgroundProcessRegistersExecSession(t *testing.T) {
	sessions := execsession.NewRegistry()
	mgr := NewManagerWithSessions(t.TempDir(), sessions)
	execTool := NewExecTool("exec", mgr)

	params, _ := json.Marshal(map[string]interface{}{
		"command":    "sleep 0.2 && echo done",
		"background": true,
	})
	result, err := execTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success: %s", result.Content)
	}

	var payload struct {
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("parse result: %v", err)
	}

	s, ok := sessions.GetRunning(payload.ProcessID)
	if !ok {
		t.Fatalf("expected session %q to be tracked by the registry", payload.ProcessID)
	}
	if !s.Backgrounded {
		t.Fatalf("expected session to be flagged backgrounded")
	}

	fin, ok := sessions.WaitForExit(payload.ProcessID, 2000)
	if !ok {
		t.Fatalf("expected session %q to finish", payload.ProcessID)
	}
	if !strings.Contains(fin.Aggregated, "done") {
		t.Fatalf("expected aggregated output to contain command stdout: %q", fin.Aggregated)
	}
}
