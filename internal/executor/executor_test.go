package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/neurana/undoable-sub002/internal/actionlog"
	"github.com/neurana/undoable-sub002/internal/approval"
	"github.com/neurana/undoable-sub002/internal/eventbus"
	"github.com/neurana/undoable-sub002/internal/runs"
	"github.com/neurana/undoable-sub002/internal/toolregistry"
	"github.com/neurana/undoable-sub002/internal/undo"
	"github.com/neurana/undoable-sub002/pkg/models"
)

// scriptedLLM replays a fixed sequence of responses, one per CallLLM
// invocation, for deterministic agent-loop tests.
type scriptedLLM struct {
	responses [][]StreamChunk
	calls     int
}

func (s *scriptedLLM) CallLLM(ctx context.Context, messages []Message, toolDefs []toolregistry.Definition) (<-chan StreamChunk, error) {
	idx := s.calls
	s.calls++
	ch := make(chan StreamChunk, len(s.responses[idx])+1)
	for _, chunk := range s.responses[idx] {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func newTestExecutor(t *testing.T, llm LLMProvider, registry *toolregistry.Registry, gateMode approval.Mode) (*Executor, *runs.Manager) {
	t.Helper()
	bus := eventbus.New()
	runManager := runs.New(bus, nil)
	if registry == nil {
		registry = toolregistry.New()
	}
	gate := approval.New(gateMode)
	actionLog := actionlog.New(&bytes.Buffer{})
	undoSvc := undo.New(actionLog)

	exec := New(runManager, bus, registry, gate, actionLog, undoSvc, llm, nil, nil, nil, Config{
		MaxIterations:      5,
		PauseCheckInterval: 5 * time.Millisecond,
	})
	return exec, runManager
}

func TestExecutorHappyPathCompletesRun(t *testing.T) {
	llm := &scriptedLLM{responses: [][]StreamChunk{
		{{ContentDelta: "hello "}, {ContentDelta: "world"}},
	}}
	exec, runManager := newTestExecutor(t, llm, nil, approval.ModeOff)

	run, err := runManager.Create(models.CreateRunInput{UserID: "u1", AgentID: "a1", Instruction: "say hi"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := exec.Run(context.Background(), run.ID, "say hi", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := runManager.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.RunStatusCompleted {
		t.Fatalf("got status %s, want completed", got.Status)
	}
}

func TestExecutorCancelledMidFlight(t *testing.T) {
	llm := &scriptedLLM{responses: [][]StreamChunk{
		{{ContentDelta: "first"}, {ToolCall: &ToolCall{ID: "c1", Name: "noop", Args: json.RawMessage(`{}`)}}},
		{{ContentDelta: "unreachable"}},
	}}
	registry := toolregistry.New()
	if err := registry.Register(toolregistry.Tool{
		Definition: toolregistry.Definition{Name: "noop", Category: models.ToolCategoryRead},
		Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	exec, runManager := newTestExecutor(t, llm, registry, approval.ModeOff)
	run, err := runManager.Create(models.CreateRunInput{UserID: "u1", AgentID: "a1", Instruction: "do a thing"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := runManager.UpdateStatus(run.ID, models.RunStatusPlanning, "test setup"); err != nil {
		t.Fatalf("UpdateStatus to planning: %v", err)
	}
	if _, err := runManager.UpdateStatus(run.ID, models.RunStatusCancelled, "test cancel"); err != nil {
		t.Fatalf("UpdateStatus to cancelled: %v", err)
	}

	err = exec.Run(context.Background(), run.ID, "do a thing", "")
	if err == nil {
		t.Fatalf("expected Run to return the cancellation error")
	}

	got, err := runManager.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.RunStatusCancelled {
		t.Fatalf("got status %s, want cancelled", got.Status)
	}
}

func TestExecutorApprovalDeniedSurfacesToolResult(t *testing.T) {
	llm := &scriptedLLM{responses: [][]StreamChunk{
		{{ToolCall: &ToolCall{ID: "c1", Name: "mutate", Args: json.RawMessage(`{}`)}}},
		{{ContentDelta: "done"}},
	}}
	registry := toolregistry.New()
	executed := false
	if err := registry.Register(toolregistry.Tool{
		Definition: toolregistry.Definition{Name: "mutate", Category: models.ToolCategoryMutate, Undoable: true},
		Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			executed = true
			return json.RawMessage(`{"ok":true}`), nil
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	exec, runManager := newTestExecutor(t, llm, registry, approval.ModeMutate)
	run, err := runManager.Create(models.CreateRunInput{UserID: "u1", AgentID: "a1", Instruction: "mutate something"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- exec.Run(context.Background(), run.ID, "mutate something", "")
	}()

	var pending []models.PendingApproval
	for i := 0; i < 100; i++ {
		pending = exec.gate.ListPending()
		if len(pending) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(pending) == 0 {
		t.Fatalf("expected an approval request to be armed")
	}
	if err := exec.gate.Resolve(pending[0].ID, false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if executed {
		t.Fatalf("denied tool call should not have executed")
	}
}
