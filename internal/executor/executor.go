// Package executor implements the Run Executor (spec.md 4.4): the central
// agent loop that turns an instruction into a sequence of events on the
// Event Bus, dispatching tool calls through the Tool Registry, Approval
// Gate, Action Log, and Undo Service. Grounded on internal/agent.
// AgenticLoop's phase-by-phase structure (init -> stream -> execute-tools
// -> continue, looping until MaxIterations or a tool-call-free response),
// narrowed to the spec's simpler single-session, sequential-tool-call
// contract.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neurana/undoable-sub002/internal/actionlog"
	"github.com/neurana/undoable-sub002/internal/approval"
	"github.com/neurana/undoable-sub002/internal/eventbus"
	"github.com/neurana/undoable-sub002/internal/runs"
	"github.com/neurana/undoable-sub002/internal/toolregistry"
	"github.com/neurana/undoable-sub002/internal/undo"
	"github.com/neurana/undoable-sub002/pkg/models"
)

// Message is one turn of conversation history passed to the LLM.
type Message struct {
	Role       string // "system" | "user" | "assistant" | "tool"
	Content    string
	ToolCallID string      // set on role=="tool"
	ToolCalls  []ToolCall  // set on role=="assistant" when it requested tools
}

// ToolCall is a single tool invocation requested by the LLM.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// StreamChunk is one increment of a streaming LLM response: either a
// content delta (rendered as LLM_TOKEN), a discovered tool call, or a
// terminal error.
type StreamChunk struct {
	ContentDelta string
	ToolCall     *ToolCall
	Done         bool
	Err          error
}

// LLMProvider is the sole external dependency for generating completions.
// Implementations stream; the executor renders content chunks as
// LLM_TOKEN events as they arrive.
type LLMProvider interface {
	CallLLM(ctx context.Context, messages []Message, toolDefs []toolregistry.Definition) (<-chan StreamChunk, error)
}

// SystemPromptFunc assembles the system prompt for a run.
type SystemPromptFunc func(instruction string) string

// TranscriptLoader returns a bounded window of a prior session's messages,
// or nil if sessionID is unknown/empty.
type TranscriptLoader func(sessionID string, maxMessages int) []Message

// TranscriptSaver persists the final message history for a session.
type TranscriptSaver func(sessionID string, messages []Message)

// Config tunes loop behavior.
type Config struct {
	MaxIterations            int
	SessionTranscriptWindow  int // max prior messages loaded from a session
	PauseCheckInterval       time.Duration
}

// DefaultConfig matches the teacher's DefaultLoopConfig.MaxIterations.
func DefaultConfig() Config {
	return Config{
		MaxIterations:           10,
		SessionTranscriptWindow: 40,
		PauseCheckInterval:      100 * time.Millisecond,
	}
}

// Executor drives one run's agent loop end to end.
type Executor struct {
	runs      *runs.Manager
	bus       *eventbus.Bus
	registry  *toolregistry.Registry
	gate      *approval.Gate
	actionLog *actionlog.Log
	undo      *undo.Service
	llm       LLMProvider

	systemPrompt SystemPromptFunc
	loadSession  TranscriptLoader
	saveSession  TranscriptSaver
	cfg          Config
}

// New constructs an Executor. loadSession/saveSession may be nil, meaning
// the daemon runs without cross-run session transcripts.
func New(
	runManager *runs.Manager,
	bus *eventbus.Bus,
	registry *toolregistry.Registry,
	gate *approval.Gate,
	actionLog *actionlog.Log,
	undoSvc *undo.Service,
	llm LLMProvider,
	systemPrompt SystemPromptFunc,
	loadSession TranscriptLoader,
	saveSession TranscriptSaver,
	cfg Config,
) *Executor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.PauseCheckInterval <= 0 {
		cfg.PauseCheckInterval = DefaultConfig().PauseCheckInterval
	}
	return &Executor{
		runs: runManager, bus: bus, registry: registry, gate: gate,
		actionLog: actionLog, undo: undoSvc, llm: llm,
		systemPrompt: systemPrompt, loadSession: loadSession, saveSession: saveSession,
		cfg: cfg,
	}
}

// Run drives a run's entire agent loop synchronously; callers that want
// fire-and-forget semantics should invoke it in its own goroutine (the
// Scheduler and channel bridge both do).
func (e *Executor) Run(ctx context.Context, runID, instruction, sessionID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			failErr := fmt.Errorf("executor panic: %v", r)
			e.emitFailed(runID, failErr)
			err = failErr
		}
	}()

	if _, transitionErr := e.runs.UpdateStatus(runID, models.RunStatusPlanning, "starting agent loop"); transitionErr != nil {
		return transitionErr
	}

	messages := e.buildHistory(instruction, sessionID)
	toolDefs := e.registry.Definitions()

	if _, transitionErr := e.runs.UpdateStatus(runID, models.RunStatusApplying, "dispatching agent loop"); transitionErr != nil {
		return transitionErr
	}

	for iteration := 1; iteration <= e.cfg.MaxIterations; iteration++ {
		if cancelled, cancelErr := e.checkCancelled(ctx, runID); cancelled {
			return cancelErr
		}
		if err := e.waitWhilePaused(ctx, runID); err != nil {
			return err
		}

		e.emit(runID, models.RunEvent{
			Type: models.RunEventActionProgress,
			Progress: &models.ActionProgressPayload{
				Iteration: iteration, MaxIterations: e.cfg.MaxIterations,
			},
		})

		stream, err := e.llm.CallLLM(ctx, messages, toolDefs)
		if err != nil {
			e.emitFailed(runID, err)
			return err
		}

		content, toolCalls, streamErr := e.drainStream(runID, stream)
		if streamErr != nil {
			e.emitFailed(runID, streamErr)
			return streamErr
		}

		if len(toolCalls) == 0 {
			e.finishCompleted(runID, sessionID, messages, content)
			return nil
		}

		assistantMsg := Message{Role: "assistant", Content: content, ToolCalls: toolCalls}
		messages = append(messages, assistantMsg)

		for _, call := range toolCalls {
			if cancelled, cancelErr := e.checkCancelled(ctx, runID); cancelled {
				return cancelErr
			}
			if err := e.waitWhilePaused(ctx, runID); err != nil {
				return err
			}

			result := e.dispatchTool(ctx, runID, iteration, call)
			messages = append(messages, Message{
				Role:       "tool",
				Content:    string(result),
				ToolCallID: call.ID,
			})
		}
	}

	e.emit(runID, models.RunEvent{
		Type:    models.RunEventRunWarning,
		Warning: &models.RunWarningPayload{Message: "max iterations reached without a final message"},
	})
	e.finishCompleted(runID, sessionID, messages, "")
	return nil
}

func (e *Executor) buildHistory(instruction, sessionID string) []Message {
	var messages []Message
	if e.systemPrompt != nil {
		messages = append(messages, Message{Role: "system", Content: e.systemPrompt(instruction)})
	}
	if sessionID != "" && e.loadSession != nil {
		messages = append(messages, e.loadSession(sessionID, e.cfg.SessionTranscriptWindow)...)
	}
	messages = append(messages, Message{Role: "user", Content: instruction})
	return messages
}

func (e *Executor) drainStream(runID string, stream <-chan StreamChunk) (content string, toolCalls []ToolCall, err error) {
	for chunk := range stream {
		if chunk.Err != nil {
			return content, toolCalls, chunk.Err
		}
		if chunk.ContentDelta != "" {
			content += chunk.ContentDelta
			e.emit(runID, models.RunEvent{
				Type:  models.RunEventLLMToken,
				Token: &models.LLMTokenPayload{Delta: chunk.ContentDelta},
			})
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
	}
	return content, toolCalls, nil
}

// dispatchTool performs the full tool-call pipeline described in spec.md
// 4.4 step 3d, returning a JSON tool-result payload that always correlates
// back to call.ID and never propagates an error out of the loop.
func (e *Executor) dispatchTool(ctx context.Context, runID string, iteration int, call ToolCall) json.RawMessage {
	e.emit(runID, models.RunEvent{
		Type: models.RunEventToolCall,
		ToolCall: &models.ToolCallPayload{
			CallID: call.ID, Name: call.Name, Args: string(call.Args), Iteration: iteration,
		},
	})

	def, ok := e.registry.Get(call.Name)
	if !ok {
		return e.emitToolResult(runID, call.ID, call.Name, nil, fmt.Errorf("unknown tool %q", call.Name))
	}

	rec := e.actionLog.Begin(runID, call.Name, call.Args, def.Category)

	approvalState := models.ApprovalNotRequired
	if pending, needsApproval := e.gate.Arm(call.Name, fmt.Sprintf("call %s", call.Name), def.Category); needsApproval {
		_, _ = e.runs.UpdateStatus(runID, models.RunStatusApprovalRequired, fmt.Sprintf("awaiting approval for %s", call.Name))
		e.emit(runID, models.RunEvent{
			Type: models.RunEventToolApprovalRequest,
			Approval: &models.ApprovalRequestedPayload{
				ApprovalID: pending.ID,
				ToolName:   call.Name,
			},
		})

		allowed, waitErr := e.gate.Wait(ctx, pending.ID, 5*time.Minute)

		_, _ = e.runs.UpdateStatus(runID, models.RunStatusApplying, "resuming after approval decision")

		if waitErr != nil || !allowed {
			e.actionLog.Finish(rec, models.ApprovalDenied, false, nil, nil, waitErr)
			payload, _ := json.Marshal(map[string]any{"denied": true, "reason": "approval denied or timed out"})
			return e.emitToolResult(runID, call.ID, call.Name, payload, nil)
		}
		approvalState = models.ApprovalGranted
	}

	result, execErr := e.registry.Dispatch(ctx, runID, call.Name, call.Args)
	e.actionLog.Finish(rec, approvalState, def.Undoable, nil, result, execErr)
	if def.Undoable && execErr == nil {
		e.undo.RecordUndoable(rec.ID)
	}

	return e.emitToolResult(runID, call.ID, call.Name, result, execErr)
}

func (e *Executor) emitToolResult(runID, callID, name string, result json.RawMessage, execErr error) json.RawMessage {
	payload := models.ToolResultPayload{Name: name, CallID: callID}
	if execErr != nil {
		payload.Error = true
		payload.Result = execErr.Error()
	} else {
		payload.Result = string(result)
	}
	e.emit(runID, models.RunEvent{Type: models.RunEventToolResult, ToolResult: &payload})

	out, _ := json.Marshal(map[string]any{"result": payload.Result, "error": payload.Error})
	return out
}

func (e *Executor) finishCompleted(runID, sessionID string, messages []Message, content string) {
	if sessionID != "" && e.saveSession != nil {
		e.saveSession(sessionID, messages)
	}
	e.emit(runID, models.RunEvent{
		Type:      models.RunEventRunCompleted,
		Completed: &models.RunCompletedPayload{Content: content},
	})
	_, _ = e.runs.UpdateStatus(runID, models.RunStatusCompleted, "agent loop finished")
}

func (e *Executor) emitFailed(runID string, cause error) {
	e.emit(runID, models.RunEvent{
		Type:   models.RunEventRunFailed,
		Failed: &models.RunFailedPayload{Error: cause.Error()},
	})
	_, _ = e.runs.UpdateStatus(runID, models.RunStatusFailed, cause.Error())
}

func (e *Executor) emit(runID string, event models.RunEvent) {
	event.RunID = runID
	_, _ = e.runs.AppendEvent(runID, event)
}

// checkCancelled reports whether runID has moved to cancelled, and if so
// returns the error the caller should propagate (nil: the transition to
// cancelled is itself the terminal outcome, not a failure).
func (e *Executor) checkCancelled(ctx context.Context, runID string) (bool, error) {
	if ctx.Err() != nil {
		_, _ = e.runs.UpdateStatus(runID, models.RunStatusCancelled, "context cancelled")
		return true, ctx.Err()
	}
	run, err := e.runs.GetByID(runID)
	if err != nil {
		return true, err
	}
	return run.Status == models.RunStatusCancelled, nil
}

// waitWhilePaused blocks cooperatively while runID is paused, returning
// early (with the context's error) on cancellation or ctx.Done.
func (e *Executor) waitWhilePaused(ctx context.Context, runID string) error {
	for {
		run, err := e.runs.GetByID(runID)
		if err != nil {
			return err
		}
		if run.Status != models.RunStatusPaused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.PauseCheckInterval):
		}
	}
}
