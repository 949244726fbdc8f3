// Package tools adapts the concrete file and exec tools to the Run
// Executor's toolregistry.Registry, and filters which of them are exposed
// to a given agent via a Policy, grounded on the teacher's
// internal/tools/policy profile/group resolver.
package tools

import (
	"context"
	"encoding/json"

	"github.com/neurana/undoable-sub002/internal/execsession"
	"github.com/neurana/undoable-sub002/internal/tools/exec"
	"github.com/neurana/undoable-sub002/internal/tools/files"
	"github.com/neurana/undoable-sub002/internal/tools/policy"
	"github.com/neurana/undoable-sub002/internal/toolregistry"
	"github.com/neurana/undoable-sub002/pkg/models"
)

// named is the shape every concrete tool in files/exec implements.
type named interface {
	Name() string
	Description() string
	Schema() json.RawMessage
}

// Spec bundles the workspace and process limits the concrete tools need.
type Spec struct {
	Workspace    string
	MaxReadBytes int
	// Sessions, when set, is the process-wide exec session registry the exec
	// tool's background processes register with, so they participate in the
	// daemon's boot-time recovery pass (spec.md 4.6) instead of existing only
	// as an in-memory map private to this tool. A nil value gets its own
	// private registry, which is fine for tests but means background
	// processes spawned through it are not recoverable across a restart.
	Sessions *execsession.Registry
}

// BuildRegistry constructs the full set of built-in tools (unfiltered) and
// an exec.Manager backing the process tools, for callers that want every
// tool regardless of policy.
func BuildRegistry(spec Spec) (*toolregistry.Registry, *exec.Manager, error) {
	reg := toolregistry.New()
	manager := exec.NewManagerWithSessions(spec.Workspace, spec.Sessions)

	cfg := files.Config{Workspace: spec.Workspace, MaxReadBytes: spec.MaxReadBytes}

	readTool := files.NewReadTool(cfg)
	writeTool := files.NewWriteTool(cfg)
	editTool := files.NewEditTool(cfg)
	patchTool := files.NewApplyPatchTool(cfg)
	execTool := exec.NewExecTool("exec", manager)
	processTool := exec.NewProcessTool(manager)

	defs := []struct {
		tool     named
		category models.ToolCategory
		undoable bool
		execute  func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
	}{
		{tool: readTool, category: models.ToolCategoryRead, undoable: false, execute: fileExecute(readTool.Execute)},
		{tool: writeTool, category: models.ToolCategoryMutate, undoable: true, execute: fileExecute(writeTool.Execute)},
		{tool: editTool, category: models.ToolCategoryMutate, undoable: true, execute: fileExecute(editTool.Execute)},
		{tool: patchTool, category: models.ToolCategoryMutate, undoable: true, execute: fileExecute(patchTool.Execute)},
		{tool: execTool, category: models.ToolCategoryExec, undoable: false, execute: execExecute(execTool.Execute)},
		{tool: processTool, category: models.ToolCategorySystem, undoable: false, execute: execExecute(processTool.Execute)},
	}

	for _, d := range defs {
		err := reg.Register(toolregistry.Tool{
			Definition: toolregistry.Definition{
				Name:        d.tool.Name(),
				Description: d.tool.Description(),
				Category:    d.category,
				Undoable:    d.undoable,
				Parameters:  d.tool.Schema(),
			},
			Execute: d.execute,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return reg, manager, nil
}

// BuildFilteredRegistry builds the full tool set, then removes every tool
// the policy denies, per the teacher's allow/deny-with-deny-precedence
// resolver semantics.
func BuildFilteredRegistry(spec Spec, resolver *policy.Resolver, pol *policy.Policy) (*toolregistry.Registry, *exec.Manager, error) {
	reg, manager, err := BuildRegistry(spec)
	if err != nil {
		return nil, nil, err
	}
	if resolver == nil || pol == nil {
		return reg, manager, nil
	}
	for _, def := range reg.Definitions() {
		if !resolver.IsAllowed(pol, def.Name) {
			reg.Unregister(def.Name)
		}
	}
	return reg, manager, nil
}

func fileExecute(fn func(ctx context.Context, params json.RawMessage) (*files.ToolResult, error)) func(context.Context, json.RawMessage) (json.RawMessage, error) {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		result, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

func execExecute(fn func(ctx context.Context, params json.RawMessage) (*exec.ToolResult, error)) func(context.Context, json.RawMessage) (json.RawMessage, error) {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		result, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}
