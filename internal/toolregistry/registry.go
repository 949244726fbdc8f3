// Package toolregistry holds the tools callable by the Run Executor: a name
// maps to a JSON-Schema-described definition and an executor function. Every
// call is validated at the registry boundary (spec.md Design Notes section
// 9: "one typed definition per tool... validated at the registry boundary");
// the executor never sees unvalidated args.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/neurana/undoable-sub002/pkg/models"
)

// Tool name/parameter limits, kept from the corpus's tool_registry
// resource-exhaustion guards.
const (
	MaxToolNameLength  = 256
	MaxToolParamsSize  = 10 << 20
)

// ExecuteFunc runs a tool body against already-schema-validated args,
// returning a raw JSON result.
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Definition is the LLM-facing and policy-facing description of a tool.
type Definition struct {
	Name        string
	Description string
	Category    models.ToolCategory
	Undoable    bool
	// Parameters is the tool's JSON Schema for its arguments. Unknown
	// fields are rejected unless the schema itself allows
	// additionalProperties.
	Parameters json.RawMessage
}

// Tool pairs a Definition with its executor.
type Tool struct {
	Definition Definition
	Execute    ExecuteFunc
}

// Registry holds every registered Tool and serializes dispatch per run id,
// matching spec.md section 5's "within a run, tool calls are sequential."
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	schemas map[string]*jsonschema.Schema

	runLocksMu sync.Mutex
	runLocks   map[string]*refCountedMutex
}

type refCountedMutex struct {
	mu   sync.Mutex
	refs int
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		tools:    make(map[string]*Tool),
		schemas:  make(map[string]*jsonschema.Schema),
		runLocks: make(map[string]*refCountedMutex),
	}
}

// Register compiles the tool's parameter schema and adds it to the
// registry, replacing any existing tool of the same name.
func (r *Registry) Register(tool Tool) error {
	if len(tool.Definition.Name) == 0 {
		return fmt.Errorf("toolregistry: tool name is required")
	}
	if len(tool.Definition.Name) > MaxToolNameLength {
		return fmt.Errorf("toolregistry: tool name exceeds %d characters", MaxToolNameLength)
	}
	if tool.Execute == nil {
		return fmt.Errorf("toolregistry: tool %q has no executor", tool.Definition.Name)
	}

	var schema *jsonschema.Schema
	if len(tool.Definition.Parameters) > 0 {
		compiler := jsonschema.NewCompiler()
		const resourceName = "schema.json"
		if err := compiler.AddResource(resourceName, strings.NewReader(string(tool.Definition.Parameters))); err != nil {
			return fmt.Errorf("toolregistry: add schema for %q: %w", tool.Definition.Name, err)
		}
		compiled, err := compiler.Compile(resourceName)
		if err != nil {
			return fmt.Errorf("toolregistry: compile schema for %q: %w", tool.Definition.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t := tool
	r.tools[tool.Definition.Name] = &t
	if schema != nil {
		r.schemas[tool.Definition.Name] = schema
	} else {
		delete(r.schemas, tool.Definition.Name)
	}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a copy of a tool's Definition plus whether it was found.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return t.Definition, true
}

// Definitions returns every registered tool's Definition, for building the
// LLM's tool list.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition)
	}
	return out
}

// Validate checks args against the tool's compiled JSON Schema, if any.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	schema, hasSchema := r.schemas[name]
	r.mu.RUnlock()
	if !hasSchema {
		return nil
	}

	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("toolregistry: invalid args JSON for %q: %w", name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("toolregistry: args for %q failed validation: %w", name, err)
	}
	return nil
}

// Dispatch validates args, serializes against any other call for the same
// runID, and invokes the tool. Tool name/param-size limits and "not found"
// are returned as errors for the caller (the Run Executor) to fold into a
// structured TOOL_RESULT — dispatch itself never panics.
func (r *Registry) Dispatch(ctx context.Context, runID, name string, args json.RawMessage) (json.RawMessage, error) {
	if len(name) > MaxToolNameLength {
		return nil, fmt.Errorf("toolregistry: tool name exceeds %d characters", MaxToolNameLength)
	}
	if len(args) > MaxToolParamsSize {
		return nil, fmt.Errorf("toolregistry: tool parameters exceed %d bytes", MaxToolParamsSize)
	}

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("toolregistry: tool not found: %s", name)
	}

	if err := r.Validate(name, args); err != nil {
		return nil, err
	}

	unlock := r.lockRun(runID)
	defer unlock()

	return t.Execute(ctx, args)
}

func (r *Registry) lockRun(runID string) func() {
	if strings.TrimSpace(runID) == "" {
		return func() {}
	}

	r.runLocksMu.Lock()
	lock := r.runLocks[runID]
	if lock == nil {
		lock = &refCountedMutex{}
		r.runLocks[runID] = lock
	}
	lock.refs++
	r.runLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.runLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(r.runLocks, runID)
		}
		r.runLocksMu.Unlock()
	}
}
