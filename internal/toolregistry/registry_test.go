package toolregistry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/neurana/undoable-sub002/pkg/models"
)

func echoTool() Tool {
	return Tool{
		Definition: Definition{
			Name:     "echo",
			Category: models.ToolCategoryRead,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"text": {"type": "string"}},
				"required": ["text"],
				"additionalProperties": false
			}`),
		},
		Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"echo": in.Text})
		},
	}
}

func TestRegisterAndDispatch(t *testing.T) {
	r := New()
	if err := r.Register(echoTool()); err != nil {
		t.Fatal(err)
	}

	result, err := r.Dispatch(context.Background(), "run-1", "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != `{"echo":"hi"}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestDispatchRejectsUnknownFields(t *testing.T) {
	r := New()
	if err := r.Register(echoTool()); err != nil {
		t.Fatal(err)
	}

	_, err := r.Dispatch(context.Background(), "run-1", "echo", json.RawMessage(`{"text":"hi","extra":true}`))
	if err == nil {
		t.Fatal("expected validation error for unknown field")
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := New()
	if _, err := r.Dispatch(context.Background(), "run-1", "nope", nil); err == nil {
		t.Fatal("expected error for unregistered tool")
	}
}

func TestDispatchSerializesPerRun(t *testing.T) {
	r := New()
	var order []int
	var mu sync.Mutex
	slow := Tool{
		Definition: Definition{Name: "slow"},
		Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil, nil
		},
	}
	if err := r.Register(slow); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Dispatch(context.Background(), "run-shared", "slow", nil)
		}()
	}
	wg.Wait()

	if len(order) != 10 {
		t.Fatalf("expected 10 dispatches, got %d", len(order))
	}
}
