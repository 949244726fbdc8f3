package actionlog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/neurana/undoable-sub002/pkg/models"
)

func TestBeginFinishRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	rec := l.Begin("run-1", "write_file", json.RawMessage(`{"path":"/tmp/x"}`), models.ToolCategoryMutate)
	if _, ok := l.GetByID(rec.ID); ok {
		t.Fatal("record should not be visible before Finish")
	}

	finished := l.Finish(rec, models.ApprovalGranted, true, nil, []byte("hello"), nil)
	if finished.DurationMs < 0 {
		t.Fatal("expected non-negative duration")
	}

	got, ok := l.GetByID(rec.ID)
	if !ok || got.Approval != models.ApprovalGranted {
		t.Fatalf("expected finished record to be retrievable, got %+v ok=%v", got, ok)
	}
	if buf.Len() == 0 {
		t.Fatal("expected durable sink to receive a line")
	}
}

func TestListFiltersByToolNameAndCategory(t *testing.T) {
	l := New(nil)
	r1 := l.Begin("run-1", "write_file", nil, models.ToolCategoryMutate)
	l.Finish(r1, models.ApprovalGranted, true, nil, nil, nil)
	r2 := l.Begin("run-1", "read_file", nil, models.ToolCategoryRead)
	l.Finish(r2, models.ApprovalNotRequired, false, nil, nil, nil)

	byName := l.List(Filter{ToolName: "write_file"})
	if len(byName) != 1 || byName[0].ToolName != "write_file" {
		t.Fatalf("unexpected filter result: %+v", byName)
	}

	byCategory := l.List(Filter{Category: models.ToolCategoryRead})
	if len(byCategory) != 1 || byCategory[0].ToolName != "read_file" {
		t.Fatalf("unexpected filter result: %+v", byCategory)
	}
}

func TestFinishRecordsError(t *testing.T) {
	l := New(nil)
	rec := l.Begin("run-1", "exec", nil, models.ToolCategoryExec)
	finished := l.Finish(rec, models.ApprovalGranted, false, nil, nil, errExample)
	if finished.Error != errExample.Error() {
		t.Fatalf("expected error message recorded, got %q", finished.Error)
	}
}

var errExample = errExampleType("boom")

type errExampleType string

func (e errExampleType) Error() string { return string(e) }
