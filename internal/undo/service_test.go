package undo

import (
	"bytes"
	"context"
	"testing"

	"github.com/neurana/undoable-sub002/internal/actionlog"
	"github.com/neurana/undoable-sub002/pkg/models"
)

type fakeFileApplier struct {
	state map[string][]byte
}

func (f *fakeFileApplier) Undo(ctx context.Context, rec *models.ActionRecord) error {
	f.state[rec.ID] = rec.BeforeState
	return nil
}

func (f *fakeFileApplier) Redo(ctx context.Context, rec *models.ActionRecord) error {
	f.state[rec.ID] = rec.AfterState
	return nil
}

func TestUndoRedoRoundTripRestoresAfterStateByteForByte(t *testing.T) {
	log := actionlog.New(nil)
	svc := New(log)
	applier := &fakeFileApplier{state: make(map[string][]byte)}
	svc.RegisterApplier("write_file", applier)

	rec := log.Begin("run-1", "write_file", nil, models.ToolCategoryMutate)
	log.Finish(rec, models.ApprovalGranted, true, []byte("before"), []byte("after"), nil)
	svc.RecordUndoable(rec.ID)

	if err := svc.UndoAction(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(applier.state[rec.ID], []byte("before")) {
		t.Fatalf("expected before-state restored, got %q", applier.state[rec.ID])
	}

	if err := svc.RedoAction(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(applier.state[rec.ID], []byte("after")) {
		t.Fatalf("expected after-state restored byte-for-byte, got %q", applier.state[rec.ID])
	}
}

func TestSecondUndoIsNoOp(t *testing.T) {
	log := actionlog.New(nil)
	svc := New(log)
	applier := &fakeFileApplier{state: make(map[string][]byte)}
	svc.RegisterApplier("write_file", applier)

	rec := log.Begin("run-1", "write_file", nil, models.ToolCategoryMutate)
	log.Finish(rec, models.ApprovalGranted, true, []byte("before"), []byte("after"), nil)
	svc.RecordUndoable(rec.ID)

	if err := svc.UndoAction(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	applier.state[rec.ID] = []byte("tampered")

	// Second call to UndoAction by the same id must be a no-op: the record
	// is already marked Undone, so the applier must not run again.
	if err := svc.UndoAction(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(applier.state[rec.ID], []byte("tampered")) {
		t.Fatalf("second UndoAction call must not re-invoke the applier, got %q", applier.state[rec.ID])
	}
}

func TestNonUndoableActionReturnsError(t *testing.T) {
	log := actionlog.New(nil)
	svc := New(log)

	rec := log.Begin("run-1", "send_message", nil, models.ToolCategoryMutate)
	log.Finish(rec, models.ApprovalGranted, false, nil, nil, nil)

	if err := svc.UndoAction(context.Background(), rec.ID); err == nil {
		t.Fatal("expected error for non-undoable action")
	}
}

func TestUndoAllDrainsStackInReverseOrder(t *testing.T) {
	log := actionlog.New(nil)
	svc := New(log)
	applier := &fakeFileApplier{state: make(map[string][]byte)}
	svc.RegisterApplier("write_file", applier)

	var ids []string
	for i := 0; i < 3; i++ {
		rec := log.Begin("run-1", "write_file", nil, models.ToolCategoryMutate)
		log.Finish(rec, models.ApprovalGranted, true, []byte("b"), []byte("a"), nil)
		svc.RecordUndoable(rec.ID)
		ids = append(ids, rec.ID)
	}

	if err := svc.UndoAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		r, _ := log.GetByID(id)
		if !r.Undone {
			t.Fatalf("expected action %s to be marked undone", id)
		}
	}
}
