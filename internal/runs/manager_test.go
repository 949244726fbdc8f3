package runs

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/neurana/undoable-sub002/internal/eventbus"
	"github.com/neurana/undoable-sub002/pkg/models"
)

func TestCreateAssignsCreatedStatus(t *testing.T) {
	m := New(nil, nil)
	run, err := m.Create(models.CreateRunInput{UserID: "u1", Instruction: "echo hello"})
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunStatusCreated {
		t.Fatalf("expected created status, got %s", run.Status)
	}
	if run.ID == "" {
		t.Fatal("expected a non-empty run id")
	}
}

func TestStatusMonotonicityAfterTerminal(t *testing.T) {
	m := New(nil, nil)
	run, _ := m.Create(models.CreateRunInput{})

	if _, err := m.UpdateStatus(run.ID, models.RunStatusPlanning, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.UpdateStatus(run.ID, models.RunStatusApplying, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.UpdateStatus(run.ID, models.RunStatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	// completed -> applied is the one allowed terminal exception.
	if _, err := m.UpdateStatus(run.ID, models.RunStatusApplied, ""); err != nil {
		t.Fatal(err)
	}

	// completed is terminal: cannot go back to a non-terminal state.
	if _, err := m.UpdateStatus(run.ID, models.RunStatusPlanning, ""); err == nil {
		t.Fatal("expected error transitioning out of a terminal state")
	}
}

func TestPauseAndResumePreservesPriorActiveState(t *testing.T) {
	m := New(nil, nil)
	run, _ := m.Create(models.CreateRunInput{})
	if _, err := m.UpdateStatus(run.ID, models.RunStatusPlanning, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.UpdateStatus(run.ID, models.RunStatusApplying, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.UpdateStatus(run.ID, models.RunStatusPaused, ""); err != nil {
		t.Fatal(err)
	}
	resumed, err := m.UpdateStatus(run.ID, models.RunStatusApplying, "")
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != models.RunStatusApplying {
		t.Fatalf("expected resume to restore applying, got %s", resumed.Status)
	}
}

func TestEventOrderingIsStrictlyIncreasingPerRun(t *testing.T) {
	bus := eventbus.New()
	m := New(bus, nil)
	run, _ := m.Create(models.CreateRunInput{})

	var mu sync.Mutex
	var seen []uint64
	bus.Subscribe(run.ID, func(e models.RunEvent) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Sequence)
	})

	for i := 0; i < 5; i++ {
		if _, err := m.AppendEvent(run.ID, models.RunEvent{Type: models.RunEventLLMToken}); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("events out of order: %v", seen)
		}
	}
}

func TestRecoverMarksNonTerminalRunsFailed(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	m := New(nil, store)
	run, _ := m.Create(models.CreateRunInput{})
	if _, err := m.UpdateStatus(run.ID, models.RunStatusPlanning, ""); err != nil {
		t.Fatal(err)
	}

	store2, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	m2 := New(nil, store2)
	if err := m2.Recover(); err != nil {
		t.Fatal(err)
	}

	recovered, err := m2.GetByID(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if recovered.Status != models.RunStatusFailed {
		t.Fatalf("expected recovered run to be failed, got %s", recovered.Status)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	run := models.Run{ID: "r1", Status: models.RunStatusCompleted}
	events := []models.RunEvent{{RunID: "r1", Sequence: 1, Type: models.RunEventRunCompleted}}
	if err := store.Save(run, events); err != nil {
		t.Fatal(err)
	}

	if _, err := filepath.Glob(filepath.Join(dir, "*.jsonl")); err != nil {
		t.Fatal(err)
	}

	records, err := store.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Run.ID != "r1" || len(records[0].Events) != 1 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}
