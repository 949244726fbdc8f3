package scheduler

import (
	"path/filepath"
	"testing"

	"github.com/neurana/undoable-sub002/pkg/models"
)

func TestStoreUpsertPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	job := &models.Job{ID: "j1", Name: "test", Enabled: true, Schedule: models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}}
	if err := s.Upsert(job); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Get("j1")
	if !ok || got.Name != "test" {
		t.Fatalf("expected reloaded job, got %+v ok=%v", got, ok)
	}
}

func TestStoreDeleteRemovesJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Upsert(&models.Job{ID: "j1"})
	if err := s.Delete("j1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("j1"); ok {
		t.Fatal("expected job to be gone after delete")
	}
}

func TestStoreListIsSortedByID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s, _ := NewStore(path)
	_ = s.Upsert(&models.Job{ID: "b"})
	_ = s.Upsert(&models.Job{ID: "a"})
	_ = s.Upsert(&models.Job{ID: "c"})

	list := s.List()
	if len(list) != 3 || list[0].ID != "a" || list[1].ID != "b" || list[2].ID != "c" {
		t.Fatalf("expected sorted list, got %+v", list)
	}
}

func TestNewStoreWithMissingFileStartsEmpty(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.List()) != 0 {
		t.Fatal("expected empty store for missing file")
	}
}
