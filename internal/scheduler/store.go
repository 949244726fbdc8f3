package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/neurana/undoable-sub002/pkg/models"
)

// Store is the single-JSON-file, write-through job store spec.md 4.5
// requires: every mutation is flushed to disk under the same mutex that
// guards the in-memory map, using a write-to-temp-then-rename for crash
// safety (the same discipline internal/runs.FileStore uses for run logs).
type Store struct {
	path string
	mu   sync.Mutex
	jobs map[string]*models.Job
}

// NewStore loads path if it exists, or starts empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, jobs: make(map[string]*models.Job)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var list []*models.Job
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	for _, j := range list {
		s.jobs[j.ID] = j
	}
	return s, nil
}

// Upsert writes job into the store and persists immediately.
func (s *Store) Upsert(job *models.Job) error {
	s.mu.Lock()
	s.jobs[job.ID] = job
	err := s.persistLocked()
	s.mu.Unlock()
	return err
}

// Delete removes a job by id and persists immediately.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	err := s.persistLocked()
	s.mu.Unlock()
	return err
}

// Get returns a copy of a job by id.
func (s *Store) Get(id string) (*models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// List returns a snapshot of every job, sorted by id.
func (s *Store) List() []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sortJobsByID(out)
	return out
}

// mutate runs fn against the job with id under the store's write lock,
// persisting the result. Used by the tick engine so update-and-persist is
// a single atomic step from the scheduler's point of view.
func (s *Store) mutate(id string, fn func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	fn(j)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	list := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, j)
	}
	sortJobsByID(list)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".scheduler-jobs-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func sortJobsByID(jobs []*models.Job) {
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && jobs[j-1].ID > jobs[j].ID; j-- {
			jobs[j-1], jobs[j] = jobs[j], jobs[j-1]
		}
	}
}
