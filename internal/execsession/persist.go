package execsession

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// snapshotSession is the serializable projection of a running Session.
// Runtime-only handles (stdin writer, resize func, *os.Process) are
// intentionally excluded; a session reloaded from a snapshot is always
// Recovered.
type snapshotSession struct {
	ID           string    `json:"id"`
	Command      string    `json:"command"`
	Cwd          string    `json:"cwd"`
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"startedAt"`
	IsPty        bool      `json:"isPty"`
	Backgrounded bool      `json:"backgrounded"`
	Aggregated   string    `json:"aggregated"`
	Tail         string    `json:"tail"`
	Truncated    bool      `json:"truncated"`
}

type snapshot struct {
	Running  []snapshotSession  `json:"running"`
	Finished []*FinishedSession `json:"finished"`
}

// Persister debounces Registry mutations into a single atomic write to a
// JSON snapshot file, at mode 0600 since session output may contain
// command output the operator hasn't reviewed.
type Persister struct {
	path       string
	debounceMs int

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

// NewPersister constructs a Persister writing to path, debouncing bursts of
// registry churn into one write every debounceMs of quiescence.
func NewPersister(path string, debounceMs int) *Persister {
	if debounceMs <= 0 {
		debounceMs = 250
	}
	return &Persister{path: path, debounceMs: debounceMs}
}

// Attach wires p as r's persist hook, so every mutating Registry call
// schedules a debounced write.
func (p *Persister) Attach(r *Registry) {
	r.persist = func() { p.schedule(r) }
}

func (p *Persister) schedule(r *Registry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = true
	if p.timer != nil {
		return
	}
	p.timer = time.AfterFunc(time.Duration(p.debounceMs)*time.Millisecond, func() {
		p.mu.Lock()
		p.timer = nil
		shouldWrite := p.pending
		p.pending = false
		p.mu.Unlock()
		if shouldWrite {
			_ = p.WriteNow(r)
		}
	})
}

// WriteNow writes r's current state to disk immediately, bypassing the
// debounce timer, via the write-to-temp-then-rename pattern.
func (p *Persister) WriteNow(r *Registry) error {
	running := r.ListRunning()
	finished := r.ListFinished()

	snap := snapshot{
		Running:  make([]snapshotSession, 0, len(running)),
		Finished: finished,
	}
	for _, s := range running {
		ss := s.snapshot()
		snap.Running = append(snap.Running, snapshotSession{
			ID: ss.ID, Command: ss.Command, Cwd: ss.Cwd, PID: ss.PID,
			StartedAt: ss.StartedAt, IsPty: ss.IsPty, Backgrounded: ss.Backgrounded,
			Aggregated: ss.aggregated, Tail: ss.tail, Truncated: ss.truncated,
		})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".execsession-*.tmp")
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
	if err := os.Chmod(tmpName, 0600); err != nil {
		return err
	}
	return os.Rename(tmpName, p.path)
}

// Load reads a prior snapshot from disk. A missing file is not an error:
// it means the daemon has never persisted, or this is its first boot.
func Load(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &snapshot{}, nil
		}
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
