package execsession

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendOutputAccumulatesAndTruncates(t *testing.T) {
	r := NewRegistry()
	s := &Session{ID: "s1", Command: "echo", PID: 1, StartedAt: time.Now().UTC()}
	r.AddSession(s)

	r.AppendOutput("s1", "hello ")
	r.AppendOutput("s1", "world")
	if s.Aggregated() != "hello world" {
		t.Fatalf("unexpected aggregated output: %q", s.Aggregated())
	}

	big := make([]byte, DefaultAggregatedCap+100)
	for i := range big {
		big[i] = 'x'
	}
	r.AppendOutput("s1", string(big))
	if !s.Truncated() {
		t.Fatal("expected truncation flag once cap exceeded")
	}
	if len(s.Aggregated()) != DefaultAggregatedCap {
		t.Fatalf("expected aggregated length capped at %d, got %d", DefaultAggregatedCap, len(s.Aggregated()))
	}
}

func TestAppendOutputStripsDSRSequences(t *testing.T) {
	r := NewRegistry()
	s := &Session{ID: "s1", StartedAt: time.Now().UTC()}
	r.AddSession(s)

	r.AppendOutput("s1", "before\x1b[24;80Rafter")
	if s.Aggregated() != "beforeafter" {
		t.Fatalf("expected DSR sequence stripped, got %q", s.Aggregated())
	}
}

func TestMarkExitedMovesRunningToFinished(t *testing.T) {
	r := NewRegistry()
	s := &Session{ID: "s1", Command: "true", StartedAt: time.Now().UTC()}
	r.AddSession(s)

	code := 0
	r.MarkExited("s1", &code, "")

	if _, ok := r.GetRunning("s1"); ok {
		t.Fatal("session should no longer be running")
	}
	finished := r.ListFinished()
	if len(finished) != 1 || finished[0].Status != StatusExited {
		t.Fatalf("expected one exited finished session, got %+v", finished)
	}
}

func TestMarkExitedWithSignalIsKilled(t *testing.T) {
	r := NewRegistry()
	s := &Session{ID: "s1", StartedAt: time.Now().UTC()}
	r.AddSession(s)
	r.MarkExited("s1", nil, "SIGKILL")

	finished := r.ListFinished()
	if finished[0].Status != StatusKilled {
		t.Fatalf("expected killed status, got %v", finished[0].Status)
	}
}

func TestWriteStdinFailsForRecoveredSession(t *testing.T) {
	r := NewRegistry()
	s := &Session{ID: "s1", StartedAt: time.Now().UTC(), Recovered: true}
	r.AddSession(s)

	if err := r.WriteStdin("s1", []byte("hi")); err == nil {
		t.Fatal("expected error writing stdin to a recovered session with no live handle")
	}
}

func TestSweepFinishedRemovesExpiredEntries(t *testing.T) {
	r := NewRegistry()
	r.ttl = time.Millisecond
	r.finished["old"] = &FinishedSession{ID: "old", EndedAt: time.Now().Add(-time.Hour)}
	r.finished["new"] = &FinishedSession{ID: "new", EndedAt: time.Now()}

	removed := r.SweepFinished(time.Now())
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := r.finished["new"]; !ok {
		t.Fatal("expected fresh entry to survive sweep")
	}
}

func TestPersistAndRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	r := NewRegistry()
	p := NewPersister(path, 10)
	p.Attach(r)

	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start test process: %v", err)
	}
	defer cmd.Process.Kill()

	live := &Session{ID: "live", Command: "sleep 5", PID: cmd.Process.Pid, StartedAt: time.Now().UTC()}
	r.AddSession(live)
	r.AppendOutput("live", "still going")

	if err := p.WriteNow(r); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected snapshot file mode 0600, got %v", info.Mode().Perm())
	}

	r2, err := Recover(path)
	if err != nil {
		t.Fatal(err)
	}
	recovered, ok := r2.GetRunning("live")
	if !ok {
		t.Fatal("expected live session to be re-adopted")
	}
	if !recovered.Recovered {
		t.Fatal("expected re-adopted session to be flagged Recovered")
	}
	if recovered.Aggregated() != "still going" {
		t.Fatalf("expected aggregated output preserved, got %q", recovered.Aggregated())
	}
}

func TestRecoverMarksDeadPidsAsFailed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	r := NewRegistry()
	p := NewPersister(path, 10)
	p.Attach(r)

	r.AddSession(&Session{ID: "dead", Command: "gone", PID: 999999, StartedAt: time.Now().UTC()})
	if err := p.WriteNow(r); err != nil {
		t.Fatal(err)
	}

	r2, err := Recover(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r2.GetRunning("dead"); ok {
		t.Fatal("expected dead pid not to be re-adopted as running")
	}
	finished := r2.ListFinished()
	found := false
	for _, f := range finished {
		if f.ID == "dead" {
			found = true
			if f.Status != StatusFailed || !f.Recovered {
				t.Fatalf("expected dead session marked failed+recovered, got %+v", f)
			}
		}
	}
	if !found {
		t.Fatal("expected dead session demoted to finished")
	}
}
