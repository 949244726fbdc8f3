package execsession

import (
	"os"
	"syscall"
	"time"
)

// Recover loads the on-disk snapshot at path and re-adopts any session
// whose PID is still alive, marking the rest as failed. It must run before
// any new session is created, so ids and PIDs can't collide with a process
// this boot didn't launch.
func Recover(path string) (*Registry, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	for _, fin := range snap.Finished {
		fin.Recovered = true
		r.finished[fin.ID] = fin
	}

	for _, rs := range snap.Running {
		if pidAlive(rs.PID) {
			s := &Session{
				ID: rs.ID, Command: rs.Command, Cwd: rs.Cwd, PID: rs.PID,
				StartedAt: rs.StartedAt, IsPty: rs.IsPty, Backgrounded: rs.Backgrounded,
				Recovered: true,
			}
			s.aggregated = rs.Aggregated
			s.tail = rs.Tail
			s.truncated = rs.Truncated
			r.running[s.ID] = s
			continue
		}

		exitCode := -1
		r.finished[rs.ID] = &FinishedSession{
			ID: rs.ID, Command: rs.Command, Cwd: rs.Cwd,
			StartedAt: rs.StartedAt, EndedAt: time.Now().UTC(),
			Status: StatusFailed, ExitCode: &exitCode,
			ExitSignal: "", Aggregated: rs.Aggregated, Tail: rs.Tail,
			Truncated: rs.Truncated, Recovered: true,
		}
	}

	return r, nil
}

// pidAlive reports whether pid identifies a live process, using the
// signal-0 probe: sending signal 0 performs permission and existence
// checks without actually delivering a signal.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
