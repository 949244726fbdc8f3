package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/neurana/undoable-sub002/internal/backoff"
	"github.com/neurana/undoable-sub002/pkg/models"
)

// MaxSleep bounds the scheduler's idle wait so it periodically reconciles
// even when no job's next deadline is known yet.
const MaxSleep = 60 * time.Second

// ExecutorFunc fires a due job — creating a Run via the Run Executor for a
// JobPayloadRun, or publishing onto the Event Bus for a JobPayloadEvent —
// and reports the outcome. Passing this as a function value rather than a
// concrete Executor avoids the Scheduler<->Executor construction cycle
// (spec.md "Cyclic references" note): the executor package depends on
// nothing in this one.
type ExecutorFunc func(ctx context.Context, job *models.Job) (runID string, status models.JobLastStatus, err error)

// Event is one scheduler fire, recorded via onEvent so an HTTP cron-run log
// can show history.
type Event struct {
	JobID     string
	FiredAtMs int64
	Status    models.JobLastStatus
	Error     string
}

// Scheduler ticks the job Store, dispatching due jobs to the configured
// ExecutorFunc. Shape (functional options, mutex-guarded state, ticker
// loop, RunOnce test hook) is kept from internal/cron.Scheduler.
type Scheduler struct {
	store    *Store
	executor ExecutorFunc
	onEvent  func(Event)

	now           func() time.Time
	tickInterval  time.Duration
	backoffPolicy backoff.BackoffPolicy
	randFloat     func() float64

	mu       sync.Mutex
	inFlight map[string]bool
	started  bool
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the ticker period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithBackoffPolicy overrides the retry backoff policy.
func WithBackoffPolicy(p backoff.BackoffPolicy) Option {
	return func(s *Scheduler) { s.backoffPolicy = p }
}

// WithRandFloat overrides the jitter source, for deterministic tests of
// the backoff-bounds quantified property.
func WithRandFloat(f func() float64) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.randFloat = f
		}
	}
}

// New constructs a Scheduler over store, firing due jobs through executor
// and reporting each fire to onEvent (which may be nil).
func New(store *Store, executor ExecutorFunc, onEvent func(Event), opts ...Option) *Scheduler {
	s := &Scheduler{
		store:         store,
		executor:      executor,
		onEvent:       onEvent,
		now:           time.Now,
		tickInterval:  time.Second,
		backoffPolicy: backoff.DefaultPolicy(),
		randFloat:     rand.Float64,
		inFlight:      make(map[string]bool),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recover clears stale runningAtMs left over from a crash (spec.md 4.5
// "clear any stale runningAtMs"), and fast-fires any "at" job whose
// deadline has already passed.
func (s *Scheduler) Recover(ctx context.Context) {
	for _, job := range s.store.List() {
		if job.State.RunningAtMs != 0 {
			_ = s.store.mutate(job.ID, func(j *models.Job) { j.State.RunningAtMs = 0 })
		}
		if job.Schedule.Kind == models.ScheduleAt && job.Enabled && job.State.NextRunAtMs == 0 {
			_ = s.store.mutate(job.ID, func(j *models.Job) { j.State.NextRunAtMs = job.Schedule.At.UnixMilli() })
		}
	}
}

// Start begins the ticker loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the ticker loop and waits for any in-flight goroutines this
// call itself spawned to be scheduled (not for fires to finish — those run
// async and report through onEvent).
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce fires every due, non-in-flight, enabled job once. Exposed for
// tests and for an explicit "run now" API.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	nowMs := s.now().UnixMilli()
	fired := 0
	for _, job := range s.store.List() {
		if !job.Enabled || job.State.NextRunAtMs == 0 || job.State.NextRunAtMs > nowMs {
			continue
		}
		if job.State.RunningAtMs != 0 {
			continue
		}
		s.mu.Lock()
		if s.inFlight[job.ID] {
			s.mu.Unlock()
			continue
		}
		s.inFlight[job.ID] = true
		s.mu.Unlock()

		fired++
		go s.fire(ctx, job.ID, nowMs)
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, jobID string, nowMs int64) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, jobID)
		s.mu.Unlock()
	}()

	_ = s.store.mutate(jobID, func(j *models.Job) { j.State.RunningAtMs = nowMs })

	job, ok := s.store.Get(jobID)
	if !ok {
		return
	}

	runID, status, err := s.executor(ctx, job)
	finishedMs := s.now().UnixMilli()

	ev := Event{JobID: jobID, FiredAtMs: finishedMs, Status: status}
	if err != nil {
		ev.Status = models.JobLastStatusError
		ev.Error = err.Error()
	}
	if s.onEvent != nil {
		s.onEvent(ev)
	}

	var remove bool
	_ = s.store.mutate(jobID, func(j *models.Job) {
		j.State.RunningAtMs = 0
		j.State.LastRunAtMs = nowMs
		j.State.LastDurationMs = finishedMs - nowMs
		j.State.LastRunID = runID

		if err != nil {
			j.State.LastStatus = models.JobLastStatusError
			j.State.LastError = err.Error()
			j.State.ConsecutiveErrors++
			delay := backoff.ComputeBackoffWithRand(s.backoffPolicy, j.State.ConsecutiveErrors, s.randFloat())
			j.State.NextRunAtMs = finishedMs + delay.Milliseconds()
			return
		}

		j.State.LastStatus = status
		j.State.LastError = ""
		j.State.ConsecutiveErrors = 0

		if j.DeleteAfterRun {
			remove = true
			return
		}

		next, ok, nextErr := Next(j.Schedule, finishedMs, j.State.NextRunAtMs, j.State.LastRunAtMs)
		if nextErr != nil || !ok {
			j.Enabled = false
			j.State.NextRunAtMs = 0
			return
		}
		j.State.NextRunAtMs = next
	})

	if remove {
		_ = s.store.Delete(jobID)
	}
}
