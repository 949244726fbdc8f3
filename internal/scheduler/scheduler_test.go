package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neurana/undoable-sub002/pkg/models"
)

func newTestStore(t *testing.T, jobs ...*models.Job) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "jobs.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, j := range jobs {
		if err := s.Upsert(j); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func waitForEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler event")
		return Event{}
	}
}

func TestRunOnceFiresDueJobExactlyOnce(t *testing.T) {
	job := &models.Job{ID: "j1", Enabled: true, Schedule: models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}, State: models.JobState{NextRunAtMs: 1000}}
	store := newTestStore(t, job)

	var calls int32
	events := make(chan Event, 10)
	sched := New(store, func(ctx context.Context, j *models.Job) (string, models.JobLastStatus, error) {
		atomic.AddInt32(&calls, 1)
		return "run-1", models.JobLastStatusOK, nil
	}, func(ev Event) { events <- ev }, WithNow(func() time.Time { return time.UnixMilli(2000) }))

	fired := sched.RunOnce(context.Background())
	if fired != 1 {
		t.Fatalf("expected 1 job fired, got %d", fired)
	}
	ev := waitForEvent(t, events)
	if ev.JobID != "j1" || ev.Status != models.JobLastStatusOK {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected executor invoked exactly once, got %d", calls)
	}
}

func TestRunOnceSkipsJobNotYetDue(t *testing.T) {
	job := &models.Job{ID: "j1", Enabled: true, Schedule: models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}, State: models.JobState{NextRunAtMs: 5000}}
	store := newTestStore(t, job)

	sched := New(store, func(ctx context.Context, j *models.Job) (string, models.JobLastStatus, error) {
		t.Fatal("executor should not be called for a not-yet-due job")
		return "", "", nil
	}, nil, WithNow(func() time.Time { return time.UnixMilli(2000) }))

	if fired := sched.RunOnce(context.Background()); fired != 0 {
		t.Fatalf("expected 0 fired, got %d", fired)
	}
}

func TestDeleteAfterRunRemovesJobOnSuccess(t *testing.T) {
	job := &models.Job{ID: "j1", Enabled: true, DeleteAfterRun: true, Schedule: models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}, State: models.JobState{NextRunAtMs: 1000}}
	store := newTestStore(t, job)

	events := make(chan Event, 10)
	sched := New(store, func(ctx context.Context, j *models.Job) (string, models.JobLastStatus, error) {
		return "run-1", models.JobLastStatusOK, nil
	}, func(ev Event) { events <- ev }, WithNow(func() time.Time { return time.UnixMilli(2000) }))

	sched.RunOnce(context.Background())
	waitForEvent(t, events)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.Get("j1"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected job to be deleted after delete-after-run success")
}

func TestBackoffOnErrorPushesNextRunOutAndCountsErrors(t *testing.T) {
	job := &models.Job{ID: "j1", Enabled: true, Schedule: models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}, State: models.JobState{NextRunAtMs: 1000}}
	store := newTestStore(t, job)

	events := make(chan Event, 10)
	sched := New(store, func(ctx context.Context, j *models.Job) (string, models.JobLastStatus, error) {
		return "", "", errors.New("boom")
	}, func(ev Event) { events <- ev }, WithNow(func() time.Time { return time.UnixMilli(2000) }), WithRandFloat(func() float64 { return 0 }))

	sched.RunOnce(context.Background())
	ev := waitForEvent(t, events)
	if ev.Status != models.JobLastStatusError || ev.Error == "" {
		t.Fatalf("expected error event, got %+v", ev)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, _ := store.Get("j1")
		if got.State.ConsecutiveErrors == 1 && got.State.NextRunAtMs > 2000 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected consecutive error count and pushed-out nextRunAtMs")
}

func TestRunOnceDoesNotRefireAJobAlreadyRunning(t *testing.T) {
	job := &models.Job{ID: "j1", Enabled: true, Schedule: models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}, State: models.JobState{NextRunAtMs: 1000, RunningAtMs: 1500}}
	store := newTestStore(t, job)

	sched := New(store, func(ctx context.Context, j *models.Job) (string, models.JobLastStatus, error) {
		t.Fatal("executor should not run for a job already marked running")
		return "", "", nil
	}, nil, WithNow(func() time.Time { return time.UnixMilli(2000) }))

	if fired := sched.RunOnce(context.Background()); fired != 0 {
		t.Fatalf("expected 0 fired for already-running job, got %d", fired)
	}
}
