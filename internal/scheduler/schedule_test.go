package scheduler

import (
	"testing"
	"time"

	"github.com/neurana/undoable-sub002/pkg/models"
)

func TestNextEveryUsesFirstDeadlineThenAdvancesByInterval(t *testing.T) {
	sched := models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}
	now := int64(10_000)

	first, ok, err := FirstDeadline(sched, now)
	if err != nil || !ok || first != 11_000 {
		t.Fatalf("expected first deadline now+everyMs, got %d ok=%v err=%v", first, ok, err)
	}

	next, ok, err := Next(sched, 11_500, first, 11_200)
	if err != nil || !ok {
		t.Fatalf("unexpected error/ok: %v %v", err, ok)
	}
	if next != 12_200 {
		t.Fatalf("expected max(prevDeadline, lastFinished)+everyMs = 12200, got %d", next)
	}
}

func TestNextEveryAdvancesPastSlowFinish(t *testing.T) {
	sched := models.Schedule{Kind: models.ScheduleEvery, EveryMs: 1000}
	// job took longer than its interval to finish: lastFinishedMs is after prevDeadline
	next, ok, err := Next(sched, 20_000, 10_000, 15_000)
	if err != nil || !ok {
		t.Fatal(err)
	}
	if next != 16_000 {
		t.Fatalf("expected lastFinished+everyMs = 16000, got %d", next)
	}
}

func TestNextAtNeverReArms(t *testing.T) {
	sched := models.Schedule{Kind: models.ScheduleAt, At: time.UnixMilli(5000)}
	_, ok, err := Next(sched, 6000, 5000, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected at-schedule to never produce a second deadline")
	}
}

func TestNextCronResolvesTimezoneFreshEachCall(t *testing.T) {
	sched := models.Schedule{Kind: models.ScheduleCron, Cron: "0 0 * * *", Timezone: "UTC"}
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	next, ok, err := Next(sched, now.UnixMilli(), 0, 0)
	if err != nil || !ok {
		t.Fatal(err)
	}
	got := time.UnixMilli(next).UTC()
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected next midnight UTC %v, got %v", want, got)
	}
}

func TestValidateScheduleRejectsMalformedCron(t *testing.T) {
	if err := ValidateSchedule(models.Schedule{Kind: models.ScheduleCron, Cron: "not a cron"}); err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}

func TestValidateScheduleRejectsZeroEvery(t *testing.T) {
	if err := ValidateSchedule(models.Schedule{Kind: models.ScheduleEvery, EveryMs: 0}); err == nil {
		t.Fatal("expected error for zero everyMs")
	}
}
