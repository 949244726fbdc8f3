// Package scheduler implements the Scheduler (spec.md 4.5): a single JSON
// job store ticking jobs to the Run Executor (or a bare event onto the
// Event Bus) on their schedule, with retry/backoff and delete-after-run.
// Grounded directly on internal/cron/scheduler.go and internal/cron/
// schedule.go, retargeted from the bridge's message|agent|webhook|custom job
// types to the daemon's run|event payload union.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neurana/undoable-sub002/pkg/models"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ValidateSchedule rejects a malformed schedule at job-creation time rather
// than at first fire.
func ValidateSchedule(s models.Schedule) error {
	switch s.Kind {
	case models.ScheduleEvery:
		if s.EveryMs <= 0 {
			return fmt.Errorf("scheduler: every schedule requires everyMs > 0")
		}
	case models.ScheduleAt:
		if s.At.IsZero() {
			return fmt.Errorf("scheduler: at schedule requires a timestamp")
		}
	case models.ScheduleCron:
		if strings.TrimSpace(s.Cron) == "" {
			return fmt.Errorf("scheduler: cron schedule requires an expression")
		}
		if _, err := cronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("scheduler: invalid cron expression: %w", err)
		}
	default:
		return fmt.Errorf("scheduler: unknown schedule kind %q", s.Kind)
	}
	return nil
}

// Next computes a job's next deadline, in epoch milliseconds. prevDeadlineMs
// and lastFinishedMs are both 0 on a job's first-ever tick. ok is false when
// the schedule has no further occurrence (a past "at" job not re-armed).
//
// Per-kind rules (spec.md 4.5):
//   - every: max(lastFinishedMs, prevDeadlineMs) + everyMs; first deadline
//     is nowMs + everyMs.
//   - at: fires once at the absolute timestamp; never re-armed by Next.
//   - cron: next match of the expression in the configured timezone,
//     resolved fresh on every call (not cached at job creation).
func Next(s models.Schedule, nowMs, prevDeadlineMs, lastFinishedMs int64) (nextMs int64, ok bool, err error) {
	switch s.Kind {
	case models.ScheduleEvery:
		if s.EveryMs <= 0 {
			return 0, false, fmt.Errorf("scheduler: every schedule missing everyMs")
		}
		if prevDeadlineMs == 0 {
			return nowMs + s.EveryMs, true, nil
		}
		base := prevDeadlineMs
		if lastFinishedMs > base {
			base = lastFinishedMs
		}
		return base + s.EveryMs, true, nil

	case models.ScheduleAt:
		if s.At.IsZero() {
			return 0, false, fmt.Errorf("scheduler: at schedule missing timestamp")
		}
		return 0, false, nil

	case models.ScheduleCron:
		if strings.TrimSpace(s.Cron) == "" {
			return 0, false, fmt.Errorf("scheduler: cron schedule missing expression")
		}
		loc := time.Local
		if s.Timezone != "" {
			if tz, locErr := time.LoadLocation(s.Timezone); locErr == nil {
				loc = tz
			}
		}
		schedule, parseErr := cronParser.Parse(s.Cron)
		if parseErr != nil {
			return 0, false, fmt.Errorf("scheduler: parse cron expression: %w", parseErr)
		}
		now := time.UnixMilli(nowMs).In(loc)
		next := schedule.Next(now)
		if next.IsZero() {
			return 0, false, nil
		}
		return next.UnixMilli(), true, nil

	default:
		return 0, false, fmt.Errorf("scheduler: unknown schedule kind %q", s.Kind)
	}
}

// FirstDeadline computes a job's initial nextRunAtMs at registration time.
func FirstDeadline(s models.Schedule, nowMs int64) (int64, bool, error) {
	switch s.Kind {
	case models.ScheduleAt:
		return s.At.UnixMilli(), !s.At.IsZero(), nil
	default:
		return Next(s, nowMs, 0, 0)
	}
}
