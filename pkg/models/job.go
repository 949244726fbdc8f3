package models

import "time"

// ScheduleKind discriminates a Job's Schedule tagged union.
type ScheduleKind string

const (
	ScheduleEvery ScheduleKind = "every"
	ScheduleAt    ScheduleKind = "at"
	ScheduleCron  ScheduleKind = "cron"
)

// Schedule is a tagged union: exactly the fields for Kind are meaningful.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// EveryMs is used when Kind == ScheduleEvery.
	EveryMs int64 `json:"every_ms,omitempty"`

	// At is the absolute fire time when Kind == ScheduleAt.
	At time.Time `json:"at,omitempty"`

	// Cron/Timezone are used when Kind == ScheduleCron. Timezone defaults to
	// the system local zone when empty and is re-resolved on every call to
	// Next (evaluate-at-fire), not snapshotted at job creation.
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"tz,omitempty"`
}

// JobPayloadKind discriminates a Job's payload tagged union.
type JobPayloadKind string

const (
	JobPayloadRun   JobPayloadKind = "run"
	JobPayloadEvent JobPayloadKind = "event"
)

// JobPayload is a tagged union of what firing the job does.
type JobPayload struct {
	Kind JobPayloadKind `json:"kind"`

	// Instruction/AgentID are used when Kind == JobPayloadRun.
	Instruction string `json:"instruction,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`

	// Text is used when Kind == JobPayloadEvent: a bare event published to
	// the Event Bus rather than a new run.
	Text string `json:"text,omitempty"`
}

// JobLastStatus is the outcome of the most recent fire.
type JobLastStatus string

const (
	JobLastStatusOK      JobLastStatus = "ok"
	JobLastStatusError   JobLastStatus = "error"
	JobLastStatusSkipped JobLastStatus = "skipped"
)

// JobState is the mutable bookkeeping updated after every fire.
type JobState struct {
	LastStatus        JobLastStatus `json:"last_status,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	LastRunAtMs       int64         `json:"last_run_at_ms,omitempty"`
	LastDurationMs    int64         `json:"last_duration_ms,omitempty"`
	LastRunID         string        `json:"last_run_id,omitempty"`
	NextRunAtMs       int64         `json:"next_run_at_ms,omitempty"`
	RunningAtMs       int64         `json:"running_at_ms,omitempty"` // 0 means not running
	ConsecutiveErrors int           `json:"consecutive_errors,omitempty"`
}

// Job is a scheduled spec that fires runs or events on a schedule.
type Job struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Enabled         bool       `json:"enabled"`
	Schedule        Schedule   `json:"schedule"`
	Payload         JobPayload `json:"payload"`
	DeleteAfterRun  bool       `json:"delete_after_run,omitempty"`
	State           JobState   `json:"state"`
}
