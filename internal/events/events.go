package events

import (
	"time"

	"crucible/internal/tasks"
)

// Type distinguishes what an event describes.
type Type string

const (
	// TypeTask marks a task-level status change.
	TypeTask Type = "task"
	// TypeStage marks a stage-level status change.
	TypeStage Type = "stage"
	// TypeNotice marks broadcaster housekeeping, currently only the
	// overflow notice sent to a subscriber that fell behind.
	TypeNotice Type = "notice"
)

// NoticeOverflow is the message carried by the overflow notice.
const NoticeOverflow = "subscriber fell behind and was disconnected"

// Event is one ordered status update for a task. Seq numbers are per task,
// starting at 1, and strictly increasing for every subscriber.
type Event struct {
	TaskID     string    `json:"task_id"`
	Seq        uint64    `json:"seq"`
	Type       Type      `json:"type"`
	StageIndex int       `json:"stage_index"`
	Stage      string    `json:"stage,omitempty"`
	Status     string    `json:"status"`
	Attempt    int       `json:"attempt,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	Terminal   bool      `json:"terminal"`
	Timestamp  time.Time `json:"timestamp"`
}

// TaskEvent builds a task-level event from a registry snapshot.
func TaskEvent(task tasks.Task) Event {
	return Event{
		TaskID:     task.ID,
		Type:       TypeTask,
		StageIndex: -1,
		Status:     string(task.Status),
		Error:      task.Error,
		Terminal:   task.Terminal(),
	}
}

// StageEvent builds a stage-level event from a registry snapshot.
func StageEvent(task tasks.Task, index int) Event {
	stg := task.Stages[index]
	return Event{
		TaskID:     task.ID,
		Type:       TypeStage,
		StageIndex: index,
		Stage:      stg.Name,
		Status:     string(stg.Status),
		Attempt:    stg.Attempt,
		Output:     stg.Output,
		Error:      stg.Error,
	}
}
