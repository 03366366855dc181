package tasks

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

// StageStatus represents the lifecycle of one pipeline stage within a task.
type StageStatus string

const (
	StageIdle      StageStatus = "idle"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// Artifact is an immutable named blob of source content.
type Artifact struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	// Path is where the storage collaborator persisted the content,
	// empty when the artifact only lives in memory.
	Path string `json:"path,omitempty"`
}

// StageRecord tracks the execution state of one pipeline stage.
type StageRecord struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Attempt    int         `json:"attempt"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Output     string      `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Task is the unit of work for one submitted artifact. The registry owns the
// canonical record; everything handed to callers is a deep copy.
type Task struct {
	ID        string        `json:"id"`
	Status    Status        `json:"status"`
	Stages    []StageRecord `json:"stages"`
	Input     Artifact      `json:"input"`
	Output    *Artifact     `json:"output,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Error     string        `json:"error,omitempty"`
	// QualityScore is recorded on completion by the terminal stage, 0-100.
	QualityScore int `json:"quality_score,omitempty"`
}

// AllStatuses returns the ordered list of known task statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return normalized, true
	default:
		return "", false
	}
}

// Terminal reports whether the task has reached a final status.
func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// CompletedReports returns the outputs of all completed stages in execution
// order, the accumulated context handed to the next stage.
func (t Task) CompletedReports() []string {
	reports := make([]string, 0, len(t.Stages))
	for _, stg := range t.Stages {
		if stg.Status == StageCompleted {
			reports = append(reports, stg.Output)
		}
	}
	return reports
}

// RunningStageIndex returns the index of the currently running stage, or -1.
func (t Task) RunningStageIndex() int {
	for i, stg := range t.Stages {
		if stg.Status == StageRunning {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand outside the registry.
func (t Task) Clone() Task {
	cp := t
	cp.Stages = make([]StageRecord, len(t.Stages))
	for i, stg := range t.Stages {
		cp.Stages[i] = stg
		if stg.StartedAt != nil {
			started := *stg.StartedAt
			cp.Stages[i].StartedAt = &started
		}
		if stg.FinishedAt != nil {
			finished := *stg.FinishedAt
			cp.Stages[i].FinishedAt = &finished
		}
	}
	if t.Output != nil {
		out := *t.Output
		cp.Output = &out
	}
	return cp
}

func statusRank(status Status) int {
	switch status {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}
