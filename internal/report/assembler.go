package report

import (
	"fmt"
	"time"

	"crucible/internal/tasks"
)

// StageReport is one stage's contribution to the assembled result.
type StageReport struct {
	Name     string     `json:"name"`
	Status   string     `json:"status"`
	Attempt  int        `json:"attempt"`
	Report   string     `json:"report,omitempty"`
	Error    string     `json:"error,omitempty"`
	Duration *float64   `json:"duration_seconds,omitempty"`
	Finished *time.Time `json:"finished_at,omitempty"`
}

// Result is the assembled outcome of a terminal task. Completed tasks carry
// the fixed artifact, diff stats, and quality score; failed tasks carry the
// failure detail plus whatever stage reports were produced before it.
type Result struct {
	TaskID       string          `json:"task_id"`
	Status       string          `json:"status"`
	Input        tasks.Artifact  `json:"input"`
	Fixed        *tasks.Artifact `json:"fixed,omitempty"`
	Stages       []StageReport   `json:"stages"`
	Diff         *DiffStats      `json:"diff,omitempty"`
	QualityScore int             `json:"quality_score,omitempty"`
	Error        string          `json:"error,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// Assemble builds the result for a terminal task. It is a pure function of
// the task snapshot, so assembling the same snapshot twice yields the same
// result.
func Assemble(task tasks.Task) (Result, error) {
	if !task.Terminal() {
		return Result{}, fmt.Errorf("task %s is %s, results exist only for terminal tasks", task.ID, task.Status)
	}

	result := Result{
		TaskID:       task.ID,
		Status:       string(task.Status),
		Input:        task.Input,
		Fixed:        task.Output,
		Stages:       make([]StageReport, 0, len(task.Stages)),
		QualityScore: task.QualityScore,
		Error:        task.Error,
		GeneratedAt:  task.UpdatedAt,
	}

	for _, stg := range task.Stages {
		sr := StageReport{
			Name:    stg.Name,
			Status:  string(stg.Status),
			Attempt: stg.Attempt,
			Report:  stg.Output,
			Error:   stg.Error,
		}
		if stg.StartedAt != nil && stg.FinishedAt != nil {
			seconds := stg.FinishedAt.Sub(*stg.StartedAt).Seconds()
			sr.Duration = &seconds
			finished := *stg.FinishedAt
			sr.Finished = &finished
		}
		result.Stages = append(result.Stages, sr)
	}

	if task.Output != nil {
		diff := Diff(task.Input.Content, task.Output.Content)
		result.Diff = &diff
	}
	return result, nil
}
