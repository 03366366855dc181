package api

import (
	"crucible/internal/stage"
	"crucible/internal/tasks"
)

// ConvertTask maps a registry snapshot to its wire form. Input content is
// omitted from summaries; callers that need it fetch the result instead.
func ConvertTask(task tasks.Task) TaskView {
	view := TaskView{
		ID:     task.ID,
		Status: string(task.Status),
		Input: ArtifactView{
			Name:      task.Input.Name,
			Path:      task.Input.Path,
			SizeBytes: int64(len(task.Input.Content)),
		},
		Stages:       make([]StageView, 0, len(task.Stages)),
		QualityScore: task.QualityScore,
		Error:        task.Error,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}
	for _, stg := range task.Stages {
		view.Stages = append(view.Stages, StageView{
			Name:       stg.Name,
			Status:     string(stg.Status),
			Attempt:    stg.Attempt,
			StartedAt:  stg.StartedAt,
			FinishedAt: stg.FinishedAt,
			Report:     stg.Output,
			Error:      stg.Error,
		})
	}
	if task.Output != nil {
		view.Output = &ArtifactView{
			Name:      task.Output.Name,
			Path:      task.Output.Path,
			SizeBytes: int64(len(task.Output.Content)),
		}
	}
	return view
}

// ConvertTasks maps a listing.
func ConvertTasks(list []tasks.Task) TaskListResponse {
	out := TaskListResponse{Tasks: make([]TaskView, 0, len(list))}
	for _, task := range list {
		out.Tasks = append(out.Tasks, ConvertTask(task))
	}
	return out
}

// ConvertHealth maps stage health checks and reports overall readiness.
func ConvertHealth(checks []stage.Health) (bool, []StageHealthView) {
	healthy := true
	views := make([]StageHealthView, 0, len(checks))
	for _, check := range checks {
		if !check.Ready {
			healthy = false
		}
		views = append(views, StageHealthView{
			Name:   check.Name,
			Ready:  check.Ready,
			Detail: check.Detail,
		})
	}
	return healthy, views
}
