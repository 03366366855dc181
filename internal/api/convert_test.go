package api

import (
	"testing"
	"time"

	"crucible/internal/stage"
	"crucible/internal/tasks"
)

func TestConvertTask(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	task := tasks.Task{
		ID:     "t1",
		Status: tasks.StatusCompleted,
		Input:  tasks.Artifact{Name: "main.py", Content: "x = 1\n", Path: "/uploads/t1_main.py"},
		Output: &tasks.Artifact{Name: "main.py", Content: "total = 1\n", Path: "/fixed/t1_main.py"},
		Stages: []tasks.StageRecord{
			{Name: "analysis", Status: tasks.StageCompleted, Attempt: 1, Output: "ok", StartedAt: &started},
		},
		QualityScore: 75,
		CreatedAt:    started,
		UpdatedAt:    started,
	}

	view := ConvertTask(task)
	if view.ID != "t1" || view.Status != "completed" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Input.Content != "" {
		t.Fatal("summaries must not carry input content")
	}
	if view.Input.SizeBytes != int64(len("x = 1\n")) {
		t.Fatalf("unexpected input size %d", view.Input.SizeBytes)
	}
	if view.Output == nil || view.Output.Path != "/fixed/t1_main.py" || view.Output.Content != "" {
		t.Fatalf("unexpected output view %+v", view.Output)
	}
	if len(view.Stages) != 1 || view.Stages[0].Report != "ok" || view.Stages[0].StartedAt == nil {
		t.Fatalf("unexpected stage view %+v", view.Stages)
	}
	if view.QualityScore != 75 {
		t.Fatalf("unexpected quality score %d", view.QualityScore)
	}
}

func TestConvertHealth(t *testing.T) {
	healthy, views := ConvertHealth([]stage.Health{
		stage.Healthy("analysis"),
		stage.Unhealthy("review", "reasoner not configured"),
	})
	if healthy {
		t.Fatal("one failing check must mark the daemon unhealthy")
	}
	if len(views) != 2 || views[1].Detail != "reasoner not configured" {
		t.Fatalf("unexpected views %+v", views)
	}

	healthy, _ = ConvertHealth([]stage.Health{stage.Healthy("analysis")})
	if !healthy {
		t.Fatal("all passing checks must mark the daemon healthy")
	}
}
