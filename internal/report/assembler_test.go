package report

import (
	"reflect"
	"testing"
	"time"

	"crucible/internal/tasks"
)

func completedTask() tasks.Task {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)
	return tasks.Task{
		ID:     "t1",
		Status: tasks.StatusCompleted,
		Input:  tasks.Artifact{Name: "main.py", Content: "x = 1\ny = 2\n"},
		Output: &tasks.Artifact{Name: "main.py", Content: "total = 1\ny = 2\n"},
		Stages: []tasks.StageRecord{
			{Name: "analysis", Status: tasks.StageCompleted, Attempt: 1, Output: "structure ok", StartedAt: &started, FinishedAt: &finished},
			{Name: "review", Status: tasks.StageCompleted, Attempt: 2, Output: "x is a poor name", StartedAt: &started, FinishedAt: &finished},
			{Name: "fixup", Status: tasks.StageCompleted, Attempt: 1, Output: "renamed x", StartedAt: &started, FinishedAt: &finished},
		},
		QualityScore: 88,
		CreatedAt:    started,
		UpdatedAt:    finished,
	}
}

func TestAssembleCompletedTask(t *testing.T) {
	result, err := Assemble(completedTask())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.Status != string(tasks.StatusCompleted) {
		t.Fatalf("unexpected status %s", result.Status)
	}
	if result.QualityScore != 88 {
		t.Fatalf("unexpected quality score %d", result.QualityScore)
	}
	if result.Fixed == nil || result.Fixed.Content != "total = 1\ny = 2\n" {
		t.Fatalf("unexpected fixed artifact %+v", result.Fixed)
	}
	if len(result.Stages) != 3 {
		t.Fatalf("expected 3 stage reports, got %d", len(result.Stages))
	}
	if result.Stages[1].Attempt != 2 || result.Stages[1].Report != "x is a poor name" {
		t.Fatalf("unexpected review stage report %+v", result.Stages[1])
	}
	if result.Stages[0].Duration == nil || *result.Stages[0].Duration != 3 {
		t.Fatalf("unexpected stage duration %+v", result.Stages[0].Duration)
	}
	if result.Diff == nil || result.Diff.AddedLines != 1 || result.Diff.RemovedLines != 1 {
		t.Fatalf("unexpected diff stats %+v", result.Diff)
	}
}

func TestAssembleFailedTaskKeepsPartialReports(t *testing.T) {
	task := tasks.Task{
		ID:     "t2",
		Status: tasks.StatusFailed,
		Error:  "review: reasoner unavailable",
		Input:  tasks.Artifact{Name: "main.py", Content: "x = 1\n"},
		Stages: []tasks.StageRecord{
			{Name: "analysis", Status: tasks.StageCompleted, Attempt: 1, Output: "structure ok"},
			{Name: "review", Status: tasks.StageFailed, Attempt: 3, Error: "reasoner unavailable"},
			{Name: "fixup", Status: tasks.StageIdle},
		},
	}

	result, err := Assemble(task)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.Error != "review: reasoner unavailable" {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if result.Fixed != nil || result.Diff != nil {
		t.Fatal("failed tasks carry no fixed artifact or diff")
	}
	if result.Stages[0].Report != "structure ok" {
		t.Fatalf("completed stage report missing: %+v", result.Stages[0])
	}
	if result.Stages[1].Error != "reasoner unavailable" || result.Stages[1].Attempt != 3 {
		t.Fatalf("failed stage detail missing: %+v", result.Stages[1])
	}
	if result.Stages[2].Status != string(tasks.StageIdle) {
		t.Fatalf("later stage should report idle, got %s", result.Stages[2].Status)
	}
}

func TestAssembleRejectsActiveTasks(t *testing.T) {
	task := tasks.Task{ID: "t3", Status: tasks.StatusRunning}
	if _, err := Assemble(task); err == nil {
		t.Fatal("expected error for non-terminal task")
	}
}

func TestAssembleIsIdempotent(t *testing.T) {
	task := completedTask()
	first, err := Assemble(task)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	second, err := Assemble(task)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("assembling the same snapshot twice must yield identical results")
	}
}

func TestDiffCountsMultisetChanges(t *testing.T) {
	cases := []struct {
		name    string
		before  string
		after   string
		added   int
		removed int
	}{
		{"identical", "a\nb\n", "a\nb\n", 0, 0},
		{"pure addition", "a\n", "a\nb\nc\n", 2, 0},
		{"pure removal", "a\nb\nc\n", "a\n", 0, 2},
		{"replacement", "a\nb\n", "a\nc\n", 1, 1},
		{"moved lines", "a\nb\n", "b\na\n", 0, 0},
		{"duplicates", "a\na\n", "a\n", 0, 1},
		{"empty before", "", "a\n", 1, 0},
		{"empty after", "a\n", "", 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stats := Diff(tc.before, tc.after)
			if stats.AddedLines != tc.added || stats.RemovedLines != tc.removed {
				t.Fatalf("expected +%d/-%d, got +%d/-%d", tc.added, tc.removed, stats.AddedLines, stats.RemovedLines)
			}
		})
	}
}
