package tasks

import (
	"errors"
	"testing"
	"time"
)

var testStages = []string{"analysis", "review", "fixup"}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(testStages, 0)
}

func mustCreate(t *testing.T, registry *Registry) Task {
	t.Helper()
	task, err := registry.Create(Artifact{Name: "example.py", Content: "print('hi')\n"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return task
}

func TestCreateInitializesPendingTask(t *testing.T) {
	registry := newTestRegistry(t)
	task := mustCreate(t, registry)

	if task.ID == "" {
		t.Fatal("expected generated task ID")
	}
	if task.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", task.Status)
	}
	if len(task.Stages) != len(testStages) {
		t.Fatalf("expected %d stages, got %d", len(testStages), len(task.Stages))
	}
	for i, stg := range task.Stages {
		if stg.Name != testStages[i] {
			t.Fatalf("stage %d: expected name %s, got %s", i, testStages[i], stg.Name)
		}
		if stg.Status != StageIdle {
			t.Fatalf("stage %d: expected idle, got %s", i, stg.Status)
		}
		if stg.Attempt != 0 {
			t.Fatalf("stage %d: expected attempt 0, got %d", i, stg.Attempt)
		}
	}
	if task.UpdatedAt.Before(task.CreatedAt) {
		t.Fatal("UpdatedAt must not precede CreatedAt")
	}
}

func TestCreateRejectsEmptyArtifact(t *testing.T) {
	registry := newTestRegistry(t)
	if _, err := registry.Create(Artifact{Name: "", Content: "x"}); err == nil {
		t.Fatal("expected error for empty artifact name")
	}
	if _, err := registry.Create(Artifact{Name: "a.py", Content: ""}); err == nil {
		t.Fatal("expected error for empty artifact content")
	}
}

func TestGetUnknownTask(t *testing.T) {
	registry := newTestRegistry(t)
	if _, err := registry.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskTransitionsAreForwardOnly(t *testing.T) {
	registry := newTestRegistry(t)
	task := mustCreate(t, registry)

	if _, err := registry.TransitionTask(task.ID, StatusCompleted, TaskFields{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending to completed should be invalid, got %v", err)
	}
	if _, err := registry.TransitionTask(task.ID, StatusPending, TaskFields{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending to pending should be invalid, got %v", err)
	}

	updated, err := registry.TransitionTask(task.ID, StatusRunning, TaskFields{})
	if err != nil {
		t.Fatalf("pending to running failed: %v", err)
	}
	if updated.Status != StatusRunning {
		t.Fatalf("expected running, got %s", updated.Status)
	}

	if _, err := registry.TransitionTask(task.ID, StatusFailed, TaskFields{Error: "boom"}); err != nil {
		t.Fatalf("running to failed: %v", err)
	}
	if _, err := registry.TransitionTask(task.ID, StatusCompleted, TaskFields{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("terminal task must reject transitions, got %v", err)
	}
}

func TestCompletionRequiresAllStagesCompleted(t *testing.T) {
	registry := newTestRegistry(t)
	task := mustCreate(t, registry)
	if _, err := registry.TransitionTask(task.ID, StatusRunning, TaskFields{}); err != nil {
		t.Fatalf("start task: %v", err)
	}
	if _, err := registry.TransitionTask(task.ID, StatusCompleted, TaskFields{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completion with idle stages should be invalid, got %v", err)
	}
}

func TestStageOrderingEnforced(t *testing.T) {
	registry := newTestRegistry(t)
	task := mustCreate(t, registry)

	// Stages only start on a running task.
	if _, err := registry.TransitionStage(task.ID, 0, StageRunning, StageFields{IncrementAttempt: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stage start on pending task should be invalid, got %v", err)
	}

	if _, err := registry.TransitionTask(task.ID, StatusRunning, TaskFields{}); err != nil {
		t.Fatalf("start task: %v", err)
	}

	if _, err := registry.TransitionStage(task.ID, 1, StageRunning, StageFields{IncrementAttempt: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stage 1 before stage 0 should be invalid, got %v", err)
	}

	updated, err := registry.TransitionStage(task.ID, 0, StageRunning, StageFields{IncrementAttempt: true})
	if err != nil {
		t.Fatalf("start stage 0: %v", err)
	}
	if updated.Stages[0].Attempt != 1 {
		t.Fatalf("expected attempt 1, got %d", updated.Stages[0].Attempt)
	}
	if updated.Stages[0].StartedAt == nil {
		t.Fatal("expected StartedAt on running stage")
	}

	// Only one stage may run at a time, even if ordering were satisfied.
	if _, err := registry.TransitionStage(task.ID, 1, StageRunning, StageFields{IncrementAttempt: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second running stage should be invalid, got %v", err)
	}

	if _, err := registry.TransitionStage(task.ID, 0, StageCompleted, StageFields{Output: "report"}); err != nil {
		t.Fatalf("complete stage 0: %v", err)
	}
	updated, err = registry.TransitionStage(task.ID, 1, StageRunning, StageFields{IncrementAttempt: true})
	if err != nil {
		t.Fatalf("start stage 1 after stage 0 completed: %v", err)
	}
	if got := updated.RunningStageIndex(); got != 1 {
		t.Fatalf("expected running stage index 1, got %d", got)
	}
}

func TestStageRetryIncrementsAttempt(t *testing.T) {
	registry := newTestRegistry(t)
	task := mustCreate(t, registry)
	if _, err := registry.TransitionTask(task.ID, StatusRunning, TaskFields{}); err != nil {
		t.Fatalf("start task: %v", err)
	}
	if _, err := registry.TransitionStage(task.ID, 0, StageRunning, StageFields{IncrementAttempt: true}); err != nil {
		t.Fatalf("start stage: %v", err)
	}

	// Retries keep the stage running and bump the attempt counter.
	updated, err := registry.TransitionStage(task.ID, 0, StageRunning, StageFields{IncrementAttempt: true})
	if err != nil {
		t.Fatalf("retry attempt: %v", err)
	}
	if updated.Stages[0].Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", updated.Stages[0].Attempt)
	}

	// A bare running-to-running transition without attempt bookkeeping is a bug.
	if _, err := registry.TransitionStage(task.ID, 0, StageRunning, StageFields{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("running to running without attempt should be invalid, got %v", err)
	}
}

func TestFailedStageLeavesLaterStagesIdle(t *testing.T) {
	registry := newTestRegistry(t)
	task := mustCreate(t, registry)
	if _, err := registry.TransitionTask(task.ID, StatusRunning, TaskFields{}); err != nil {
		t.Fatalf("start task: %v", err)
	}
	if _, err := registry.TransitionStage(task.ID, 0, StageRunning, StageFields{IncrementAttempt: true}); err != nil {
		t.Fatalf("start stage: %v", err)
	}

	updated, err := registry.TransitionStage(task.ID, 0, StageFailed, StageFields{Error: "reasoner unavailable"})
	if err != nil {
		t.Fatalf("fail stage: %v", err)
	}
	if updated.Stages[0].Status != StageFailed {
		t.Fatalf("expected failed stage, got %s", updated.Stages[0].Status)
	}
	if updated.Stages[0].Error != "reasoner unavailable" {
		t.Fatalf("unexpected stage error: %q", updated.Stages[0].Error)
	}
	for i := 1; i < len(updated.Stages); i++ {
		if updated.Stages[i].Status != StageIdle {
			t.Fatalf("stage %d should stay idle after earlier failure, got %s", i, updated.Stages[i].Status)
		}
	}

	// Later stages can never start once an earlier one failed.
	if _, err := registry.TransitionStage(task.ID, 1, StageRunning, StageFields{IncrementAttempt: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stage after failure should be invalid, got %v", err)
	}
	// Terminal stages reject further transitions.
	if _, err := registry.TransitionStage(task.ID, 0, StageRunning, StageFields{IncrementAttempt: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed stage restart should be invalid, got %v", err)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	registry := newTestRegistry(t)
	task := mustCreate(t, registry)

	task.Status = StatusFailed
	task.Stages[0].Status = StageFailed
	task.Stages[0].Output = "tampered"

	fresh, err := registry.Get(task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fresh.Status != StatusPending {
		t.Fatalf("registry state leaked, status is %s", fresh.Status)
	}
	if fresh.Stages[0].Status != StageIdle || fresh.Stages[0].Output != "" {
		t.Fatalf("registry stage state leaked: %+v", fresh.Stages[0])
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	registry := NewRegistry(testStages, 0)
	registry.now = steppedClock()

	first := mustCreate(t, registry)
	second := mustCreate(t, registry)
	third := mustCreate(t, registry)

	if _, err := registry.TransitionTask(second.ID, StatusRunning, TaskFields{}); err != nil {
		t.Fatalf("start second: %v", err)
	}
	if _, err := registry.TransitionTask(second.ID, StatusFailed, TaskFields{Error: "x"}); err != nil {
		t.Fatalf("fail second: %v", err)
	}

	all := registry.List(Filter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != third.ID || all[2].ID != first.ID {
		t.Fatalf("expected newest-first ordering, got %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	failed := registry.List(Filter{Statuses: []Status{StatusFailed}})
	if len(failed) != 1 || failed[0].ID != second.ID {
		t.Fatalf("expected only failed task %s, got %+v", second.ID, failed)
	}

	limited := registry.List(Filter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("expected 2 tasks with limit, got %d", len(limited))
	}
}

func TestRetainLimitPrunesOldestTerminal(t *testing.T) {
	registry := NewRegistry(testStages, 2)
	registry.now = steppedClock()

	old := mustCreate(t, registry)
	if _, err := registry.TransitionTask(old.ID, StatusRunning, TaskFields{}); err != nil {
		t.Fatalf("start old: %v", err)
	}
	if _, err := registry.TransitionTask(old.ID, StatusFailed, TaskFields{Error: "x"}); err != nil {
		t.Fatalf("fail old: %v", err)
	}

	kept := mustCreate(t, registry)
	mustCreate(t, registry)

	if _, err := registry.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old terminal task to be pruned, got %v", err)
	}
	if _, err := registry.Get(kept.ID); err != nil {
		t.Fatalf("active task must survive pruning: %v", err)
	}
}

func TestRetainLimitNeverPrunesActiveTasks(t *testing.T) {
	registry := NewRegistry(testStages, 1)
	first := mustCreate(t, registry)
	second := mustCreate(t, registry)
	third := mustCreate(t, registry)

	for _, task := range []Task{first, second, third} {
		if _, err := registry.Get(task.ID); err != nil {
			t.Fatalf("pending task %s pruned: %v", task.ID, err)
		}
	}
}

func TestUpdatedAtIsMonotone(t *testing.T) {
	registry := NewRegistry(testStages, 0)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clockValues := []time.Time{base, base.Add(2 * time.Second), base.Add(time.Second)}
	idx := 0
	registry.now = func() time.Time {
		v := clockValues[idx%len(clockValues)]
		idx++
		return v
	}

	task := mustCreate(t, registry)
	updated, err := registry.TransitionTask(task.ID, StatusRunning, TaskFields{})
	if err != nil {
		t.Fatalf("start task: %v", err)
	}
	if updated.UpdatedAt.Before(task.UpdatedAt) {
		t.Fatalf("UpdatedAt went backwards: %s then %s", task.UpdatedAt, updated.UpdatedAt)
	}

	// The third clock reading steps backwards; UpdatedAt must not.
	failed, err := registry.TransitionTask(task.ID, StatusFailed, TaskFields{Error: "x"})
	if err != nil {
		t.Fatalf("fail task: %v", err)
	}
	if failed.UpdatedAt.Before(updated.UpdatedAt) {
		t.Fatalf("UpdatedAt went backwards: %s then %s", updated.UpdatedAt, failed.UpdatedAt)
	}
}

func steppedClock() func() time.Time {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}
