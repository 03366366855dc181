package tasks

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crucible/internal/services"
)

// TaskFields carries optional record updates applied atomically with a task
// status transition.
type TaskFields struct {
	Error        string
	Output       *Artifact
	QualityScore int
}

// StageFields carries optional record updates applied atomically with a
// stage status transition. IncrementAttempt marks the start of an execution
// attempt, including retries of an already running stage.
type StageFields struct {
	Output           string
	Error            string
	IncrementAttempt bool
}

// Filter narrows List results.
type Filter struct {
	Statuses []Status
	Limit    int
}

// Registry is the volatile authority on task state. Records live only in
// memory; restarts start empty. Mutations to different tasks never contend
// on the same lock.
type Registry struct {
	mu          sync.RWMutex
	records     map[string]*record
	stageNames  []string
	retainLimit int
	now         func() time.Time
}

type record struct {
	mu   sync.Mutex
	task Task
}

// NewRegistry creates a registry whose tasks carry one StageRecord per
// configured stage name, in execution order. retainLimit of zero disables
// pruning.
func NewRegistry(stageNames []string, retainLimit int) *Registry {
	names := make([]string, len(stageNames))
	copy(names, stageNames)
	return &Registry{
		records:     make(map[string]*record),
		stageNames:  names,
		retainLimit: retainLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StageNames returns the configured pipeline stage names in order.
func (r *Registry) StageNames() []string {
	names := make([]string, len(r.stageNames))
	copy(names, r.stageNames)
	return names
}

// Create registers a new pending task for the given input artifact.
func (r *Registry) Create(input Artifact) (Task, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Task{}, services.Wrap(services.ErrValidation, "", "create task", "artifact name must not be empty", nil)
	}
	if input.Content == "" {
		return Task{}, services.Wrap(services.ErrValidation, "", "create task", "artifact content must not be empty", nil)
	}

	now := r.now()
	task := Task{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Stages:    make([]StageRecord, len(r.stageNames)),
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, name := range r.stageNames {
		task.Stages[i] = StageRecord{Name: name, Status: StageIdle}
	}

	r.mu.Lock()
	r.records[task.ID] = &record{task: task}
	r.pruneLocked()
	r.mu.Unlock()

	return task.Clone(), nil
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (Task, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return Task{}, err
	}
	rec.mu.Lock()
	snapshot := rec.task.Clone()
	rec.mu.Unlock()
	return snapshot, nil
}

// List returns snapshots matching the filter, newest first.
func (r *Registry) List(filter Filter) []Task {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]Task, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		snapshot := rec.task.Clone()
		rec.mu.Unlock()
		if filter.matches(snapshot) {
			out = append(out, snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// TransitionTask moves a task to the next lifecycle status. Statuses only
// move forward; re-applying the current status or skipping ahead is
// rejected with ErrInvalidTransition.
func (r *Registry) TransitionTask(id string, next Status, fields TaskFields) (Task, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return Task{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	task := &rec.task
	if err := validateTaskTransition(task, next); err != nil {
		return Task{}, err
	}

	task.Status = next
	switch next {
	case StatusCompleted:
		task.Output = fields.Output
		task.QualityScore = fields.QualityScore
	case StatusFailed:
		task.Error = fields.Error
	}
	r.touch(task)
	return task.Clone(), nil
}

// TransitionStage moves one stage of a task to the next stage status and
// applies the accompanying fields. The registry enforces strict stage
// ordering and the single-running-stage invariant.
func (r *Registry) TransitionStage(id string, index int, next StageStatus, fields StageFields) (Task, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return Task{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	task := &rec.task
	if index < 0 || index >= len(task.Stages) {
		return Task{}, fmt.Errorf("%w: stage index %d out of range for task %s", ErrInvalidTransition, index, id)
	}
	stg := &task.Stages[index]
	if err := validateStageTransition(task, index, next, fields); err != nil {
		return Task{}, err
	}

	now := r.now()
	switch next {
	case StageRunning:
		if stg.StartedAt == nil {
			started := now
			stg.StartedAt = &started
		}
		if fields.IncrementAttempt {
			stg.Attempt++
		}
	case StageCompleted:
		finished := now
		stg.FinishedAt = &finished
		stg.Output = fields.Output
	case StageFailed:
		finished := now
		stg.FinishedAt = &finished
		stg.Error = fields.Error
	}
	stg.Status = next
	r.touch(task)
	return task.Clone(), nil
}

func validateTaskTransition(task *Task, next Status) error {
	nextRank := statusRank(next)
	if nextRank < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	currentRank := statusRank(task.Status)
	if nextRank != currentRank+1 {
		return fmt.Errorf("%w: task %s cannot move from %s to %s", ErrInvalidTransition, task.ID, task.Status, next)
	}
	if next == StatusCompleted {
		for _, stg := range task.Stages {
			if stg.Status != StageCompleted {
				return fmt.Errorf("%w: task %s cannot complete while stage %s is %s", ErrInvalidTransition, task.ID, stg.Name, stg.Status)
			}
		}
	}
	return nil
}

func validateStageTransition(task *Task, index int, next StageStatus, fields StageFields) error {
	stg := task.Stages[index]
	switch {
	case stg.Status == StageIdle && next == StageRunning:
		if task.Status != StatusRunning {
			return fmt.Errorf("%w: task %s is %s, stages only run on running tasks", ErrInvalidTransition, task.ID, task.Status)
		}
		for i := 0; i < index; i++ {
			if task.Stages[i].Status != StageCompleted {
				return fmt.Errorf("%w: stage %s cannot start before %s completes", ErrInvalidTransition, stg.Name, task.Stages[i].Name)
			}
		}
		if running := task.RunningStageIndex(); running >= 0 {
			return fmt.Errorf("%w: stage %s cannot start while %s is running", ErrInvalidTransition, stg.Name, task.Stages[running].Name)
		}
		return nil
	case stg.Status == StageRunning && next == StageRunning:
		// Retry of the current attempt; only valid as attempt bookkeeping.
		if !fields.IncrementAttempt {
			return fmt.Errorf("%w: stage %s is already running", ErrInvalidTransition, stg.Name)
		}
		return nil
	case stg.Status == StageRunning && (next == StageCompleted || next == StageFailed):
		return nil
	default:
		return fmt.Errorf("%w: stage %s cannot move from %s to %s", ErrInvalidTransition, stg.Name, stg.Status, next)
	}
}

func (r *Registry) lookup(id string) (*record, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// touch bumps UpdatedAt, keeping it monotone even when the clock is not.
func (r *Registry) touch(task *Task) {
	now := r.now()
	if now.Before(task.UpdatedAt) {
		now = task.UpdatedAt
	}
	task.UpdatedAt = now
}

// pruneLocked evicts the oldest terminal tasks once the registry grows past
// the retain limit. Callers hold r.mu.
func (r *Registry) pruneLocked() {
	if r.retainLimit <= 0 || len(r.records) <= r.retainLimit {
		return
	}
	type candidate struct {
		id        string
		createdAt time.Time
	}
	terminal := make([]candidate, 0, len(r.records))
	for id, rec := range r.records {
		rec.mu.Lock()
		if rec.task.Terminal() {
			terminal = append(terminal, candidate{id: id, createdAt: rec.task.CreatedAt})
		}
		rec.mu.Unlock()
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].createdAt.Before(terminal[j].createdAt)
	})
	for _, cand := range terminal {
		if len(r.records) <= r.retainLimit {
			return
		}
		delete(r.records, cand.id)
	}
}

func (f Filter) matches(task Task) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if task.Status == status {
			return true
		}
	}
	return false
}
