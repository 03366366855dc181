package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crucible/internal/config"
	"crucible/internal/events"
	"crucible/internal/logging"
	"crucible/internal/metrics"
	"crucible/internal/services"
	"crucible/internal/stage"
	"crucible/internal/storage"
	"crucible/internal/tasks"
)

// ArtifactStore is the slice of the storage layer the runner needs to
// persist corrected artifacts.
type ArtifactStore interface {
	SaveFixed(ctx context.Context, taskID, filename, content string) (storage.Record, error)
}

// Runner drives tasks through the configured stages, one task per goroutine,
// stages strictly in order. All state changes go through the registry and
// every change is published to the broadcaster.
type Runner struct {
	cfg         *config.Config
	registry    *tasks.Registry
	broadcaster *events.Broadcaster
	store       ArtifactStore
	handlers    []stage.Handler
	logger      *slog.Logger

	rootCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewRunner wires a runner. The handler order defines the pipeline and must
// match the stage names the registry was built with. store may be nil, in
// which case corrected artifacts live only in task memory.
func NewRunner(cfg *config.Config, registry *tasks.Registry, broadcaster *events.Broadcaster, store ArtifactStore, handlers []stage.Handler, logger *slog.Logger) (*Runner, error) {
	if len(handlers) == 0 {
		return nil, errors.New("pipeline requires at least one stage handler")
	}
	names := registry.StageNames()
	if len(names) != len(handlers) {
		return nil, fmt.Errorf("registry has %d stages, runner has %d handlers", len(names), len(handlers))
	}
	for i, handler := range handlers {
		if handler.Name() != names[i] {
			return nil, fmt.Errorf("stage %d: registry expects %q, handler is %q", i, names[i], handler.Name())
		}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:         cfg,
		registry:    registry,
		broadcaster: broadcaster,
		store:       store,
		handlers:    handlers,
		logger:      logger.With(logging.String(logging.FieldComponent, "pipeline")),
		rootCtx:     rootCtx,
		cancel:      cancel,
		inflight:    make(map[string]struct{}),
	}, nil
}

// Start begins executing a pending task. Starting a task that is already
// running or terminal is a no-op; callers read the current state from the
// registry. The pipeline itself runs on the runner's own lifecycle, not the
// caller's request context.
func (r *Runner) Start(ctx context.Context, taskID string) error {
	task, err := r.registry.Get(taskID)
	if err != nil {
		return err
	}
	if task.Status != tasks.StatusPending {
		return nil
	}

	r.mu.Lock()
	if _, running := r.inflight[taskID]; running {
		r.mu.Unlock()
		return nil
	}
	r.inflight[taskID] = struct{}{}
	r.mu.Unlock()

	snapshot, err := r.registry.TransitionTask(taskID, tasks.StatusRunning, tasks.TaskFields{})
	if err != nil {
		r.release(taskID)
		if errors.Is(err, tasks.ErrInvalidTransition) {
			// Lost the race to another Start call.
			return nil
		}
		return err
	}
	r.broadcaster.Publish(events.TaskEvent(snapshot))

	r.wg.Add(1)
	go r.run(snapshot)
	return nil
}

// Shutdown stops accepting work and waits for in-flight tasks to settle or
// for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

// Health runs every stage handler's health check.
func (r *Runner) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(r.handlers))
	for _, handler := range r.handlers {
		out = append(out, handler.HealthCheck(ctx))
	}
	return out
}

func (r *Runner) release(taskID string) {
	r.mu.Lock()
	delete(r.inflight, taskID)
	r.mu.Unlock()
}

func (r *Runner) run(task tasks.Task) {
	defer r.wg.Done()
	defer r.release(task.ID)

	metrics.TasksActive.Inc()
	defer metrics.TasksActive.Dec()

	ctx := services.WithTaskID(r.rootCtx, task.ID)
	taskLogger := logging.WithContext(ctx, r.logger)
	taskLogger.Info("task started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.String("input", task.Input.Name))

	var fixed *stage.Artifact
	qualityScore := 0

	for index, handler := range r.handlers {
		snapshot, err := r.registry.Get(task.ID)
		if err != nil {
			taskLogger.Error("task vanished mid-pipeline", logging.Error(err))
			return
		}

		result, err := r.runStage(ctx, snapshot, index, handler)
		if err != nil {
			r.failTask(ctx, task.ID, index, handler.Name(), err)
			return
		}

		completed, err := r.registry.TransitionStage(task.ID, index, tasks.StageCompleted, tasks.StageFields{Output: result.Report})
		if err != nil {
			taskLogger.Error("record stage completion", logging.Error(err))
			r.failTask(ctx, task.ID, index, handler.Name(), err)
			return
		}
		r.broadcaster.Publish(events.StageEvent(completed, index))

		if result.Artifact != nil {
			fixed = result.Artifact
			qualityScore = result.QualityScore
		}
	}

	output := r.persistArtifact(ctx, task, fixed, taskLogger)
	snapshot, err := r.registry.TransitionTask(task.ID, tasks.StatusCompleted, tasks.TaskFields{
		Output:       output,
		QualityScore: qualityScore,
	})
	if err != nil {
		taskLogger.Error("record task completion", logging.Error(err))
		return
	}
	r.broadcaster.Publish(events.TaskEvent(snapshot))
	metrics.TasksCompleted.Inc()
	taskLogger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Int("quality_score", qualityScore))
}

// runStage executes one stage with the configured retry policy. Only
// transient and timeout failures are retried; everything else fails the
// stage on the spot.
func (r *Runner) runStage(ctx context.Context, snapshot tasks.Task, index int, handler stage.Handler) (stage.Result, error) {
	stageCtx := services.WithStage(ctx, handler.Name())
	stageLogger := logging.WithContext(stageCtx, r.logger)

	sc := stage.Context{
		TaskID:       snapshot.ID,
		Input:        stage.Artifact{Name: snapshot.Input.Name, Content: snapshot.Input.Content},
		PriorReports: snapshot.CompletedReports(),
	}

	maxAttempts := 1 + r.cfg.Pipeline.MaxStageRetries
	backoff := time.Duration(r.cfg.Pipeline.RetryBackoffMillis) * time.Millisecond
	timeout := time.Duration(r.cfg.Pipeline.StageTimeoutSeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		updated, err := r.registry.TransitionStage(snapshot.ID, index, tasks.StageRunning, tasks.StageFields{IncrementAttempt: true})
		if err != nil {
			return stage.Result{}, err
		}
		r.broadcaster.Publish(events.StageEvent(updated, index))
		if attempt > 1 {
			metrics.StageRetries.WithLabelValues(handler.Name()).Inc()
		}

		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Int(logging.FieldAttempt, attempt))

		started := time.Now()
		result, err := r.executeAttempt(stageCtx, handler, sc, timeout)
		duration := time.Since(started)
		metrics.StageDuration.WithLabelValues(handler.Name()).Observe(duration.Seconds())

		if err == nil {
			stageLogger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("stage_duration", duration))
			return result, nil
		}
		lastErr = err

		if r.rootCtx.Err() != nil {
			return stage.Result{}, services.Wrap(services.ErrTransient, handler.Name(), "run", "interrupted by shutdown", r.rootCtx.Err())
		}
		if !services.IsRetryable(err) || attempt == maxAttempts {
			break
		}

		delay := backoff * time.Duration(attempt)
		stageLogger.Warn("stage attempt failed, retrying",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("backoff", delay),
			logging.Error(err))
		select {
		case <-time.After(delay):
		case <-r.rootCtx.Done():
			return stage.Result{}, services.Wrap(services.ErrTransient, handler.Name(), "run", "interrupted by shutdown", r.rootCtx.Err())
		}
	}
	return stage.Result{}, lastErr
}

// executeAttempt bounds a single handler run with the per-attempt timeout
// and maps a deadline hit to the timeout marker.
func (r *Runner) executeAttempt(ctx context.Context, handler stage.Handler, sc stage.Context, timeout time.Duration) (stage.Result, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := handler.Run(attemptCtx, sc)
	if err != nil && attemptCtx.Err() != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return stage.Result{}, services.Wrap(services.ErrTimeout, handler.Name(), "run",
			fmt.Sprintf("attempt exceeded %s", timeout), err)
	}
	return result, err
}

func (r *Runner) failTask(ctx context.Context, taskID string, index int, stageName string, cause error) {
	logger := logging.WithContext(services.WithStage(ctx, stageName), r.logger)

	failedStage, err := r.registry.TransitionStage(taskID, index, tasks.StageFailed, tasks.StageFields{Error: cause.Error()})
	if err != nil {
		logger.Error("record stage failure", logging.Error(err))
	} else {
		r.broadcaster.Publish(events.StageEvent(failedStage, index))
	}

	failedTask, err := r.registry.TransitionTask(taskID, tasks.StatusFailed, tasks.TaskFields{
		Error: fmt.Sprintf("%s: %s", stageName, cause.Error()),
	})
	if err != nil {
		logger.Error("record task failure", logging.Error(err))
		return
	}
	r.broadcaster.Publish(events.TaskEvent(failedTask))
	metrics.TasksFailed.WithLabelValues(stageName).Inc()
	logger.Error("task failed",
		logging.String(logging.FieldEventType, "task_failed"),
		logging.Error(cause))
}

// persistArtifact writes the corrected file through the storage layer when
// one is configured. Persistence failures are logged, not fatal; the
// artifact still completes the task from memory.
func (r *Runner) persistArtifact(ctx context.Context, task tasks.Task, fixed *stage.Artifact, logger *slog.Logger) *tasks.Artifact {
	if fixed == nil {
		return nil
	}
	output := &tasks.Artifact{Name: fixed.Name, Content: fixed.Content}
	if r.store == nil {
		return output
	}
	record, err := r.store.SaveFixed(ctx, task.ID, fixed.Name, fixed.Content)
	if err != nil {
		logger.Error("persist corrected artifact", logging.Error(err))
		return output
	}
	output.Path = record.Path
	return output
}
