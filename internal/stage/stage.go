package stage

import "context"

// Context carries everything a stage may read: the task's input artifact and
// the reports produced by every earlier completed stage, in execution order.
// Stages never mutate it.
type Context struct {
	TaskID       string
	Input        Artifact
	PriorReports []string
}

// Artifact mirrors the registry's artifact shape without importing it, so
// stage implementations stay free of registry concerns.
type Artifact struct {
	Name    string
	Content string
}

// Result is what a successful stage run produces. Report is the
// human-readable stage output recorded on the task and fed to later stages.
// Artifact is set only by stages that produce derived content, such as the
// rewritten source from the fixup stage.
type Result struct {
	Report   string
	Artifact *Artifact
	// QualityScore is populated by the terminal stage, 0-100.
	QualityScore int
}

// Health reports whether a stage's dependencies are usable.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy builds a passing health report.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy builds a failing health report with a reason.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Handler is one pipeline stage. Run must respect ctx cancellation and
// classify failures with the services error markers so the runner can
// decide between retrying and failing the task.
type Handler interface {
	Name() string
	Run(ctx context.Context, sc Context) (Result, error)
	HealthCheck(ctx context.Context) Health
}
