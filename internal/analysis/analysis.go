// Package analysis implements the first pipeline stage: a structural pass
// over the submitted source that maps out components, interfaces, and
// architectural concerns for the stages that follow.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"crucible/internal/services"
	"crucible/internal/services/reasoner"
	"crucible/internal/stage"
)

// StageName is the registry name of this stage.
const StageName = "analysis"

// Completer is the slice of the reasoner client this stage needs.
type Completer interface {
	Complete(ctx context.Context, request reasoner.Request) (string, error)
}

const systemPrompt = `You are a senior software architect reviewing a single source file.

Produce a structural analysis covering:
- the file's purpose and main components (functions, types, classes)
- how the components depend on each other
- architectural concerns: unclear responsibilities, missing abstractions, tight coupling

Be specific and reference names from the code. Respond in plain prose, no code fences.`

// Handler runs the structural analysis stage.
type Handler struct {
	completer Completer
}

// New builds the analysis stage handler.
func New(completer Completer) *Handler {
	return &Handler{completer: completer}
}

// Name implements stage.Handler.
func (h *Handler) Name() string { return StageName }

// Run asks the reasoner for a structural report on the input artifact.
func (h *Handler) Run(ctx context.Context, sc stage.Context) (stage.Result, error) {
	if h.completer == nil {
		return stage.Result{}, services.Wrap(services.ErrConfiguration, StageName, "run", "reasoner not configured", nil)
	}
	content, err := h.completer.Complete(ctx, reasoner.Request{
		System: systemPrompt,
		User:   fmt.Sprintf("File: %s\n\n%s", sc.Input.Name, sc.Input.Content),
	})
	if err != nil {
		return stage.Result{}, err
	}
	report := strings.TrimSpace(content)
	if report == "" {
		return stage.Result{}, services.Wrap(services.ErrExternalTool, StageName, "run", "empty analysis report", nil)
	}
	return stage.Result{Report: report}, nil
}

// HealthCheck implements stage.Handler.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.completer == nil {
		return stage.Unhealthy(StageName, "reasoner not configured")
	}
	return stage.Healthy(StageName)
}
