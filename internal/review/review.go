// Package review implements the second pipeline stage: a defect review of
// the submitted source, informed by the structural analysis that precedes it.
package review

import (
	"context"
	"fmt"
	"strings"

	"crucible/internal/services"
	"crucible/internal/services/reasoner"
	"crucible/internal/stage"
)

// StageName is the registry name of this stage.
const StageName = "review"

// Completer is the slice of the reasoner client this stage needs.
type Completer interface {
	Complete(ctx context.Context, request reasoner.Request) (string, error)
}

const systemPrompt = `You are a meticulous code reviewer hunting for defects in a single source file.

Report:
- bugs and logic errors, with the line or construct they live in
- error handling gaps and unchecked edge cases
- security problems (injection, unsafe input handling, leaked secrets)
- misleading names or dead code worth flagging

Rank findings by severity. Respond in plain prose, no code fences.`

// Handler runs the defect review stage.
type Handler struct {
	completer Completer
}

// New builds the review stage handler.
func New(completer Completer) *Handler {
	return &Handler{completer: completer}
}

// Name implements stage.Handler.
func (h *Handler) Name() string { return StageName }

// Run asks the reasoner for a defect report, handing it the earlier stage
// reports as context.
func (h *Handler) Run(ctx context.Context, sc stage.Context) (stage.Result, error) {
	if h.completer == nil {
		return stage.Result{}, services.Wrap(services.ErrConfiguration, StageName, "run", "reasoner not configured", nil)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "File: %s\n\n%s\n", sc.Input.Name, sc.Input.Content)
	for i, report := range sc.PriorReports {
		fmt.Fprintf(&prompt, "\nEarlier findings (%d):\n%s\n", i+1, report)
	}

	content, err := h.completer.Complete(ctx, reasoner.Request{
		System: systemPrompt,
		User:   prompt.String(),
	})
	if err != nil {
		return stage.Result{}, err
	}
	report := strings.TrimSpace(content)
	if report == "" {
		return stage.Result{}, services.Wrap(services.ErrExternalTool, StageName, "run", "empty review report", nil)
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
