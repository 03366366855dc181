// Package fixup implements the terminal pipeline stage: it rewrites the
// submitted source to address the findings of the earlier stages and scores
// the result.
package fixup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crucible/internal/services"
	"crucible/internal/services/reasoner"
	"crucible/internal/stage"
)

// StageName is the registry name of this stage.
const StageName = "fixup"

// Completer is the slice of the reasoner client this stage needs.
type Completer interface {
	Complete(ctx context.Context, request reasoner.Request) (string, error)
}

const systemPrompt = `You are a senior engineer producing the corrected version of a single source file.

You receive the file plus analysis and review findings from earlier passes.
Rewrite the file so the reported defects are fixed while preserving its
observable behavior and style. Then rate the corrected file's quality from 0
to 100.

Respond ONLY with a JSON object:
{"summary": "one paragraph describing the changes", "fixed_code": "the complete corrected file", "quality_score": 87}`

// payload is the structured response contract with the reasoner.
type payload struct {
	Summary      string `json:"summary"`
	FixedCode    string `json:"fixed_code"`
	QualityScore int    `json:"quality_score"`
}

// Handler runs the fix generation stage.
type Handler struct {
	completer Completer
}

// New builds the fixup stage handler.
func New(completer Completer) *Handler {
	return &Handler{completer: completer}
}

// Name implements stage.Handler.
func (h *Handler) Name() string { return StageName }

// Run asks the reasoner for the corrected file and returns it as the stage
// artifact together with the change summary and quality score.
func (h *Handler) Run(ctx context.Context, sc stage.Context) (stage.Result, error) {
	if h.completer == nil {
		return stage.Result{}, services.Wrap(services.ErrConfiguration, StageName, "run", "reasoner not configured", nil)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "File: %s\n\n%s\n", sc.Input.Name, sc.Input.Content)
	for i, report := range sc.PriorReports {
		fmt.Fprintf(&prompt, "\nFindings (%d):\n%s\n", i+1, report)
	}

	content, err := h.completer.Complete(ctx, reasoner.Request{
		System:       systemPrompt,
		User:         prompt.String(),
		JSONResponse: true,
	})
	if err != nil {
		return stage.Result{}, err
	}

	parsed, err := parsePayload(content)
	if err != nil {
		return stage.Result{}, err
	}
	return stage.Result{
		Report:       parsed.Summary,
		Artifact:     &stage.Artifact{Name: sc.Input.Name, Content: parsed.FixedCode},
		QualityScore: parsed.QualityScore,
	}, nil
}

// HealthCheck implements stage.Handler.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.completer == nil {
		return stage.Unhealthy(StageName, "reasoner not configured")
	}
	return stage.Healthy(StageName)
}

func parsePayload(content string) (payload, error) {
	content = stripFence(strings.TrimSpace(content))
	var parsed payload
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return payload{}, services.Wrap(services.ErrExternalTool, StageName, "parse payload", "response is not the expected JSON object", err)
	}
	if strings.TrimSpace(parsed.FixedCode) == "" {
		return payload{}, services.Wrap(services.ErrExternalTool, StageName, "parse payload", "fixed_code missing from response", nil)
	}
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if parsed.Summary == "" {
		parsed.Summary = "applied fixes from review findings"
	}
	if parsed.QualityScore < 0 {
		parsed.QualityScore = 0
	}
	if parsed.QualityScore > 100 {
		parsed.QualityScore = 100
	}
	return parsed, nil
}

// stripFence removes a markdown code fence if the model wrapped its JSON in
// one despite the response format request.
func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
