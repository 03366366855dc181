package fixup

import (
	"context"
	"errors"
	"testing"

	"crucible/internal/services"
	"crucible/internal/services/reasoner"
	"crucible/internal/stage"
)

type fakeCompleter struct {
	response string
	err      error
	gotReq   reasoner.Request
}

func (f *fakeCompleter) Complete(_ context.Context, request reasoner.Request) (string, error) {
	f.gotReq = request
	return f.response, f.err
}

func TestRunProducesArtifactAndScore(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"summary":"renamed x to total","fixed_code":"total = 1\n","quality_score":88}`,
	}
	handler := New(completer)

	result, err := handler.Run(context.Background(), stage.Context{
		TaskID:       "t1",
		Input:        stage.Artifact{Name: "main.py", Content: "x = 1\n"},
		PriorReports: []string{"structure ok", "x is a poor name"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Report != "renamed x to total" {
		t.Fatalf("unexpected report %q", result.Report)
	}
	if result.Artifact == nil || result.Artifact.Content != "total = 1\n" {
		t.Fatalf("unexpected artifact %+v", result.Artifact)
	}
	if result.Artifact.Name != "main.py" {
		t.Fatalf("artifact should keep the input name, got %q", result.Artifact.Name)
	}
	if result.QualityScore != 88 {
		t.Fatalf("unexpected quality score %d", result.QualityScore)
	}
	if !completer.gotReq.JSONResponse {
		t.Fatal("fixup stage must request a JSON response")
	}
}

func TestRunToleratesFencedJSON(t *testing.T) {
	handler := New(&fakeCompleter{
		response: "```json\n{\"summary\":\"s\",\"fixed_code\":\"y = 2\\n\",\"quality_score\":70}\n```",
	})
	result, err := handler.Run(context.Background(), stage.Context{Input: stage.Artifact{Name: "a.py", Content: "x"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Artifact.Content != "y = 2\n" {
		t.Fatalf("unexpected artifact content %q", result.Artifact.Content)
	}
}

func TestRunRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"not json", "here is the fix: x = 2"},
		{"missing fixed code", `{"summary":"s","quality_score":50}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := New(&fakeCompleter{response: tc.response})
			_, err := handler.Run(context.Background(), stage.Context{Input: stage.Artifact{Name: "a.py", Content: "x"}})
			if !errors.Is(err, services.ErrExternalTool) {
				t.Fatalf("expected external tool error, got %v", err)
			}
			if services.IsRetryable(err) {
				t.Fatalf("malformed payloads must not be retryable: %v", err)
			}
		})
	}
}

func TestRunClampsQualityScore(t *testing.T) {
	handler := New(&fakeCompleter{
		response: `{"summary":"s","fixed_code":"x","quality_score":150}`,
	})
	result, err := handler.Run(context.Background(), stage.Context{Input: stage.Artifact{Name: "a.py", Content: "x"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.QualityScore != 100 {
		t.Fatalf("expected score clamped to 100, got %d", result.QualityScore)
	}
}

func TestRunDefaultsEmptySummary(t *testing.T) {
	handler := New(&fakeCompleter{
		response: `{"summary":"","fixed_code":"x = 2\n","quality_score":60}`,
	})
	result, err := handler.Run(context.Background(), stage.Context{Input: stage.Artifact{Name: "a.py", Content: "x"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Report == "" {
		t.Fatal("expected fallback summary")
	}
}

func TestHealthCheck(t *testing.T) {
	if health := New(nil).HealthCheck(context.Background()); health.Ready {
		t.Fatal("handler without completer must be unhealthy")
	}
	if health := New(&fakeCompleter{}).HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}
}
