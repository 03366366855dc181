package review

import (
	"context"
	"errors"
	"strings"
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

func TestRunIncludesPriorReports(t *testing.T) {
	completer := &fakeCompleter{response: "two defects found"}
	handler := New(completer)

	result, err := handler.Run(context.Background(), stage.Context{
		TaskID:       "t1",
		Input:        stage.Artifact{Name: "main.py", Content: "print('hi')\n"},
		PriorReports: []string{"the structure is a single script"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Report != "two defects found" {
		t.Fatalf("unexpected report %q", result.Report)
	}
	if !strings.Contains(completer.gotReq.User, "the structure is a single script") {
		t.Fatalf("prompt missing prior report: %q", completer.gotReq.User)
	}
}

func TestRunPropagatesCompleterErrors(t *testing.T) {
	wantErr := services.Wrap(services.ErrTimeout, StageName, "run", "deadline", nil)
	handler := New(&fakeCompleter{err: wantErr})

	_, err := handler.Run(context.Background(), stage.Context{Input: stage.Artifact{Name: "a", Content: "b"}})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
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
