package bootstrap

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"assembly-polisher/internal/domain"
	"assembly-polisher/internal/jobs"
	"assembly-polisher/internal/polish"
)

// fakePipeline drives the stage callbacks and returns a canned result.
type fakePipeline struct {
	stages []string
	result polish.Result
	err    error
	calls  int
}

func (f *fakePipeline) Run(ctx context.Context, req polish.Request) (polish.Result, error) {
	f.calls++
	for _, stage := range f.stages {
		if req.OnStage != nil {
			req.OnStage(stage)
		}
	}
	if req.OnLog != nil {
		req.OnLog(polish.CommandLog{Command: "mini_align", ExitCode: 0})
	}
	return f.result, f.err
}

// fakeChecker simulates the per-run preflight checks.
type fakeChecker struct {
	err        error
	calls      int
	outputItem domain.DiagnosticItem
}

func (f *fakeChecker) CheckCompatibility(ctx context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeChecker) CheckOutputLocation(outputDir string) domain.DiagnosticItem {
	if f.outputItem.ID != "" {
		return f.outputItem
	}
	return domain.DiagnosticItem{ID: "output_dir", Status: domain.DiagnosticStatusPass}
}

func newTestApp(pipeline pipelineRunner, checker preflightChecker, report domain.DiagnosticReport) *App {
	return NewForTests(
		domain.Settings{Model: "r941_min_high_g360", ModelDir: "/models", OutputDir: "polished", Threads: 1, BatchSize: 100},
		nil,
		pipeline,
		checker,
		report,
		log.New(io.Discard, "", 0),
	)
}

// TestRunPolishSuccessTracksLifecycle checks status transitions and events.
func TestRunPolishSuccessTracksLifecycle(t *testing.T) {
	pipeline := &fakePipeline{
		stages: []string{polish.StageResolve, polish.StageAlign, polish.StageInfer, polish.StageStitch},
		result: polish.Result{ConsensusPath: "polished/consensus.fasta", Executed: []string{"align", "infer", "stitch"}},
	}
	app := newTestApp(pipeline, &fakeChecker{}, domain.DiagnosticReport{})

	result, err := app.RunPolish(context.Background(), domain.RunConfig{})
	if err != nil {
		t.Fatalf("RunPolish() error = %v", err)
	}
	if result.ConsensusPath != "polished/consensus.fasta" {
		t.Fatalf("result = %+v", result)
	}
	if got := app.Jobs.Current().Status; got != domain.RunStatusDone {
		t.Fatalf("final status = %s, want done", got)
	}

	events := app.Events(0)
	var statuses []domain.RunStatus
	var sawResult, sawLog bool
	for _, event := range events {
		switch event.Type {
		case jobs.EventTypeStatus:
			statuses = append(statuses, event.Status)
		case jobs.EventTypeResult:
			sawResult = true
			if event.ConsensusPath != "polished/consensus.fasta" {
				t.Fatalf("result event = %+v", event)
			}
		case jobs.EventTypeLog:
			sawLog = true
		}
	}
	if !sawResult || !sawLog {
		t.Fatalf("events missing result/log: %+v", events)
	}

	want := []domain.RunStatus{
		domain.RunStatusResolving,
		domain.RunStatusAligning,
		domain.RunStatusInferring,
		domain.RunStatusStitching,
	}
	if len(statuses) != len(want) {
		t.Fatalf("status events = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("status events = %v, want %v", statuses, want)
		}
	}
}

// TestRunPolishFailureMarksRunFailed checks error propagation.
func TestRunPolishFailureMarksRunFailed(t *testing.T) {
	pipeErr := &polish.PipelineError{Stage: polish.StageAlign, Message: "failed to align basecalls to draft"}
	pipeline := &fakePipeline{
		stages: []string{polish.StageResolve, polish.StageAlign},
		err:    pipeErr,
	}
	app := newTestApp(pipeline, &fakeChecker{}, domain.DiagnosticReport{})

	_, err := app.RunPolish(context.Background(), domain.RunConfig{})
	if !errors.Is(err, pipeErr) {
		t.Fatalf("error = %v, want pipeline error", err)
	}
	if got := app.Jobs.Current().Status; got != domain.RunStatusFailed {
		t.Fatalf("final status = %s, want failed", got)
	}

	sawError := false
	for _, event := range app.Events(0) {
		if event.Type == jobs.EventTypeError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected error event")
	}
}

// TestRunPolishRejectsConcurrentRun checks the single-run constraint.
func TestRunPolishRejectsConcurrentRun(t *testing.T) {
	app := newTestApp(&fakePipeline{}, &fakeChecker{}, domain.DiagnosticReport{})
	if _, err := app.Jobs.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := app.RunPolish(context.Background(), domain.RunConfig{}); !errors.Is(err, jobs.ErrRunAlreadyActive) {
		t.Fatalf("error = %v, want %v", err, jobs.ErrRunAlreadyActive)
	}
}

// TestPreflightFailsOnDiagnostics checks fatal environment reporting.
func TestPreflightFailsOnDiagnostics(t *testing.T) {
	report := domain.DiagnosticReport{
		HasFailures: true,
		Items: []domain.DiagnosticItem{
			{ID: "tool_polisher", Status: domain.DiagnosticStatusFail, Message: "Tool not found in PATH: polisher"},
		},
	}
	compat := &fakeChecker{}
	app := newTestApp(&fakePipeline{}, compat, report)

	if err := app.Preflight(context.Background(), "polished"); err == nil {
		t.Fatal("expected preflight failure")
	}
	if compat.calls != 0 {
		t.Fatal("compatibility probe should not run after failed diagnostics")
	}
}

// TestPreflightFailsOnIncompatibleVersions checks the version probe path.
func TestPreflightFailsOnIncompatibleVersions(t *testing.T) {
	compat := &fakeChecker{err: errors.New("component version check failed")}
	app := newTestApp(&fakePipeline{}, compat, domain.DiagnosticReport{})

	if err := app.Preflight(context.Background(), "polished"); err == nil {
		t.Fatal("expected compatibility failure")
	}
	if compat.calls != 1 {
		t.Fatalf("compat calls = %d, want 1", compat.calls)
	}
}

// TestPreflightFailsOnUnwritableOutputLocation checks the per-run
// output check participates in preflight.
func TestPreflightFailsOnUnwritableOutputLocation(t *testing.T) {
	checker := &fakeChecker{outputItem: domain.DiagnosticItem{
		ID:      "output_dir",
		Status:  domain.DiagnosticStatusFail,
		Message: "Output location is not writable: /readonly",
	}}
	app := newTestApp(&fakePipeline{}, checker, domain.DiagnosticReport{})

	if err := app.Preflight(context.Background(), "/readonly/out"); err == nil {
		t.Fatal("expected preflight failure for unwritable output location")
	}
	if checker.calls != 0 {
		t.Fatal("compatibility probe should not run after failed output check")
	}
	if !app.Diagnostics.HasFailures {
		t.Fatal("report should record the output-location failure")
	}
}

// TestListModelsMarksLocalArchives smoke-tests catalog exposure.
func TestListModelsMarksLocalArchives(t *testing.T) {
	app := newTestApp(&fakePipeline{}, &fakeChecker{}, domain.DiagnosticReport{})
	models := app.ListModels()
	if len(models) == 0 {
		t.Fatal("expected built-in models")
	}
}
