package polish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"assembly-polisher/internal/domain"
)

// Stage names, in pipeline order. Compression only runs for models
// that consume run-length-encoded input.
const (
	StageResolve  = "resolve"
	StageCompress = "compress"
	StageAlign    = "align"
	StageInfer    = "infer"
	StageStitch   = "stitch"
)

// Fixed artifact names inside the output directory. Existence of an
// artifact is what marks its stage as complete.
const (
	rleBasecallsName = "basecalls_rle.fasta.gz"
	rleDraftName     = "draft_rle.fasta.gz"
	alignPrefixName  = "calls_to_draft"
	probsName        = "consensus_probs.hdf"
	consensusName    = "consensus.fasta"
)

// Request contains one run's configuration and execution callbacks.
type Request struct {
	Config  domain.RunConfig
	OnStage func(stage string)
	OnLog   func(log CommandLog)
}

// Result contains output artifact paths and a record of which stages
// actually executed versus reused existing outputs.
type Result struct {
	Model         domain.ModelOption
	AlignmentPath string
	ProbsPath     string
	ConsensusPath string
	Executed      []string
	Skipped       []string
	Logs          []CommandLog
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for the CLI and logs.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// modelResolver maps a model reference to its canonical description.
type modelResolver interface {
	Resolve(ctx context.Context, ref string) (domain.ModelOption, error)
}

// Pipeline orchestrates alignment, consensus inference and stitching
// around an optional run-length compression step. Stages whose outputs
// already exist are skipped unless an upstream stage has re-executed.
type Pipeline struct {
	alignerPath string
	toolkitPath string
	runner      commandRunner
	models      modelResolver
	stat        func(name string) (os.FileInfo, error)
	mkdirAll    func(path string, perm os.FileMode) error
	logf        func(format string, args ...any)
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(models modelResolver) *Pipeline {
	return &Pipeline{
		alignerPath: "mini_align",
		toolkitPath: "polisher",
		runner:      &execRunner{},
		models:      models,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		logf:        log.Printf,
	}
}

// Run executes the polishing stages in order, threading the force state
// forward: once any stage runs, every later stage runs too.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	cfg := req.Config

	if strings.TrimSpace(cfg.BasecallsPath) == "" {
		return Result{}, &PipelineError{
			Stage:   StageResolve,
			Message: "basecalls path is required",
		}
	}
	if strings.TrimSpace(cfg.DraftPath) == "" {
		return Result{}, &PipelineError{
			Stage:   StageResolve,
			Message: "draft assembly path is required",
		}
	}
	for _, input := range []string{cfg.BasecallsPath, cfg.DraftPath} {
		if _, err := p.stat(input); err != nil {
			return Result{}, &PipelineError{
				Stage:   StageResolve,
				Message: fmt.Sprintf("cannot access input file: %s", input),
				Err:     err,
			}
		}
	}

	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 100
	}

	emitStage(req.OnStage, StageResolve)
	model, err := p.models.Resolve(ctx, cfg.Model)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   StageResolve,
			Message: err.Error(),
			Err:     err,
		}
	}

	if err := p.prepareOutputDir(cfg.OutputDir, cfg.Force); err != nil {
		return Result{}, err
	}

	st := &runState{req: req}
	force := cfg.Force
	reads := cfg.BasecallsPath
	draft := cfg.DraftPath
	gapFill, fillChar := effectiveGapFill(cfg, model)

	if model.RequiresRLE {
		rleReads := filepath.Join(cfg.OutputDir, rleBasecallsName)
		rleDraft := filepath.Join(cfg.OutputDir, rleDraftName)
		executed, err := p.runStage(ctx, st, force, stageSpec{
			name:    StageCompress,
			outputs: []string{rleReads, rleDraft},
			failMsg: "run-length compression failed",
			commands: [][]string{
				buildCompressArgs(p.toolkitPath, reads, rleReads, threads),
				buildCompressArgs(p.toolkitPath, draft, rleDraft, threads),
			},
		})
		if err != nil {
			return Result{}, err
		}
		force = force || executed
		reads, draft = rleReads, rleDraft
	}

	alignPrefix := filepath.Join(cfg.OutputDir, alignPrefixName)
	bamPath := alignPrefix + ".bam"
	executed, err := p.runStage(ctx, st, force, stageSpec{
		name:    StageAlign,
		outputs: []string{bamPath, bamPath + ".bai"},
		failMsg: "failed to align basecalls to draft",
		commands: [][]string{
			buildAlignArgs(p.alignerPath, reads, draft, alignPrefix, threads, model.AlignParams, cfg.ForceIndex),
		},
	})
	if err != nil {
		return Result{}, err
	}
	force = force || executed

	probsPath := filepath.Join(cfg.OutputDir, probsName)
	executed, err = p.runStage(ctx, st, force, stageSpec{
		name:    StageInfer,
		outputs: []string{probsPath},
		failMsg: "failed to run consensus inference",
		commands: [][]string{
			buildConsensusArgs(p.toolkitPath, bamPath, probsPath, model.Ref(), batchSize, threads),
		},
	})
	if err != nil {
		return Result{}, err
	}
	force = force || executed

	consensusPath := filepath.Join(cfg.OutputDir, consensusName)
	if _, err = p.runStage(ctx, st, force, stageSpec{
		name:    StageStitch,
		outputs: []string{consensusPath},
		failMsg: "failed to stitch consensus chunks",
		commands: [][]string{
			buildStitchArgs(p.toolkitPath, probsPath, draft, consensusPath, threads, gapFill, fillChar),
		},
	}); err != nil {
		return Result{}, err
	}

	return Result{
		Model:         model,
		AlignmentPath: bamPath,
		ProbsPath:     probsPath,
		ConsensusPath: consensusPath,
		Executed:      st.executed,
		Skipped:       st.skipped,
		Logs:          st.logs,
	}, nil
}

// runState accumulates per-run bookkeeping across stages.
type runState struct {
	req      Request
	executed []string
	skipped  []string
	logs     []CommandLog
}

// stageSpec declares one stage: its outputs and the commands producing them.
type stageSpec struct {
	name     string
	outputs  []string
	failMsg  string
	commands [][]string
}

// runStage skips the stage when every output exists and no upstream
// force is active, otherwise runs its commands in order and verifies
// the declared outputs appeared.
func (p *Pipeline) runStage(ctx context.Context, st *runState, force bool, spec stageSpec) (bool, error) {
	emitStage(st.req.OnStage, spec.name)

	if !force && p.outputsExist(spec.outputs) {
		p.logf("%s: found %s, skipping", spec.name, strings.Join(spec.outputs, ", "))
		st.skipped = append(st.skipped, spec.name)
		return false, nil
	}

	for _, argv := range spec.commands {
		result, runErr := p.runner.Run(ctx, argv[0], argv[1:]...)
		cmdLog := CommandLog{
			Command:  argv[0],
			Args:     argv[1:],
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
		st.logs = append(st.logs, cmdLog)
		emitLog(st.req.OnLog, cmdLog)
		if runErr != nil {
			return false, &PipelineError{
				Stage:      spec.name,
				Message:    spec.failMsg,
				CommandLog: cmdLog,
				Err:        runErr,
			}
		}
	}

	for _, output := range spec.outputs {
		if _, err := p.stat(output); err != nil {
			return false, &PipelineError{
				Stage:   spec.name,
				Message: fmt.Sprintf("stage completed but output is missing: %s", output),
				Err:     err,
			}
		}
	}

	st.executed = append(st.executed, spec.name)
	return true, nil
}

// outputsExist reports whether every artifact of a stage is present.
func (p *Pipeline) outputsExist(outputs []string) bool {
	for _, output := range outputs {
		if _, err := p.stat(output); err != nil {
			return false
		}
	}
	return true
}

// prepareOutputDir creates the output directory or warns when reusing
// a populated one. Overwriting is left to per-stage existence checks,
// never a bulk delete.
func (p *Pipeline) prepareOutputDir(dir string, force bool) error {
	if strings.TrimSpace(dir) == "" {
		return &PipelineError{
			Stage:   StageResolve,
			Message: "output directory is required",
		}
	}

	info, err := p.stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return &PipelineError{
			Stage:   StageResolve,
			Message: fmt.Sprintf("output path exists and is not a directory: %s", dir),
		}
	case err == nil && force:
		p.logf("warning: output directory %s exists, existing outputs will be overwritten", dir)
	case err == nil:
		p.logf("warning: output directory %s exists, completed outputs will be reused", dir)
	case errors.Is(err, fs.ErrNotExist):
		if err := p.mkdirAll(dir, 0o755); err != nil {
			return &PipelineError{
				Stage:   StageResolve,
				Message: fmt.Sprintf("cannot create output directory: %s", dir),
				Err:     err,
			}
		}
	default:
		return &PipelineError{
			Stage:   StageResolve,
			Message: fmt.Sprintf("cannot access output directory: %s", dir),
			Err:     err,
		}
	}
	return nil
}

// effectiveGapFill applies the gap-fill precedence rules. A literal fill
// character always wins; run-length models disable draft fill because
// the stitched coordinates no longer match the raw draft sequence.
func effectiveGapFill(cfg domain.RunConfig, model domain.ModelOption) (domain.GapFillPolicy, string) {
	if cfg.FillChar != "" {
		return domain.GapFillChar, cfg.FillChar
	}

	policy := cfg.GapFill
	if policy == "" {
		policy = domain.GapFillDraft
	}
	if model.RequiresRLE && policy == domain.GapFillDraft {
		policy = domain.GapFillNone
	}
	return policy, ""
}

// emitStage forwards stage updates when a callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitLog forwards command logs when a callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// buildCompressArgs builds the run-length compression invocation for
// one sequence file.
func buildCompressArgs(toolkit, input, output string, threads int) []string {
	return []string{
		toolkit, "compress",
		input,
		"--output", output,
		"--threads", strconv.Itoa(threads),
	}
}

// buildAlignArgs builds the aligner invocation producing an indexed
// alignment at prefix.bam/.bai. alignParams carries the resolved
// model's recommended settings verbatim.
func buildAlignArgs(aligner, reads, draft, prefix string, threads int, alignParams []string, forceIndex bool) []string {
	args := []string{
		aligner,
		"-i", reads,
		"-r", draft,
		"-p", prefix,
		"-t", strconv.Itoa(threads),
		"-m",
	}
	args = append(args, alignParams...)
	if forceIndex {
		args = append(args, "-f")
	}
	return args
}

// buildConsensusArgs builds the neural inference invocation.
func buildConsensusArgs(toolkit, bam, probs, modelRef string, batchSize, threads int) []string {
	return []string{
		toolkit, "consensus",
		bam,
		probs,
		"--model", modelRef,
		"--batch_size", strconv.Itoa(batchSize),
		"--threads", strconv.Itoa(threads),
	}
}

// buildStitchArgs builds the stitcher invocation assembling the final
// consensus sequence.
func buildStitchArgs(toolkit, probs, draft, output string, threads int, gapFill domain.GapFillPolicy, fillChar string) []string {
	args := []string{
		toolkit, "stitch",
		probs,
		draft,
		output,
		"--threads", strconv.Itoa(threads),
	}

	switch gapFill {
	case domain.GapFillNone:
		args = append(args, "--no-fillgaps")
	case domain.GapFillChar:
		args = append(args, "--fill-char", fillChar)
	}
	return args
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	alignerPath string,
	toolkitPath string,
	runner commandRunner,
	models modelResolver,
	logf func(format string, args ...any),
) *Pipeline {
	if logf == nil {
		logf = func(format string, args ...any) {}
	}
	return &Pipeline{
		alignerPath: alignerPath,
		toolkitPath: toolkitPath,
		runner:      runner,
		models:      models,
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		logf:        logf,
	}
}
