package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"assembly-polisher/internal/config"
	"assembly-polisher/internal/diagnostics"
	"assembly-polisher/internal/domain"
	"assembly-polisher/internal/jobs"
	"assembly-polisher/internal/model"
	"assembly-polisher/internal/polish"
)

// catalogOverrideName is the optional per-user YAML file registering
// extra models alongside the built-in catalog.
const catalogOverrideName = "models.yaml"

// pipelineRunner isolates the polishing pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req polish.Request) (polish.Result, error)
}

// App wires configuration, the model catalog, run tracking and the
// pipeline for the CLI.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Pipeline    pipelineRunner
	Catalog     *model.Catalog
	Diagnostics domain.DiagnosticReport

	checker preflightChecker
	events  *jobs.EventBus
	logger  *log.Logger
}

// preflightChecker covers the per-run checks that depend on the parsed
// options: output-location writability and the toolkit version probe.
type preflightChecker interface {
	CheckCompatibility(ctx context.Context) error
	CheckOutputLocation(outputDir string) domain.DiagnosticItem
}

// configDirPath returns the per-user configuration directory.
func configDirPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(homeDir, ".assembly-polisher"), nil
}

// SettingsOrDefaults returns persisted settings for seeding flag
// defaults before the app exists. An unreadable settings file yields
// the built-in defaults here; the load error surfaces in New.
func SettingsOrDefaults() domain.Settings {
	configDir, err := configDirPath()
	if err != nil {
		return config.DefaultSettings()
	}
	return config.LoadOrDefaults(config.NewJSONStore(filepath.Join(configDir, "settings.json")))
}

// New builds the application with persisted settings and preflight
// diagnostics.
func New() (*App, error) {
	configDir, err := configDirPath()
	if err != nil {
		return nil, err
	}

	store := config.NewJSONStore(filepath.Join(configDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	catalog := model.NewCatalog()
	extra, err := model.LoadCatalogFile(filepath.Join(configDir, catalogOverrideName))
	switch {
	case err == nil:
		catalog.Merge(extra)
	case !diagnostics.IsNotExist(err):
		return nil, fmt.Errorf("load model catalog override: %w", err)
	}

	inspector := model.NewToolkitInspector(diagnostics.ToolkitTool)
	resolver := model.NewResolver(catalog, inspector, settings.ModelDir)

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Pipeline:    polish.NewPipeline(resolver),
		Catalog:     catalog,
		Diagnostics: report,
		checker:     checker,
		events:      jobs.NewEventBus(1000),
		logger:      log.New(os.Stderr, "", log.LstdFlags),
	}, nil
}

// Preflight fails when any diagnostic check failed, the run's output
// location is unusable, or the installed components are mutually
// incompatible. Nothing may run after a failure.
func (a *App) Preflight(ctx context.Context, outputDir string) error {
	items := append([]domain.DiagnosticItem{}, a.Diagnostics.Items...)
	items = append(items, a.checker.CheckOutputLocation(outputDir))

	failed := false
	for _, item := range items {
		if item.Status != domain.DiagnosticStatusFail {
			continue
		}
		failed = true
		a.logger.Printf("preflight: %s", item.Message)
		if item.Hint != "" {
			a.logger.Printf("preflight: hint: %s", item.Hint)
		}
	}
	a.Diagnostics.Items = items
	a.Diagnostics.HasFailures = failed
	if failed {
		return errors.New("preflight checks failed")
	}

	return a.checker.CheckCompatibility(ctx)
}

// RunPolish drives one polishing run to completion, tracking its
// lifecycle and recording events for later inspection.
func (a *App) RunPolish(ctx context.Context, cfg domain.RunConfig) (polish.Result, error) {
	run, err := a.Jobs.Start()
	if err != nil {
		return polish.Result{}, err
	}

	a.publishStatus(run.ID, domain.RunStatusResolving, "Run started")

	req := polish.Request{
		Config: cfg,
		OnStage: func(stage string) {
			status := statusForStage(stage)
			if status == "" {
				return
			}
			if err := a.Jobs.Transition(status); err != nil {
				a.logger.Printf("run %s: %v", run.ID, err)
				return
			}
			a.publishStatus(run.ID, status, "Entering stage "+stage)
		},
		OnLog: func(cmdLog polish.CommandLog) {
			a.events.Publish(jobs.Event{
				RunID:    run.ID,
				Type:     jobs.EventTypeLog,
				Command:  cmdLog.Command,
				Args:     cmdLog.Args,
				ExitCode: cmdLog.ExitCode,
				Stdout:   cmdLog.Stdout,
				Stderr:   cmdLog.Stderr,
			})
		},
	}

	result, runErr := a.Pipeline.Run(ctx, req)
	if runErr != nil {
		if ctx.Err() != nil {
			if err := a.Jobs.Cancel(); err == nil {
				a.publishStatus(run.ID, domain.RunStatusCancelled, "Run cancelled")
			}
			return polish.Result{}, runErr
		}

		if err := a.Jobs.Transition(domain.RunStatusFailed); err != nil {
			a.logger.Printf("run %s: %v", run.ID, err)
		}
		a.events.Publish(jobs.Event{
			RunID:   run.ID,
			Type:    jobs.EventTypeError,
			Status:  domain.RunStatusFailed,
			Message: runErr.Error(),
		})
		return polish.Result{}, runErr
	}

	if err := a.Jobs.Transition(domain.RunStatusDone); err != nil {
		a.logger.Printf("run %s: %v", run.ID, err)
	}
	a.events.Publish(jobs.Event{
		RunID:         run.ID,
		Type:          jobs.EventTypeResult,
		Status:        domain.RunStatusDone,
		Message:       fmt.Sprintf("Polished assembly written (%d stages run, %d reused)", len(result.Executed), len(result.Skipped)),
		ConsensusPath: result.ConsensusPath,
	})
	return result, nil
}

// Events returns recorded run events after the given sequence number.
func (a *App) Events(since int64) []jobs.Event {
	return a.events.Since(since)
}

// ListModels returns catalog entries, marking locally present archives.
func (a *App) ListModels() []domain.ModelOption {
	return a.Catalog.List(a.Settings.ModelDir)
}

// publishStatus records one lifecycle transition event.
func (a *App) publishStatus(runID string, status domain.RunStatus, message string) {
	a.events.Publish(jobs.Event{
		RunID:   runID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// statusForStage maps pipeline stage names onto run lifecycle states.
func statusForStage(stage string) domain.RunStatus {
	switch stage {
	case polish.StageResolve:
		return domain.RunStatusResolving
	case polish.StageCompress:
		return domain.RunStatusCompressing
	case polish.StageAlign:
		return domain.RunStatusAligning
	case polish.StageInfer:
		return domain.RunStatusInferring
	case polish.StageStitch:
		return domain.RunStatusStitching
	default:
		return ""
	}
}

// NewForTests constructs an app with injected collaborators.
func NewForTests(
	settings domain.Settings,
	store config.Store,
	pipeline pipelineRunner,
	checker preflightChecker,
	report domain.DiagnosticReport,
	logger *log.Logger,
) *App {
	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Pipeline:    pipeline,
		Catalog:     model.NewCatalog(),
		Diagnostics: report,
		checker:     checker,
		events:      jobs.NewEventBus(100),
		logger:      logger,
	}
}
