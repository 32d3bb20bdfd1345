package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"assembly-polisher/internal/domain"
)

// Tool names the driver expects on PATH. The aligner and toolkit do the
// real work; samtools backs the aligner's sorting and indexing.
const (
	AlignerTool = "mini_align"
	ToolkitTool = "polisher"
	SortingTool = "samtools"
)

// Checker validates external tools and required filesystem locations.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	runCheck   func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		runCheck: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Run executes all preflight checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(AlignerTool),
		c.checkTool(ToolkitTool),
		c.checkTool(SortingTool),
		c.checkModelDir(settings.ModelDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// CheckCompatibility asks the toolkit whether the installed components
// (aligner, caller, their shared libraries) are mutually compatible.
// A non-zero exit means the environment must not run any stage.
func (c *Checker) CheckCompatibility(ctx context.Context) error {
	out, err := c.runCheck(ctx, ToolkitTool, "version", "--check")
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			return fmt.Errorf("component version check failed: %w", err)
		}
		return fmt.Errorf("component version check failed: %s: %w", detail, err)
	}
	return nil
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before starting a polishing run.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkModelDir validates the configured model directory. A missing
// directory passes with a note since catalog models download on demand.
func (c *Checker) checkModelDir(modelDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model_dir",
		Name: "Model directory",
	}

	if strings.TrimSpace(modelDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Model directory is empty."
		item.Hint = "Set a directory where downloaded model archives are stored."
		return item
	}

	info, err := c.stat(modelDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model directory will be created on first download: %s", modelDir)
			return item
		}
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot access model directory: %s", modelDir)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Model directory is not a directory: %s", modelDir)
		item.Hint = "Point the model directory setting at a directory, not a file."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Model directory: %s", modelDir)
	return item
}

// CheckOutputLocation validates that the run's output directory exists
// or can be created, by write-probing the nearest existing ancestor.
// The directory itself is not created here; the pipeline owns creation
// so its reuse/overwrite reporting stays accurate.
func (c *Checker) CheckOutputLocation(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where pipeline artifacts can be written."
		return item
	}

	probeDir := filepath.Clean(outputDir)
	for {
		info, err := c.stat(probeDir)
		if err == nil {
			if !info.IsDir() {
				item.Status = domain.DiagnosticStatusFail
				item.Message = fmt.Sprintf("Output location is not a directory: %s", probeDir)
				item.Hint = "Point -o at a directory, not a file."
				return item
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Cannot access output location: %s", probeDir)
			item.Hint = "Check permissions on the output path."
			return item
		}
		parent := filepath.Dir(probeDir)
		if parent == probeDir {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Cannot access output location: %s", outputDir)
			item.Hint = "Check permissions on the output path."
			return item
		}
		probeDir = parent
	}

	tmpFile, err := c.createTemp(probeDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output location is not writable: %s", probeDir)
		item.Hint = "Choose a writable directory for pipeline artifacts."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable location: %s", probeDir)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	runCheck func(ctx context.Context, name string, args ...string) ([]byte, error),
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		createTemp: createTemp,
		remove:     remove,
		runCheck:   runCheck,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
