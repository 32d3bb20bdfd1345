package model

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"assembly-polisher/internal/domain"
)

// toolRunner abstracts the toolkit subprocess for testability.
type toolRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execToolRunner runs the toolkit via os/exec and captures stdout.
type execToolRunner struct{}

func (execToolRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ToolkitInspector asks the external toolkit to describe a model archive.
type ToolkitInspector struct {
	toolkitPath string
	runner      toolRunner
}

// NewToolkitInspector builds the production inspector.
func NewToolkitInspector(toolkitPath string) *ToolkitInspector {
	return &ToolkitInspector{
		toolkitPath: toolkitPath,
		runner:      execToolRunner{},
	}
}

// archiveMeta is the YAML document printed by `tools inspect`.
type archiveMeta struct {
	RequiresRLE bool     `yaml:"requires_rle"`
	AlignParams []string `yaml:"align_params"`
}

// Inspect queries the toolkit for the archive's input encoding and
// recommended aligner settings.
func (i *ToolkitInspector) Inspect(ctx context.Context, archivePath string) (domain.ModelOption, error) {
	out, err := i.runner.Output(ctx, i.toolkitPath, "tools", "inspect", archivePath)
	if err != nil {
		return domain.ModelOption{}, fmt.Errorf("run %s tools inspect: %w", i.toolkitPath, err)
	}

	var meta archiveMeta
	if err := yaml.Unmarshal(out, &meta); err != nil {
		return domain.ModelOption{}, fmt.Errorf("parse inspect output: %w", err)
	}

	base := filepath.Base(archivePath)
	id := strings.TrimSuffix(strings.TrimSuffix(base, ".tar.gz"), ".hdf5")
	return domain.ModelOption{
		ID:          id,
		FileName:    base,
		RequiresRLE: meta.RequiresRLE,
		AlignParams: meta.AlignParams,
		Downloaded:  true,
		LocalPath:   archivePath,
	}, nil
}

// NewToolkitInspectorForTests builds an inspector with an injected runner.
func NewToolkitInspectorForTests(toolkitPath string, runner toolRunner) *ToolkitInspector {
	return &ToolkitInspector{toolkitPath: toolkitPath, runner: runner}
}
