package config

import (
	"os"
	"path/filepath"
	"strings"

	"assembly-polisher/internal/domain"
)

const (
	// DefaultModel is the consensus model used when no -m flag is given
	// and no model is configured in settings.
	DefaultModel = "r941_min_high_g360"

	// DefaultOutputDir is the fixed output directory name used when
	// no -o flag is given.
	DefaultOutputDir = "polished"

	// DefaultThreads and DefaultBatchSize bound the opaque internal
	// parallelism of the consensus caller and aligner.
	DefaultThreads   = 1
	DefaultBatchSize = 100
)

// DefaultSettings returns baseline local configuration for a first run.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		Model:     DefaultModel,
		ModelDir:  filepath.Join(homeDir, ".assembly-polisher", "models"),
		OutputDir: DefaultOutputDir,
		Threads:   DefaultThreads,
		BatchSize: DefaultBatchSize,
	}
}

// LoadOrDefaults returns the store's settings, falling back to the
// built-in defaults when the store cannot be read. Used to seed CLI
// flag defaults, where a corrupt settings file must not block usage
// output; the load error itself surfaces when the app starts.
func LoadOrDefaults(store Store) domain.Settings {
	settings, err := store.Load()
	if err != nil {
		return DefaultSettings()
	}
	return settings
}

// Normalize fills empty or out-of-range fields with defaults so that
// hand-edited settings files cannot produce an unusable run.
func Normalize(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()

	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = def.Model
	}
	if strings.TrimSpace(cfg.ModelDir) == "" {
		cfg.ModelDir = def.ModelDir
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.Threads < 1 {
		cfg.Threads = def.Threads
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}

	return cfg
}
