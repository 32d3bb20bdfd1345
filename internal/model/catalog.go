package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"assembly-polisher/internal/domain"
)

const modelStoreURL = "https://assembly-polisher-models.s3.amazonaws.com/"

// builtinCatalog lists the model archives shipped for supported
// basecaller/pore combinations. The *_rle entries operate on
// run-length-encoded input and carry their own aligner settings.
var builtinCatalog = []domain.ModelOption{
	{
		ID:          "r941_min_fast_g303",
		FileName:    "r941_min_fast_g303_model.tar.gz",
		URL:         modelStoreURL + "r941_min_fast_g303_model.tar.gz",
		Description: "MinION R9.4.1, fast basecaller.",
	},
	{
		ID:          "r941_min_high_g303",
		FileName:    "r941_min_high_g303_model.tar.gz",
		URL:         modelStoreURL + "r941_min_high_g303_model.tar.gz",
		Description: "MinION R9.4.1, high-accuracy basecaller (Guppy 3.0.3).",
	},
	{
		ID:          "r941_min_high_g360",
		FileName:    "r941_min_high_g360_model.tar.gz",
		URL:         modelStoreURL + "r941_min_high_g360_model.tar.gz",
		Description: "MinION R9.4.1, high-accuracy basecaller (Guppy 3.6.0).",
	},
	{
		ID:          "r941_prom_fast_g303",
		FileName:    "r941_prom_fast_g303_model.tar.gz",
		URL:         modelStoreURL + "r941_prom_fast_g303_model.tar.gz",
		Description: "PromethION R9.4.1, fast basecaller.",
	},
	{
		ID:          "r941_prom_high_g360",
		FileName:    "r941_prom_high_g360_model.tar.gz",
		URL:         modelStoreURL + "r941_prom_high_g360_model.tar.gz",
		Description: "PromethION R9.4.1, high-accuracy basecaller.",
	},
	{
		ID:          "r103_prom_high_g360",
		FileName:    "r103_prom_high_g360_model.tar.gz",
		URL:         modelStoreURL + "r103_prom_high_g360_model.tar.gz",
		Description: "PromethION R10.3, high-accuracy basecaller.",
	},
	{
		ID:          "r941_min_high_g340_rle",
		FileName:    "r941_min_high_g340_rle_model.tar.gz",
		URL:         modelStoreURL + "r941_min_high_g340_rle_model.tar.gz",
		RequiresRLE: true,
		AlignParams: []string{"-M", "2", "-S", "4", "-O", "4,24", "-E", "2,1"},
		Description: "MinION R9.4.1, run-length-encoded consensus model.",
	},
	{
		ID:          "r941_min_variant_g360",
		FileName:    "r941_min_variant_g360_model.tar.gz",
		URL:         modelStoreURL + "r941_min_variant_g360_model.tar.gz",
		Description: "MinION R9.4.1 variant-calling model.",
	},
	{
		ID:          "r941_prom_variant_g360",
		FileName:    "r941_prom_variant_g360_model.tar.gz",
		URL:         modelStoreURL + "r941_prom_variant_g360_model.tar.gz",
		Description: "PromethION R9.4.1 variant-calling model.",
	},
}

const (
	defaultConsensusModel = "r941_min_high_g360"
	defaultVariantModel   = "r941_prom_variant_g360"
)

// Catalog holds the known models, keyed by identifier.
type Catalog struct {
	options []domain.ModelOption
}

// NewCatalog returns a catalog with the built-in model set.
func NewCatalog() *Catalog {
	options := make([]domain.ModelOption, len(builtinCatalog))
	copy(options, builtinCatalog)
	return &Catalog{options: options}
}

// Merge adds extra models to the catalog; an entry whose ID matches an
// existing model replaces it.
func (c *Catalog) Merge(extra []domain.ModelOption) {
	for _, opt := range extra {
		replaced := false
		for i := range c.options {
			if c.options[i].ID == opt.ID {
				c.options[i] = opt
				replaced = true
				break
			}
		}
		if !replaced {
			c.options = append(c.options, opt)
		}
	}
}

// List returns all catalog entries, marking those whose archive is
// already present in one of the given model directories.
func (c *Catalog) List(modelDirs ...string) []domain.ModelOption {
	options := make([]domain.ModelOption, len(c.options))
	copy(options, c.options)

	for i := range options {
		for _, dir := range modelDirs {
			candidate := filepath.Join(dir, options[i].FileName)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			options[i].Downloaded = true
			options[i].LocalPath = candidate
			break
		}
	}
	return options
}

// ByID looks up a model by its catalog identifier.
func (c *Catalog) ByID(id string) (domain.ModelOption, bool) {
	for _, opt := range c.options {
		if opt.ID == id {
			return opt, true
		}
	}
	return domain.ModelOption{}, false
}

// DefaultConsensusModel returns the identifier used when no model is
// configured anywhere.
func (c *Catalog) DefaultConsensusModel() string { return defaultConsensusModel }

// DefaultVariantModel returns the identifier of the default
// variant-calling model.
func (c *Catalog) DefaultVariantModel() string { return defaultVariantModel }

// catalogFile is the YAML layout of a catalog override file.
type catalogFile struct {
	Models []domain.ModelOption `yaml:"models"`
}

// LoadCatalogFile reads extra model definitions from a YAML file.
func LoadCatalogFile(path string) ([]domain.ModelOption, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file catalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse model catalog %s: %w", path, err)
	}

	for i, opt := range file.Models {
		if strings.TrimSpace(opt.ID) == "" {
			return nil, fmt.Errorf("model catalog %s: entry %d has no id", path, i)
		}
	}
	return file.Models, nil
}
