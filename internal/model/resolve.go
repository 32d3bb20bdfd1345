package model

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"assembly-polisher/internal/domain"
)

// Inspector reports the properties of a trained-model archive that the
// driver cannot know itself: whether the model consumes run-length-encoded
// input and which aligner settings it was trained against.
type Inspector interface {
	Inspect(ctx context.Context, archivePath string) (domain.ModelOption, error)
}

// downloadFunc fetches one model archive into a directory.
type downloadFunc func(dir string, opt domain.ModelOption, timeout time.Duration) (string, error)

// Resolver maps a symbolic model name or archive path to a canonical
// model description, fetching catalog archives on demand.
type Resolver struct {
	catalog   *Catalog
	inspector Inspector
	modelDir  string
	stat      func(string) (os.FileInfo, error)
	download  downloadFunc
	logf      func(format string, args ...any)
}

// NewResolver builds a resolver over the given catalog. modelDir is
// where downloaded catalog archives live.
func NewResolver(catalog *Catalog, inspector Inspector, modelDir string) *Resolver {
	return &Resolver{
		catalog:   catalog,
		inspector: inspector,
		modelDir:  modelDir,
		stat:      os.Stat,
		download:  Download,
		logf:      log.Printf,
	}
}

// Resolve returns the model description for ref. An empty ref selects
// the default consensus model; a catalog identifier selects that entry,
// downloading its archive into the model directory when absent; anything
// else must be a path to a trained-model archive, which is introspected
// via the external toolkit.
func (r *Resolver) Resolve(ctx context.Context, ref string) (domain.ModelOption, error) {
	name := strings.TrimSpace(ref)
	if name == "" {
		name = r.catalog.DefaultConsensusModel()
	}

	if opt, ok := r.catalog.ByID(name); ok {
		return r.resolveCatalogModel(opt)
	}

	info, err := r.stat(name)
	if err != nil {
		return domain.ModelOption{}, fmt.Errorf("unknown model %q: not a catalog name or readable archive", ref)
	}
	if info.IsDir() {
		return domain.ModelOption{}, fmt.Errorf("model path is a directory: %s", name)
	}

	opt, err := r.inspector.Inspect(ctx, name)
	if err != nil {
		return domain.ModelOption{}, fmt.Errorf("inspect model archive %s: %w", name, err)
	}
	return opt, nil
}

// resolveCatalogModel locates the entry's archive in the model
// directory, fetching it first when missing.
func (r *Resolver) resolveCatalogModel(opt domain.ModelOption) (domain.ModelOption, error) {
	archive := filepath.Join(r.modelDir, opt.FileName)
	if info, err := r.stat(archive); err == nil && !info.IsDir() {
		opt.Downloaded = true
		opt.LocalPath = archive
		return opt, nil
	}

	// Entries without a URL are handed to the consensus caller by
	// identifier and resolved by the toolkit itself.
	if opt.URL == "" {
		return opt, nil
	}

	r.logf("fetching model %s from %s", opt.ID, opt.URL)
	path, err := r.download(r.modelDir, opt, DefaultDownloadTimeout)
	if err != nil {
		return domain.ModelOption{}, fmt.Errorf("fetch model %s: %w", opt.ID, err)
	}

	opt.Downloaded = true
	opt.LocalPath = path
	return opt, nil
}

// NewResolverForTests builds a resolver with an injected downloader.
func NewResolverForTests(catalog *Catalog, inspector Inspector, modelDir string, download downloadFunc) *Resolver {
	return &Resolver{
		catalog:   catalog,
		inspector: inspector,
		modelDir:  modelDir,
		stat:      os.Stat,
		download:  download,
		logf:      func(format string, args ...any) {},
	}
}
