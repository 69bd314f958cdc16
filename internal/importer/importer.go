// Package importer runs the fetch, assemble and load steps for registered
// datasets.
package importer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shapeset/internal/dataset"
	"github.com/sells-group/shapeset/internal/loader"
	"github.com/sells-group/shapeset/internal/registry"
)

// DefaultConcurrency bounds ImportAll when no limit is given.
const DefaultConcurrency = 2

// ArchiveSource downloads a dataset archive.
type ArchiveSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store persists assembled shapes. *loader.Loader implements it.
type Store interface {
	Load(ctx context.Context, datasetID string, shapes []dataset.Shape) (loader.Result, error)
}

// Options configures one import run.
type Options struct {
	DryRun bool
}

// Result is the outcome of importing one dataset.
type Result struct {
	Dataset  registry.Dataset
	Summary  dataset.Summary
	Shapes   []dataset.Shape
	Load     *loader.Result
	DryRun   bool
	Duration time.Duration
}

// Importer wires a registry, a source, an assembler and a store.
type Importer struct {
	registry  *registry.Registry
	source    ArchiveSource
	assembler *dataset.Assembler
	store     Store
}

// New creates an Importer. store may be nil when only dry runs are used.
func New(reg *registry.Registry, source ArchiveSource, assembler *dataset.Assembler, store Store) *Importer {
	return &Importer{registry: reg, source: source, assembler: assembler, store: store}
}

// Import fetches, assembles and loads one dataset. A dry run stops after
// assembly.
func (im *Importer) Import(ctx context.Context, id string, opts Options) (*Result, error) {
	ds, ok := im.registry.Get(id)
	if !ok {
		return nil, eris.Errorf("importer: unknown dataset %q", id)
	}
	if !opts.DryRun && im.store == nil {
		return nil, eris.Errorf("importer: no store configured for %q", id)
	}

	log := zap.L().With(
		zap.String("component", "importer"),
		zap.String("dataset", ds.ID),
		zap.Bool("dry_run", opts.DryRun),
	)
	start := time.Now()

	archive, err := im.source.Fetch(ctx, ds.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: fetch %s", ds.ID)
	}
	log.Debug("importer: archive fetched", zap.Int("bytes", len(archive)))

	shapes, err := im.assembler.Assemble(archive, ds.NameField)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: assemble %s", ds.ID)
	}

	res := &Result{
		Dataset: ds,
		Summary: dataset.Summarize(shapes),
		Shapes:  shapes,
		DryRun:  opts.DryRun,
	}

	if !opts.DryRun {
		lr, err := im.store.Load(ctx, ds.ID, shapes)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: load %s", ds.ID)
		}
		res.Load = &lr
	}

	res.Duration = time.Since(start)
	log.Info("importer: dataset imported",
		zap.Int("shapes", res.Summary.Shapes),
		zap.Int("placeholders", res.Summary.Placeholders),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// ImportAll imports ids in parallel, at most concurrency at a time. Every id
// is checked against the registry before any work starts. The first failure
// cancels the remaining imports. Results are in the order of ids.
func (im *Importer) ImportAll(ctx context.Context, ids []string, concurrency int, opts Options) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	for _, id := range ids {
		if _, ok := im.registry.Get(id); !ok {
			return nil, eris.Errorf("importer: unknown dataset %q", id)
		}
	}

	results := make([]*Result, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res, err := im.Import(gCtx, id, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
