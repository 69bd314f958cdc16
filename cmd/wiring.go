package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/shapeset/internal/config"
	"github.com/sells-group/shapeset/internal/dataset"
	"github.com/sells-group/shapeset/internal/db"
	"github.com/sells-group/shapeset/internal/dbf"
	"github.com/sells-group/shapeset/internal/fetcher"
	"github.com/sells-group/shapeset/internal/importer"
	"github.com/sells-group/shapeset/internal/loader"
	"github.com/sells-group/shapeset/internal/registry"
)

// buildRegistry returns the built-in datasets plus any from the configured
// datasets file.
func buildRegistry(c *config.Config) (*registry.Registry, error) {
	reg := registry.Default()
	if c.Registry.Path == "" {
		return reg, nil
	}
	if err := reg.LoadFile(c.Registry.Path); err != nil {
		return nil, err
	}
	zap.L().Debug("loaded datasets file", zap.String("path", c.Registry.Path), zap.Int("datasets", len(reg.IDs())))
	return reg, nil
}

func buildAssembler(c *config.Config) *dataset.Assembler {
	return dataset.NewAssembler(dataset.Options{
		MaxEntryBytes: c.Fetch.MaxEntryBytes,
		Table:         dbf.Options{LenientDates: c.Import.LenientDates},
	})
}

func buildSource(c *config.Config) *dataset.Source {
	multi := fetcher.NewMulti(
		fetcher.HTTPOptions{
			UserAgent:  c.Fetch.UserAgent,
			Timeout:    c.Fetch.Timeout(),
			MaxRetries: c.Fetch.MaxRetries,
			RateLimit:  rate.Limit(c.Fetch.RateLimit),
		},
		fetcher.FTPOptions{
			Timeout:    c.Fetch.Timeout(),
			MaxRetries: c.Fetch.MaxRetries,
		},
	)
	return dataset.NewSource(multi, c.Fetch.MaxArchiveBytes)
}

// openPool connects to the configured PostGIS database.
func openPool(ctx context.Context, c *config.Config) (*pgxpool.Pool, error) {
	if c.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url or SHAPESET_STORE_DATABASE_URL)")
	}
	return db.Connect(ctx, c.Store.DatabaseURL, db.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
}

func newLoader(pool db.Pool, c *config.Config) *loader.Loader {
	return loader.New(pool, loader.Options{
		Schema:    c.Store.Schema,
		BatchSize: c.Store.BatchSize,
	})
}

// importEnv holds the collaborators of an import run.
type importEnv struct {
	Registry *registry.Registry
	Importer *importer.Importer
	pool     *pgxpool.Pool
}

// Close releases the database pool, if any.
func (e *importEnv) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// initImport wires the importer. With withStore the database is connected
// and migrated; without it only dry runs can succeed.
func initImport(ctx context.Context, c *config.Config, withStore bool) (*importEnv, error) {
	reg, err := buildRegistry(c)
	if err != nil {
		return nil, err
	}

	env := &importEnv{Registry: reg}
	var store importer.Store
	if withStore {
		pool, err := openPool(ctx, c)
		if err != nil {
			return nil, err
		}
		env.pool = pool

		ld := newLoader(pool, c)
		if err := ld.Migrate(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "migrate")
		}
		store = ld
	}

	env.Importer = importer.New(reg, buildSource(c), buildAssembler(c), store)
	return env, nil
}

// readArchive reads a local bundle for the offline commands.
func readArchive(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read archive %s", path)
	}
	return data, nil
}
