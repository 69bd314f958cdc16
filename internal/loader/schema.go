package loader

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Table names inside the loader schema.
const (
	ShapesTable = "shapes"
	StatusTable = "load_status"
)

// Migrate creates the schema, the shapes table with its spatial index, and
// the load status table. PostGIS must already be installed.
func (l *Loader) Migrate(ctx context.Context) error {
	schema := pgx.Identifier{l.opts.Schema}.Sanitize()
	shapes := l.table(ShapesTable).Sanitize()
	status := l.table(StatusTable).Sanitize()
	index := pgx.Identifier{fmt.Sprintf("idx_%s_geom", ShapesTable)}.Sanitize()

	statements := []struct {
		name string
		sql  string
	}{
		{"schema", fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)},
		{"shapes table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset_id TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			name       TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			geom       geometry(Geometry, %d),
			run_id     TEXT NOT NULL,
			PRIMARY KEY (dataset_id, seq)
		)`, shapes, l.opts.SRID)},
		{"shapes index", fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)", index, shapes)},
		{"status table", fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset_id   TEXT PRIMARY KEY,
			run_id       TEXT NOT NULL,
			row_count    INTEGER NOT NULL,
			placeholders INTEGER NOT NULL,
			loaded_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			duration_ms  INTEGER
		)`, status)},
	}

	for _, s := range statements {
		if _, err := l.pool.Exec(ctx, s.sql); err != nil {
			return eris.Wrapf(err, "loader: create %s", s.name)
		}
	}
	l.log.Info("loader: schema ready", zap.String("schema", l.opts.Schema))
	return nil
}

func (l *Loader) table(name string) pgx.Identifier {
	return pgx.Identifier{l.opts.Schema, name}
}
