// Package loader stores assembled shapes in PostGIS and tracks one status
// row per dataset.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/dataset"
	"github.com/sells-group/shapeset/internal/db"
)

// DefaultSchema holds the loader tables when none is configured.
const DefaultSchema = "shapeset"

var shapeColumns = []string{"dataset_id", "seq", "name", "metadata", "geom", "run_id"}

// Options configures a Loader.
type Options struct {
	Schema    string
	BatchSize int
	SRID      int
}

// Result describes one completed load.
type Result struct {
	RunID        string
	Total        int64
	Placeholders int
	Duration     time.Duration
}

// StatusRow is one row of the load status table.
type StatusRow struct {
	DatasetID    string
	RunID        string
	RowCount     int
	Placeholders int
	LoadedAt     time.Time
	DurationMs   int
}

// Loader replaces a dataset's shapes atomically.
type Loader struct {
	pool db.Pool
	opts Options
	log  *zap.Logger
}

// New creates a Loader over pool.
func New(pool db.Pool, opts Options) *Loader {
	if opts.Schema == "" {
		opts.Schema = DefaultSchema
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = db.DefaultBatchSize
	}
	if opts.SRID == 0 {
		opts.SRID = 4326
	}
	return &Loader{
		pool: pool,
		opts: opts,
		log:  zap.L().With(zap.String("component", "loader"), zap.String("schema", opts.Schema)),
	}
}

// Load deletes the previous shapes of datasetID, copies the new ones and
// records the load, all in one transaction.
func (l *Loader) Load(ctx context.Context, datasetID string, shapes []dataset.Shape) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.New().String()}

	rows, placeholders, err := buildRows(datasetID, res.RunID, shapes)
	if err != nil {
		return res, err
	}
	res.Placeholders = placeholders

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return res, eris.Wrap(err, "loader: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	shapesTable := l.table(ShapesTable)
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE dataset_id = $1", shapesTable.Sanitize()),
		datasetID,
	); err != nil {
		return res, eris.Wrapf(err, "loader: clear dataset %s", datasetID)
	}

	n, err := db.CopyBatches(ctx, tx, shapesTable, shapeColumns, rows, l.opts.BatchSize)
	if err != nil {
		return res, eris.Wrapf(err, "loader: copy dataset %s", datasetID)
	}
	res.Total = n

	res.Duration = time.Since(start)
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (dataset_id, run_id, row_count, placeholders, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dataset_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			row_count = EXCLUDED.row_count,
			placeholders = EXCLUDED.placeholders,
			loaded_at = now(),
			duration_ms = EXCLUDED.duration_ms`, l.table(StatusTable).Sanitize()),
		datasetID, res.RunID, int(n), placeholders, int(res.Duration.Milliseconds()),
	); err != nil {
		return res, eris.Wrapf(err, "loader: record status for %s", datasetID)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, eris.Wrap(err, "loader: commit")
	}

	l.log.Info("loader: dataset loaded",
		zap.String("dataset", datasetID),
		zap.String("run_id", res.RunID),
		zap.Int64("rows", n),
		zap.Int("placeholders", placeholders),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Status returns the load status of every dataset.
func (l *Loader) Status(ctx context.Context) ([]StatusRow, error) {
	rows, err := l.pool.Query(ctx, fmt.Sprintf(`
		SELECT dataset_id, run_id, row_count, placeholders, loaded_at, COALESCE(duration_ms, 0)
		FROM %s
		ORDER BY dataset_id`, l.table(StatusTable).Sanitize()))
	if err != nil {
		return nil, eris.Wrap(err, "loader: query load status")
	}
	defer rows.Close()

	var status []StatusRow
	for rows.Next() {
		var sr StatusRow
		if err := rows.Scan(&sr.DatasetID, &sr.RunID, &sr.RowCount, &sr.Placeholders, &sr.LoadedAt, &sr.DurationMs); err != nil {
			return nil, eris.Wrap(err, "loader: scan load status row")
		}
		status = append(status, sr)
	}
	return status, rows.Err()
}

func buildRows(datasetID, runID string, shapes []dataset.Shape) ([][]any, int, error) {
	rows := make([][]any, 0, len(shapes))
	placeholders := 0
	for i, s := range shapes {
		geomBytes, err := EncodeEWKB(s.Geometry)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "loader: shape %d (%s)", i, s.Name)
		}
		if geomBytes == nil {
			placeholders++
		}
		meta, err := json.Marshal(metadataJSON(s.Metadata))
		if err != nil {
			return nil, 0, eris.Wrapf(err, "loader: metadata for shape %d (%s)", i, s.Name)
		}
		var geomArg any
		if geomBytes != nil {
			geomArg = geomBytes
		}
		rows = append(rows, []any{datasetID, int32(i), s.Name, meta, geomArg, runID})
	}
	return rows, placeholders, nil
}

// metadataJSON renders dates as yyyy-mm-dd and leaves every other value to
// encoding/json.
func metadataJSON(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if t, ok := v.(time.Time); ok {
			out[k] = t.Format(time.DateOnly)
			continue
		}
		out[k] = v
	}
	return out
}
