package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the COPY batch size used when none is given.
const DefaultBatchSize = 5000

// Copier is anything that can COPY rows: a pool, a connection or a
// transaction.
type Copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// CopyBatches loads rows into table with the COPY protocol, batchSize rows
// at a time (0 means DefaultBatchSize). It returns the rows copied before
// any failure.
func CopyBatches(ctx context.Context, c Copier, table pgx.Identifier, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	log := zap.L().With(
		zap.String("component", "db.copy"),
		zap.String("table", table.Sanitize()),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		n, err := c.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows[start:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s (rows %d-%d)", table.Sanitize(), start, end)
		}
		total += n

		log.Debug("db: batch copied",
			zap.Int("batch_start", start),
			zap.Int("batch_end", end),
			zap.Int64("batch_rows", n),
		)
	}
	return total, nil
}
