package loader

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/shapeset/internal/dataset"
	"github.com/sells-group/shapeset/internal/geoerr"
	"github.com/sells-group/shapeset/internal/shp"
)

func square(x, y float64) shp.Geometry {
	poly := geom.NewPolygonFlat(geom.XY, []float64{x, y, x, y + 1, x + 1, y + 1, x + 1, y, x, y}, []int{10})
	return shp.Geometry{Kind: shp.KindPolygon, T: poly.SetSRID(4326)}
}

func testShapes() []dataset.Shape {
	return []dataset.Shape{
		{
			Name:     "Fiji",
			Geometry: square(178, -18),
			Metadata: map[string]any{"POP_EST": 889953.0, "UPDATED": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			Name:     "Broken",
			Geometry: shp.Placeholder(4326, geoerr.ErrInvalidGeometry),
			Metadata: map[string]any{"POP_EST": nil},
		},
	}
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "geo"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "geo"."shapes"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_shapes_geom"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "geo"."load_status"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, New(mock, Options{Schema: "geo"}).Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE SCHEMA").WillReturnError(errors.New("permission denied"))

	err = New(mock, Options{}).Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loader: create schema")
}

func TestLoad(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "shapeset"."shapes"`).
		WithArgs("world").
		WillReturnResult(pgxmock.NewResult("DELETE", 177))
	mock.ExpectCopyFrom(pgx.Identifier{"shapeset", "shapes"}, shapeColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "shapeset"."load_status"`).
		WithArgs("world", pgxmock.AnyArg(), 2, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := New(mock, Options{}).Load(context.Background(), "world", testShapes())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, 1, res.Placeholders)
	assert.Len(t, res.RunID, 36)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").
		WithArgs("world").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"shapeset", "shapes"}, shapeColumns).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = New(mock, Options{}).Load(context.Background(), "world", testShapes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loader: copy dataset world")
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_BeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err = New(mock, Options{}).Load(context.Background(), "world", testShapes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loader: begin")
}

func TestStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"dataset_id", "run_id", "row_count", "placeholders", "loaded_at", "duration_ms",
	}).
		AddRow("lakes", "run-2", 25, 0, now, 40).
		AddRow("world", "run-1", 177, 2, now, 1200)

	mock.ExpectQuery("SELECT dataset_id, run_id, row_count").WillReturnRows(rows)

	status, err := New(mock, Options{}).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, "lakes", status[0].DatasetID)
	assert.Equal(t, 177, status[1].RowCount)
	assert.Equal(t, 2, status[1].Placeholders)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRows(t *testing.T) {
	rows, placeholders, err := buildRows("world", "run-1", testShapes())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, placeholders)

	first := rows[0]
	assert.Equal(t, "world", first[0])
	assert.Equal(t, int32(0), first[1])
	assert.Equal(t, "Fiji", first[2])
	assert.NotNil(t, first[4])
	assert.Equal(t, "run-1", first[5])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(first[3].([]byte), &meta))
	assert.Equal(t, "2024-01-01", meta["UPDATED"])
	assert.InDelta(t, 889953.0, meta["POP_EST"], 0.001)

	assert.Nil(t, rows[1][4])
}

func TestEncodeEWKB(t *testing.T) {
	data, err := EncodeEWKB(square(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, data)
	// NDR byte order marker, then the EWKB type word with the SRID flag.
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, byte(0x20), data[4]&0x20)

	data, err = EncodeEWKB(shp.Placeholder(4326, nil))
	require.NoError(t, err)
	assert.Nil(t, data)
}
