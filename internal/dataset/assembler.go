// Package dataset pairs the geometry and attribute files of a zipped
// shapefile bundle into named, attributed shapes.
package dataset

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/dbf"
	"github.com/sells-group/shapeset/internal/geoerr"
	"github.com/sells-group/shapeset/internal/shp"
)

// Shape is one geometry with its name and remaining attributes.
type Shape struct {
	Name     string
	Geometry shp.Geometry
	Metadata map[string]any
}

// Options configures an Assembler.
type Options struct {
	// MaxEntryBytes caps the uncompressed size of each archive entry. Zero
	// means unlimited.
	MaxEntryBytes int64
	Shape         shp.Options
	Table         dbf.Options
	Logger        *zap.Logger
}

// Summary counts the outcome of one assembly.
type Summary struct {
	Shapes       int
	Placeholders int
}

// Summarize counts shapes and placeholders.
func Summarize(shapes []Shape) Summary {
	s := Summary{Shapes: len(shapes)}
	for _, sh := range shapes {
		if !sh.Geometry.Valid() {
			s.Placeholders++
		}
	}
	return s
}

// Assembler turns archives into shapes. It holds no per-call state and is
// safe for concurrent use.
type Assembler struct {
	opts Options
	log  *zap.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(opts Options) *Assembler {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("component", "dataset.assembler"))
	if opts.Shape.Logger == nil {
		opts.Shape.Logger = log
	}
	if opts.Table.Logger == nil {
		opts.Table.Logger = log
	}
	return &Assembler{opts: opts, log: log}
}

// AssembleReader buffers r fully and assembles it.
func (a *Assembler) AssembleReader(r io.Reader, nameField string) ([]Shape, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read archive")
	}
	return a.Assemble(data, nameField)
}

// Assemble decodes the first .shp and .dbf entries of archive and pairs
// them by position. nameField names the attribute that becomes Shape.Name.
func (a *Assembler) Assemble(archive []byte, nameField string) ([]Shape, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, eris.Wrapf(geoerr.ErrFormat, "dataset: open archive: %v", err)
	}

	shpEntry, dbfEntry, err := selectEntries(zr.File)
	if err != nil {
		return nil, err
	}

	shpData, err := a.readEntry(shpEntry)
	if err != nil {
		return nil, err
	}
	dbfData, err := a.readEntry(dbfEntry)
	if err != nil {
		return nil, err
	}

	dec := shp.NewDecoder(a.opts.Shape)
	geoms, err := dec.Decode(shpData)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: decode %s", shpEntry.Name)
	}

	attrs, err := a.decodeTable(dbfData)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: decode %s", dbfEntry.Name)
	}

	if len(geoms) != len(attrs) {
		return nil, eris.Wrapf(geoerr.ErrDatasetInconsistency,
			"dataset: %s has %d shapes but %s has %d records",
			shpEntry.Name, len(geoms), dbfEntry.Name, len(attrs))
	}

	shapes := make([]Shape, len(geoms))
	for i, g := range geoms {
		raw, ok := attrs[i].Get(nameField)
		name, isString := raw.(string)
		if !ok || !isString {
			return nil, eris.Wrapf(geoerr.ErrMissingNameField, "dataset: record %d has no text field %q", i, nameField)
		}
		meta := attrs[i].Map()
		delete(meta, nameField)
		shapes[i] = Shape{
			Name:     strings.TrimSpace(name),
			Geometry: g.Geometry,
			Metadata: meta,
		}
	}

	stats := dec.Stats()
	a.log.Info("dataset: assembled",
		zap.String("shp", shpEntry.Name),
		zap.String("dbf", dbfEntry.Name),
		zap.Int("shapes", len(shapes)),
		zap.Int("placeholders", stats.Placeholders),
		zap.Int("ambiguous", stats.Ambiguous),
	)
	return shapes, nil
}

func (a *Assembler) decodeTable(data []byte) ([]dbf.Record, error) {
	table, err := dbf.Decode(data, a.opts.Table)
	if err != nil {
		return nil, err
	}
	records, err := table.Records()
	if err != nil {
		return nil, err
	}
	all, err := records.All()
	if err != nil {
		return nil, err
	}
	if n := records.Deleted(); n > 0 {
		a.log.Debug("dataset: skipped deleted rows", zap.Int("deleted", n))
	}
	return all, nil
}

// selectEntries returns the first .shp and first .dbf entries in archive
// order.
func selectEntries(files []*zip.File) (shpEntry, dbfEntry *zip.File, err error) {
	for _, f := range files {
		if f.FileInfo().IsDir() || isResourceFork(f.Name) {
			continue
		}
		name := strings.ToLower(f.Name)
		switch {
		case shpEntry == nil && strings.HasSuffix(name, ".shp"):
			shpEntry = f
		case dbfEntry == nil && strings.HasSuffix(name, ".dbf"):
			dbfEntry = f
		}
	}
	if shpEntry == nil {
		return nil, nil, eris.Wrap(geoerr.ErrMissingEntry, "dataset: no .shp entry in archive")
	}
	if dbfEntry == nil {
		return nil, nil, eris.Wrap(geoerr.ErrMissingEntry, "dataset: no .dbf entry in archive")
	}
	return shpEntry, dbfEntry, nil
}

func isResourceFork(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/")
}

func (a *Assembler) readEntry(f *zip.File) ([]byte, error) {
	limit := a.opts.MaxEntryBytes
	if limit > 0 && f.UncompressedSize64 > uint64(limit) {
		return nil, eris.Wrapf(geoerr.ErrFormat, "dataset: entry %s is %d bytes, limit %d", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(geoerr.ErrFormat, "dataset: open entry %s: %v", f.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(geoerr.ErrFormat, "dataset: read entry %s: %v", f.Name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, eris.Wrapf(geoerr.ErrFormat, "dataset: entry %s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}
