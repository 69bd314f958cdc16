// Package shp decodes ESRI Shapefile (.shp) geometry files held in memory
// into go-geom polygons. Only Polygon files are decoded; Point files are
// recognised and rejected.
package shp

import (
	"encoding/binary"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/binio"
	"github.com/sells-group/shapeset/internal/geoerr"
)

const (
	fileCode   = 9994
	version    = 1000
	headerSize = 100
)

// ShapeType is the shape type code stored in file headers and records.
type ShapeType int32

// Supported shape type codes.
const (
	ShapeTypePoint   ShapeType = 1
	ShapeTypePolygon ShapeType = 5
)

func (t ShapeType) String() string {
	switch t {
	case ShapeTypePoint:
		return "Point"
	case ShapeTypePolygon:
		return "Polygon"
	default:
		return fmt.Sprintf("ShapeType(%d)", int32(t))
	}
}

// Header is the 100-byte shapefile header. FileLength is in 16-bit words
// and is informational only.
type Header struct {
	FileLength int32
	ShapeType  ShapeType
	BBox       [8]float64 // minX, minY, maxX, maxY, minZ, maxZ, minM, maxM
}

// Stats summarises one Decode call.
type Stats struct {
	Records      int
	Placeholders int
	Ambiguous    int
}

// Decoder decodes one shapefile per Decode call. A Decoder is not safe for
// concurrent use.
type Decoder struct {
	opts      Options
	assembler *Assembler
	stats     Stats
}

// NewDecoder returns a decoder for the given session options.
func NewDecoder(opts Options) *Decoder {
	opts = opts.withDefaults()
	return &Decoder{
		opts:      opts,
		assembler: NewAssembler(opts.SRID, opts.Logger),
	}
}

// Stats returns counters for the most recent Decode call.
func (d *Decoder) Stats() Stats { return d.stats }

// ReadHeader validates and returns the header at the start of data.
func ReadHeader(data []byte) (Header, error) {
	return readHeader(binio.NewCursor(data))
}

func readHeader(c *binio.Cursor) (Header, error) {
	var h Header
	if c.Len() < headerSize {
		return h, eris.Wrapf(geoerr.ErrFormat, "shp: header needs %d bytes, have %d", headerSize, c.Len())
	}

	code, err := c.Int32(binary.BigEndian)
	if err != nil {
		return h, err
	}
	if code != fileCode {
		return h, eris.Wrapf(geoerr.ErrFormat, "shp: file code: expected %d but found %d", fileCode, code)
	}

	// Five unused big-endian ints.
	if err := c.Skip(5 * 4); err != nil {
		return h, err
	}

	if h.FileLength, err = c.Int32(binary.BigEndian); err != nil {
		return h, err
	}

	v, err := c.Int32(binary.LittleEndian)
	if err != nil {
		return h, err
	}
	if v != version {
		return h, eris.Wrapf(geoerr.ErrFormat, "shp: version: expected %d but found %d", version, v)
	}

	st, err := c.Int32(binary.LittleEndian)
	if err != nil {
		return h, err
	}
	h.ShapeType = ShapeType(st)
	switch h.ShapeType {
	case ShapeTypePoint, ShapeTypePolygon:
	default:
		return h, eris.Wrapf(geoerr.ErrUnsupportedShapeType, "shp: unknown shape type %d", st)
	}

	for i := range h.BBox {
		if h.BBox[i], err = c.Float64(binary.LittleEndian); err != nil {
			return h, err
		}
	}

	return h, nil
}

// Decode parses a whole shapefile. Records are decoded until the buffer is
// exhausted; the header's file length is not used as a bound. Records whose
// geometry is invalid decode to placeholders rather than failing the call.
func (d *Decoder) Decode(data []byte) ([]ShapeRecord, error) {
	d.stats = Stats{}
	ambiguousBefore := d.assembler.Ambiguous()

	c := binio.NewCursor(data)
	h, err := readHeader(c)
	if err != nil {
		return nil, err
	}
	if h.ShapeType != ShapeTypePolygon {
		return nil, eris.Wrapf(geoerr.ErrUnsupportedOperation, "shp: shape type %s not supported", h.ShapeType)
	}

	var records []ShapeRecord
	for c.HasRemaining() {
		idx := len(records)
		g, err := d.decodeRecord(c)
		if err != nil {
			return nil, eris.Wrapf(err, "shp: record %d at offset %d", idx, c.Offset())
		}
		if !g.Valid() {
			d.stats.Placeholders++
			d.opts.Logger.Debug("shp: substituted placeholder geometry",
				zap.Int("record", idx),
				zap.Error(g.Err),
			)
		}
		records = append(records, ShapeRecord{Index: idx, Geometry: g})
	}

	d.stats.Records = len(records)
	d.stats.Ambiguous = d.assembler.Ambiguous() - ambiguousBefore
	return records, nil
}

func (d *Decoder) decodeRecord(c *binio.Cursor) (Geometry, error) {
	// Record number is ignored; position is authoritative.
	if _, err := c.Int32(binary.BigEndian); err != nil {
		return Geometry{}, err
	}
	// Content length in 16-bit words; the body is self-describing.
	if _, err := c.Int32(binary.BigEndian); err != nil {
		return Geometry{}, err
	}
	return d.decodePolygon(c)
}

func (d *Decoder) decodePolygon(c *binio.Cursor) (Geometry, error) {
	st, err := c.Int32(binary.LittleEndian)
	if err != nil {
		return Geometry{}, err
	}
	if ShapeType(st) != ShapeTypePolygon {
		return Geometry{}, eris.Wrapf(geoerr.ErrFormat, "shp: polygon record shape type: expected %d but found %d", ShapeTypePolygon, st)
	}

	// Record bounding box.
	if err := c.Skip(4 * 8); err != nil {
		return Geometry{}, err
	}

	numParts, err := c.Int32(binary.LittleEndian)
	if err != nil {
		return Geometry{}, err
	}
	numPoints, err := c.Int32(binary.LittleEndian)
	if err != nil {
		return Geometry{}, err
	}
	if numParts < 0 || numPoints < 0 {
		return Geometry{}, eris.Wrapf(geoerr.ErrFormat, "shp: negative counts: %d parts, %d points", numParts, numPoints)
	}
	if need := int64(numParts)*4 + int64(numPoints)*16; need > int64(c.Remaining()) {
		return Geometry{}, eris.Wrapf(geoerr.ErrFormat, "shp: polygon needs %d bytes, have %d", need, c.Remaining())
	}

	parts := make([]int32, numParts)
	for i := range parts {
		if parts[i], err = c.Int32(binary.LittleEndian); err != nil {
			return Geometry{}, err
		}
		if parts[i] < 0 || parts[i] > numPoints {
			return Geometry{}, eris.Wrapf(geoerr.ErrFormat, "shp: part %d offset %d outside %d points", i, parts[i], numPoints)
		}
	}

	points := make([]Coordinate, numPoints)
	for i := range points {
		if points[i], err = readCoordinate(c); err != nil {
			return Geometry{}, err
		}
	}

	// The whole record has been consumed; failures below only replace the
	// geometry.
	rings := make([]*geom.LinearRing, 0, numParts)
	last := numPoints
	for i := len(parts) - 1; i >= 0; i-- {
		start := parts[i]
		if start > last {
			return d.placeholder(eris.Wrapf(geoerr.ErrInvalidGeometry, "shp: part %d offset %d after next part at %d", i, start, last)), nil
		}
		slice := points[start:last]
		for _, p := range slice {
			if !d.opts.Bounds.Contains(p) {
				return d.placeholder(eris.Wrapf(geoerr.ErrInvalidGeometry, "shp: coordinate (%g %g) out of range", p.X, p.Y)), nil
			}
		}
		ring, err := newRing(slice)
		if err != nil {
			return d.placeholder(err), nil
		}
		rings = append(rings, ring)
		last = start
	}

	g, err := d.assembler.Build(rings)
	if err != nil {
		return d.placeholder(err), nil
	}
	return g, nil
}

func (d *Decoder) placeholder(err error) Geometry {
	return Placeholder(d.opts.SRID, err)
}
