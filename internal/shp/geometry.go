package shp

import (
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// DefaultSRID is the spatial reference assigned to decoded geometries.
const DefaultSRID = 4326

// Kind identifies which variant a Geometry holds.
type Kind int

const (
	// KindPlaceholder is the sentinel substituted for a record that failed
	// validation or construction.
	KindPlaceholder Kind = iota
	// KindPolygon holds a single *geom.Polygon.
	KindPolygon
	// KindMultiPolygon holds a *geom.MultiPolygon.
	KindMultiPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	default:
		return "Placeholder"
	}
}

// Geometry is the decoded geometry of one shapefile record. It is never
// empty: records that fail validation carry a placeholder point at (0,0)
// together with the reason in Err.
type Geometry struct {
	Kind Kind
	T    geom.T
	Err  error
}

// Valid reports whether g holds real polygon data.
func (g Geometry) Valid() bool { return g.Kind != KindPlaceholder }

// Polygons returns the polygons of g in order. Placeholders have none.
func (g Geometry) Polygons() []*geom.Polygon {
	switch t := g.T.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		polys := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
		return polys
	default:
		return nil
	}
}

// Placeholder returns the invalid-geometry sentinel carrying err.
func Placeholder(srid int, err error) Geometry {
	return Geometry{
		Kind: KindPlaceholder,
		T:    geom.NewPointFlat(geom.XY, []float64{0, 0}).SetSRID(srid),
		Err:  err,
	}
}

// ShapeRecord is one decoded record. Index is the record's position in the
// file; the record-number field stored in the file is not used.
type ShapeRecord struct {
	Index    int
	Geometry Geometry
}

// Options scopes one decode session. The zero value decodes WGS84 lon/lat
// data with SRID 4326 and logs through zap.L().
type Options struct {
	SRID   int
	Bounds Bounds
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.SRID == 0 {
		o.SRID = DefaultSRID
	}
	if o.Bounds == (Bounds{}) {
		o.Bounds = WGS84Bounds
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	return o
}
