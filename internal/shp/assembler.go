package shp

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/geoerr"
)

// Assembler groups the rings of one polygon record into shells with holes.
//
// Shapefiles do not tag rings as shells or holes. The grouping assumes that
// the holes of a shell are adjacent to it in the ring list and are covered
// by it. Files that break this convention are misgrouped; rings that are
// only partly inside the current shell are reported as ambiguous.
type Assembler struct {
	srid      int
	log       *zap.Logger
	ambiguous int
}

// NewAssembler returns an assembler that stamps srid on built geometries.
func NewAssembler(srid int, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.L()
	}
	return &Assembler{srid: srid, log: log}
}

// Ambiguous returns how many containment tests were inconclusive.
func (a *Assembler) Ambiguous() int { return a.ambiguous }

// Group splits rings into groups whose first ring is the shell and whose
// remaining rings are its holes.
func (a *Assembler) Group(rings []*geom.LinearRing) [][]*geom.LinearRing {
	if len(rings) == 0 {
		return nil
	}

	var groups [][]*geom.LinearRing
	shell := rings[0]
	current := []*geom.LinearRing{shell}

	for i := 1; i < len(rings); i++ {
		ring := rings[i]
		covered, ambiguous := covers(shell, ring)
		if ambiguous {
			a.ambiguous++
			a.log.Warn("shp: ring partly outside preceding shell, starting new polygon",
				zap.Int("ring", i),
				zap.Error(geoerr.ErrAmbiguousTopology),
			)
		}
		if covered {
			current = append(current, ring)
			continue
		}

		// Rings arrive in reverse part order, so a hole usually precedes its
		// shell. A ring covering the lone current shell takes it, and any
		// lone rings just before it that it covers, as holes.
		if len(current) == 1 {
			if encloses, _ := covers(ring, shell); encloses {
				holes := []*geom.LinearRing{shell}
				for len(groups) > 0 {
					prev := groups[len(groups)-1]
					if len(prev) != 1 {
						break
					}
					if in, _ := covers(ring, prev[0]); !in {
						break
					}
					holes = append(holes, prev[0])
					groups = groups[:len(groups)-1]
				}
				shell = ring
				current = append([]*geom.LinearRing{ring}, holes...)
				continue
			}
		}

		groups = append(groups, current)
		shell = ring
		current = []*geom.LinearRing{ring}
	}

	return append(groups, current)
}

// Build groups rings and constructs a Polygon, or a MultiPolygon when more
// than one shell is found.
func (a *Assembler) Build(rings []*geom.LinearRing) (Geometry, error) {
	groups := a.Group(rings)
	if len(groups) == 0 {
		return Geometry{}, eris.Wrap(geoerr.ErrInvalidGeometry, "shp: polygon has no rings")
	}

	polys := make([]*geom.Polygon, 0, len(groups))
	for i, group := range groups {
		poly := geom.NewPolygon(geom.XY)
		for j, ring := range group {
			if err := poly.Push(ring); err != nil {
				return Geometry{}, eris.Wrapf(geoerr.ErrInvalidGeometry, "shp: polygon %d ring %d: %v", i, j, err)
			}
		}
		polys = append(polys, poly)
	}

	if len(polys) == 1 {
		return Geometry{Kind: KindPolygon, T: polys[0].SetSRID(a.srid)}, nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(a.srid)
	for i, poly := range polys {
		if err := mp.Push(poly); err != nil {
			return Geometry{}, eris.Wrapf(geoerr.ErrInvalidGeometry, "shp: multipolygon part %d: %v", i, err)
		}
	}
	return Geometry{Kind: KindMultiPolygon, T: mp}, nil
}

// covers reports whether every vertex of ring lies inside or on shell.
// ambiguous is set when some vertices are inside and some are not.
func covers(shell, ring *geom.LinearRing) (covered, ambiguous bool) {
	sb, rb := shell.Bounds(), ring.Bounds()
	if rb.Min(0) > sb.Max(0) || rb.Max(0) < sb.Min(0) || rb.Min(1) > sb.Max(1) || rb.Max(1) < sb.Min(1) {
		return false, false
	}

	flat := shell.FlatCoords()
	inside := 0
	n := ring.NumCoords()
	for i := 0; i < n; i++ {
		if xy.IsPointInRing(geom.XY, ring.Coord(i), flat) {
			inside++
		}
	}

	switch inside {
	case n:
		return true, false
	case 0:
		return false, false
	default:
		return false, true
	}
}

// newRing builds a closed ring from coords.
func newRing(coords []Coordinate) (*geom.LinearRing, error) {
	if len(coords) < 4 {
		return nil, eris.Wrapf(geoerr.ErrInvalidGeometry, "shp: ring has %d points, need at least 4", len(coords))
	}
	first, last := coords[0], coords[len(coords)-1]
	if first != last {
		return nil, eris.Wrapf(geoerr.ErrInvalidGeometry, "shp: ring not closed: (%g %g) != (%g %g)", first.X, first.Y, last.X, last.Y)
	}

	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c.X, c.Y)
	}
	return geom.NewLinearRingFlat(geom.XY, flat), nil
}
