// Package spatial answers point-in-polygon queries over assembled shapes.
package spatial

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/shapeset/internal/dataset"
)

// minExtent pads degenerate bounds; rtreego rejects zero-length sides.
const minExtent = 1e-9

// Match is a shape containing the queried point.
type Match struct {
	Position int
	Shape    dataset.Shape
}

// indexed wraps one shape for the R-tree.
type indexed struct {
	pos    int
	shape  dataset.Shape
	bounds rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *indexed) Bounds() rtreego.Rect { return e.bounds }

// Index is an R-tree over the bounds of valid shapes. It is read-only after
// construction and safe for concurrent lookups.
type Index struct {
	tree    *rtreego.Rtree
	size    int
	skipped int
}

// NewIndex indexes every shape that carries real geometry. Placeholders are
// counted but never match.
func NewIndex(shapes []dataset.Shape) *Index {
	idx := &Index{tree: rtreego.NewTree(2, 25, 50)}
	for i, s := range shapes {
		if !s.Geometry.Valid() || s.Geometry.T == nil {
			idx.skipped++
			continue
		}
		rect, ok := toRect(s.Geometry.T.Bounds())
		if !ok {
			idx.skipped++
			continue
		}
		idx.tree.Insert(&indexed{pos: i, shape: s, bounds: rect})
		idx.size++
	}
	return idx
}

// Size is the number of indexed shapes.
func (idx *Index) Size() int { return idx.size }

// Skipped is the number of shapes left out of the index.
func (idx *Index) Skipped() int { return idx.skipped }

// Lookup returns the shapes whose polygons contain (x, y), ordered by their
// position in the input. Points on a shell boundary count as inside.
func (idx *Index) Lookup(x, y float64) []Match {
	query := rtreego.Point{x, y}.ToRect(minExtent)
	candidates := idx.tree.SearchIntersect(query)

	var matches []Match
	for _, c := range candidates {
		e := c.(*indexed)
		if contains(e.shape, geom.Coord{x, y}) {
			matches = append(matches, Match{Position: e.pos, Shape: e.shape})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Position < matches[j].Position })
	return matches
}

func contains(s dataset.Shape, pt geom.Coord) bool {
	for _, poly := range s.Geometry.Polygons() {
		if polygonContains(poly, pt) {
			return true
		}
	}
	return false
}

// polygonContains is true when the shell contains pt and no hole strictly
// contains it.
func polygonContains(poly *geom.Polygon, pt geom.Coord) bool {
	if poly.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, pt, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		hole := poly.LinearRing(i).FlatCoords()
		if xy.IsPointInRing(geom.XY, pt, hole) && !xy.IsOnLine(geom.XY, pt, hole) {
			return false
		}
	}
	return true
}

func toRect(b *geom.Bounds) (rtreego.Rect, bool) {
	if b == nil || b.IsEmpty() {
		return rtreego.Rect{}, false
	}
	lengths := []float64{
		max(b.Max(0)-b.Min(0), minExtent),
		max(b.Max(1)-b.Min(1), minExtent),
	}
	rect, err := rtreego.NewRect(rtreego.Point{b.Min(0), b.Min(1)}, lengths)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}
