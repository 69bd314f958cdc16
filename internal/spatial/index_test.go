package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/shapeset/internal/dataset"
	"github.com/sells-group/shapeset/internal/geoerr"
	"github.com/sells-group/shapeset/internal/shp"
)

func ring(x, y, size float64) []float64 {
	return []float64{x, y, x, y + size, x + size, y + size, x + size, y, x, y}
}

func polygon(rings ...[]float64) *geom.Polygon {
	var flat []float64
	var ends []int
	for _, r := range rings {
		flat = append(flat, r...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

func fixture(t *testing.T) []dataset.Shape {
	t.Helper()
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(polygon(ring(20, 20, 2))))
	require.NoError(t, mp.Push(polygon(ring(30, 30, 2))))

	return []dataset.Shape{
		{Name: "Donut", Geometry: shp.Geometry{Kind: shp.KindPolygon, T: polygon(ring(0, 0, 10), ring(4, 4, 2))}},
		{Name: "Broken", Geometry: shp.Placeholder(4326, geoerr.ErrInvalidGeometry)},
		{Name: "Islands", Geometry: shp.Geometry{Kind: shp.KindMultiPolygon, T: mp}},
		{Name: "Overlap", Geometry: shp.Geometry{Kind: shp.KindPolygon, T: polygon(ring(8, 8, 7))}},
	}
}

func names(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Shape.Name)
	}
	return out
}

func TestNewIndex(t *testing.T) {
	idx := NewIndex(fixture(t))
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, 1, idx.Skipped())
}

func TestLookup(t *testing.T) {
	idx := NewIndex(fixture(t))

	tests := []struct {
		name string
		x, y float64
		want []string
	}{
		{"inside shell", 2, 2, []string{"Donut"}},
		{"inside hole", 5, 5, []string{}},
		{"on hole boundary", 4, 5, []string{"Donut"}},
		{"overlap ordered by position", 9, 9, []string{"Donut", "Overlap"}},
		{"second part of multipolygon", 31, 31, []string{"Islands"}},
		{"between parts", 25, 25, []string{}},
		{"on shell corner", 0, 0, []string{"Donut"}},
		{"outside everything", -50, 60, []string{}},
		{"placeholder origin never matches", 0.0001, -0.0001, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(idx.Lookup(tt.x, tt.y)))
		})
	}
}

func TestLookup_Positions(t *testing.T) {
	matches := NewIndex(fixture(t)).Lookup(9, 9)
	require.Len(t, matches, 2)
	assert.Equal(t, 0, matches[0].Position)
	assert.Equal(t, 3, matches[1].Position)
}

func TestLookup_EmptyIndex(t *testing.T) {
	idx := NewIndex(nil)
	assert.Equal(t, 0, idx.Size())
	assert.Empty(t, idx.Lookup(0, 0))
}
