package shp

import (
	"encoding/binary"

	"github.com/sells-group/shapeset/internal/binio"
)

// Coordinate is an X/Y pair as stored in shapefile point arrays. The format
// calls these points, but they carry no shape type of their own.
type Coordinate struct {
	X float64
	Y float64
}

// Bounds is an inclusive coordinate range.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// WGS84Bounds is the longitude/latitude range accepted by default.
var WGS84Bounds = Bounds{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}

// Contains reports whether c lies inside b, edges included. NaN never does.
func (b Bounds) Contains(c Coordinate) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Y >= b.MinY && c.Y <= b.MaxY
}

func readCoordinate(c *binio.Cursor) (Coordinate, error) {
	x, err := c.Float64(binary.LittleEndian)
	if err != nil {
		return Coordinate{}, err
	}
	y, err := c.Float64(binary.LittleEndian)
	if err != nil {
		return Coordinate{}, err
	}
	return Coordinate{X: x, Y: y}, nil
}
