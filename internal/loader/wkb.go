package loader

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/shapeset/internal/shp"
)

// EncodeEWKB converts a decoded geometry to little-endian EWKB carrying its
// SRID. Placeholders encode to nil so the geom column stays NULL.
func EncodeEWKB(g shp.Geometry) ([]byte, error) {
	if !g.Valid() || g.T == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g.T, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "loader: encode EWKB")
	}
	return data, nil
}
