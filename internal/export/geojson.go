// Package export renders assembled shapes as GeoJSON.
package export

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/shapeset/internal/dataset"
)

// Property keys added to every feature.
const (
	NameProperty    = "name"
	InvalidProperty = "invalid"
)

// FeatureCollection converts shapes into a GeoJSON collection, one feature
// per shape in order. Placeholders get a null geometry and invalid=true.
func FeatureCollection(shapes []dataset.Shape) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(shapes))}
	for i, s := range shapes {
		f := &geojson.Feature{
			ID:         strconv.Itoa(i),
			Properties: Properties(s),
		}
		if s.Geometry.Valid() {
			f.Geometry = s.Geometry.T
		} else {
			f.Properties[InvalidProperty] = true
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}

// Properties flattens a shape's name and metadata. Dates are rendered as
// yyyy-mm-dd.
func Properties(s dataset.Shape) map[string]any {
	props := make(map[string]any, len(s.Metadata)+1)
	for k, v := range s.Metadata {
		if t, ok := v.(time.Time); ok {
			props[k] = t.Format(time.DateOnly)
			continue
		}
		props[k] = v
	}
	props[NameProperty] = s.Name
	return props
}

// Write encodes shapes as a GeoJSON FeatureCollection to w.
func Write(w io.Writer, shapes []dataset.Shape) error {
	fc, err := FeatureCollection(shapes)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(fc); err != nil {
		return eris.Wrap(err, "export: encode feature collection")
	}
	return nil
}
