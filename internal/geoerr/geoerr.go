// Package geoerr defines the error kinds shared by the shapefile and dBase
// decoders and the dataset assembler. Failure sites wrap one of these
// sentinels with eris so callers can classify errors with errors.Is.
package geoerr

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrFormat reports a bad magic number, version, record marker or a
	// truncated buffer. Parsing cannot continue.
	ErrFormat = eris.New("format error")

	// ErrUnsupportedShapeType reports a shape type code other than Point or Polygon.
	ErrUnsupportedShapeType = eris.New("unsupported shape type")

	// ErrUnsupportedOperation reports a recognised but unimplemented variant,
	// such as decoding Point files or restarting a record iterator.
	ErrUnsupportedOperation = eris.New("unsupported operation")

	// ErrUnsupportedFieldType reports a dBase field type tag outside C, N, L, D, F.
	ErrUnsupportedFieldType = eris.New("unsupported field type")

	// ErrInvalidGeometry marks a record whose geometry was replaced by a placeholder.
	ErrInvalidGeometry = eris.New("invalid geometry")

	// ErrFieldParse reports a field value that could not be parsed.
	ErrFieldParse = eris.New("field parse error")

	// ErrMissingEntry reports an archive without a .shp or .dbf entry.
	ErrMissingEntry = eris.New("missing archive entry")

	// ErrMissingNameField reports an attribute record without the configured name field.
	ErrMissingNameField = eris.New("missing name field")

	// ErrDatasetInconsistency reports mismatched geometry and attribute counts.
	ErrDatasetInconsistency = eris.New("dataset inconsistency")

	// ErrAmbiguousTopology is a diagnostic: a ring was neither fully inside nor
	// fully outside the preceding shell.
	ErrAmbiguousTopology = eris.New("ambiguous ring topology")
)

// Fatal reports whether err aborts a whole decode. Invalid geometry and
// ambiguous topology are recovered per record.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidGeometry) && !errors.Is(err, ErrAmbiguousTopology)
}
