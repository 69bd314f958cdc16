package geoerr

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"invalid geometry", eris.Wrap(ErrInvalidGeometry, "shp: ring not closed"), false},
		{"ambiguous topology", eris.Wrapf(ErrAmbiguousTopology, "shp: ring %d", 3), false},
		{"format", eris.Wrap(ErrFormat, "shp: bad file code"), true},
		{"missing entry", eris.Wrap(ErrMissingEntry, "dataset: no .dbf"), true},
		{"foreign error", errors.New("disk full"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fatal(tt.err))
		})
	}
}

func TestWrappedSentinelsStayDistinct(t *testing.T) {
	err := eris.Wrapf(ErrFieldParse, "dbf: field %s", "POP_EST")
	assert.True(t, errors.Is(err, ErrFieldParse))
	assert.False(t, errors.Is(err, ErrFormat))
}
