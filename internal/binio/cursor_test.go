package binio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shapeset/internal/geoerr"
)

func TestCursor_MixedByteOrder(t *testing.T) {
	buf := make([]byte, 0, 18)
	buf = binary.BigEndian.AppendUint32(buf, 9994)
	buf = binary.LittleEndian.AppendUint32(buf, 1000)
	buf = binary.LittleEndian.AppendUint16(buf, 0x0102)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(-71.25))

	c := NewCursor(buf)

	code, err := c.Int32(binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, int32(9994), code)

	version, err := c.Int32(binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, int32(1000), version)

	short, err := c.Int16(binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, int16(0x0102), short)

	f, err := c.Float64(binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, -71.25, f)

	assert.False(t, c.HasRemaining())
	assert.Equal(t, 18, c.Offset())
}

func TestCursor_Truncated(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})

	_, err := c.Int32(binary.LittleEndian)
	require.Error(t, err)
	assert.True(t, errors.Is(err, geoerr.ErrFormat))
	assert.Equal(t, 0, c.Offset(), "failed read must not advance")
}

func TestCursor_SkipAndSeek(t *testing.T) {
	c := NewCursor([]byte{0, 1, 2, 3, 4, 5})

	require.NoError(t, c.Skip(2))
	b, err := c.Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(2), b)

	require.NoError(t, c.Seek(5))
	assert.Equal(t, 1, c.Remaining())

	require.Error(t, c.Seek(7))
	require.Error(t, c.Skip(-1))
}
