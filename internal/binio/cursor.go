// Package binio provides a bounds-checked read cursor over an in-memory
// buffer. Shapefiles switch byte order mid-header, so every read names its
// byte order explicitly instead of carrying a mode on the cursor.
package binio

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shapeset/internal/geoerr"
)

// Cursor reads fixed-width values from a byte slice, advancing an offset.
// It is not safe for concurrent use.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int { return c.off }

// Len returns the total buffer size.
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// HasRemaining reports whether unread bytes remain.
func (c *Cursor) HasRemaining() bool { return c.off < len(c.buf) }

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(off int) error {
	if off < 0 || off > len(c.buf) {
		return eris.Wrapf(geoerr.ErrFormat, "binio: seek to %d outside buffer of %d bytes", off, len(c.buf))
	}
	c.off = off
	return nil
}

// Next returns the next n bytes without copying and advances past them.
func (c *Cursor) Next(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, eris.Wrapf(geoerr.ErrFormat, "binio: need %d bytes at offset %d, have %d", n, c.off, c.Remaining())
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// Skip advances past n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.Next(n)
	return err
}

// Byte reads one byte.
func (c *Cursor) Byte() (byte, error) {
	b, err := c.Next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Int32 reads a signed 32-bit integer in the given byte order.
func (c *Cursor) Int32(order binary.ByteOrder) (int32, error) {
	b, err := c.Next(4)
	if err != nil {
		return 0, err
	}
	return int32(order.Uint32(b)), nil
}

// Int16 reads a signed 16-bit integer in the given byte order.
func (c *Cursor) Int16(order binary.ByteOrder) (int16, error) {
	b, err := c.Next(2)
	if err != nil {
		return 0, err
	}
	return int16(order.Uint16(b)), nil
}

// Float64 reads an IEEE 754 double in the given byte order.
func (c *Cursor) Float64(order binary.ByteOrder) (float64, error) {
	b, err := c.Next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(order.Uint64(b)), nil
}
