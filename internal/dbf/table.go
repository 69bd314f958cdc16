// Package dbf decodes dBase III attribute tables (.dbf) held in memory.
// The schema is read eagerly; records are decoded lazily, once, in file
// order.
package dbf

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/shapeset/internal/binio"
	"github.com/sells-group/shapeset/internal/geoerr"
)

const (
	headerSize     = 32
	descriptorSize = 32
	nameSize       = 11

	fieldTerminator = 0x0D

	markerValid   = 0x20
	markerDeleted = 0x2A
	markerEOF     = 0x1A
)

// Options configures decoding.
type Options struct {
	// LenientDates decodes unparseable Date fields to nil instead of failing.
	LenientDates bool
	// Logger defaults to the global zap logger.
	Logger *zap.Logger
}

// Header is the fixed 32-byte table header.
type Header struct {
	Version      byte
	LastUpdate   time.Time
	RecordCount  int32
	HeaderLength int16
	RecordLength int16
}

// Table is a decoded schema plus a cursor positioned at the first record.
type Table struct {
	Header Header
	Fields []FieldDescriptor

	cursor   *binio.Cursor
	log      *zap.Logger
	consumed bool
}

// Decode reads the header and field descriptors from data. Records are not
// touched until Records is called.
func Decode(data []byte, opts Options) (*Table, error) {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	log = log.With(zap.String("component", "dbf.table"))

	c := binio.NewCursor(data)
	h, err := readHeader(c)
	if err != nil {
		return nil, err
	}

	text := charmap.ISO8859_1.NewDecoder()
	fields, err := readFields(c, text, opts.LenientDates)
	if err != nil {
		return nil, err
	}

	// Some writers pad between the terminator and the first record.
	if off := int(h.HeaderLength); off > c.Offset() && off <= c.Len() {
		if err := c.Seek(off); err != nil {
			return nil, err
		}
	}

	return &Table{
		Header: h,
		Fields: fields,
		cursor: c,
		log:    log,
	}, nil
}

func readHeader(c *binio.Cursor) (Header, error) {
	var h Header
	if c.Len() < headerSize {
		return h, eris.Wrapf(geoerr.ErrFormat, "dbf: header needs %d bytes, have %d", headerSize, c.Len())
	}

	raw, err := c.Next(4)
	if err != nil {
		return h, err
	}
	h.Version = raw[0]
	if raw[2] >= 1 && raw[2] <= 12 && raw[3] >= 1 && raw[3] <= 31 {
		h.LastUpdate = time.Date(1900+int(raw[1]), time.Month(raw[2]), int(raw[3]), 0, 0, 0, 0, time.UTC)
	}

	if h.RecordCount, err = c.Int32(binary.LittleEndian); err != nil {
		return h, err
	}
	if h.RecordCount < 0 {
		return h, eris.Wrapf(geoerr.ErrFormat, "dbf: negative record count %d", h.RecordCount)
	}
	if h.HeaderLength, err = c.Int16(binary.LittleEndian); err != nil {
		return h, err
	}
	if h.RecordLength, err = c.Int16(binary.LittleEndian); err != nil {
		return h, err
	}

	// Reserved: transaction and encryption flags, multi-user area, MDX flag,
	// language driver.
	if err := c.Skip(20); err != nil {
		return h, err
	}
	return h, nil
}

func readFields(c *binio.Cursor, text *encoding.Decoder, lenientDates bool) ([]FieldDescriptor, error) {
	var fields []FieldDescriptor
	for {
		b, err := c.Byte()
		if err != nil {
			return nil, eris.Wrap(err, "dbf: field descriptors not terminated")
		}
		if b == fieldTerminator {
			return fields, nil
		}

		rest, err := c.Next(descriptorSize - 1)
		if err != nil {
			return nil, eris.Wrapf(err, "dbf: field descriptor %d", len(fields))
		}
		desc := append([]byte{b}, rest...)

		name, err := fieldName(text, desc[:nameSize])
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, eris.Wrapf(geoerr.ErrFormat, "dbf: field descriptor %d has no name", len(fields))
		}

		f := FieldDescriptor{
			Name:         name,
			Type:         FieldType(desc[11]),
			Length:       desc[16],
			DecimalCount: desc[17],
		}
		if f.codec, err = newFieldCodec(f.Type, text, lenientDates); err != nil {
			return nil, eris.Wrapf(err, "dbf: field %s", name)
		}
		fields = append(fields, f)
	}
}

func fieldName(text *encoding.Decoder, raw []byte) (string, error) {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	s, err := decodeText(text, raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// Names returns the field names in schema order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the descriptor for name.
func (t *Table) Field(name string) (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Records returns the table's record iterator. The underlying cursor is
// shared, so records can be iterated only once per Table.
func (t *Table) Records() (*Records, error) {
	if t.consumed {
		return nil, eris.Wrap(geoerr.ErrUnsupportedOperation, "dbf: records already iterated")
	}
	t.consumed = true
	return &Records{
		table:     t,
		remaining: int(t.Header.RecordCount),
	}, nil
}
