package dbf

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/geoerr"
)

// Record is one decoded row. Values are nil, string, float64, float32, bool
// or time.Time depending on the field type.
type Record struct {
	fields []FieldDescriptor
	values []any
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.values) }

// Value returns the i-th value in schema order.
func (r Record) Value(i int) any { return r.values[i] }

// Values returns all values in schema order.
func (r Record) Values() []any { return r.values }

// Get returns the value of the named field.
func (r Record) Get(name string) (any, bool) {
	for i, f := range r.fields {
		if f.Name == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the record keyed by field name.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, f := range r.fields {
		m[f.Name] = r.values[i]
	}
	return m
}

// Records iterates over table rows. Deleted rows are skipped but still count
// against the header's record count.
type Records struct {
	table     *Table
	remaining int
	row       int
	deleted   int
	current   Record
	err       error
}

// Next advances to the next live record. It returns false at the end of the
// table or on error; check Err afterwards.
func (r *Records) Next() bool {
	if r.err != nil {
		return false
	}
	c := r.table.cursor
	for r.remaining > 0 {
		offset := c.Offset()
		marker, err := c.Byte()
		if err != nil {
			r.err = eris.Wrapf(err, "dbf: record %d", r.row)
			return false
		}
		r.remaining--
		row := r.row
		r.row++

		switch marker {
		case markerValid:
			rec, err := r.decodeRow(row)
			if err != nil {
				r.err = err
				return false
			}
			r.current = rec
			return true
		case markerDeleted:
			r.deleted++
			for _, f := range r.table.Fields {
				if err := c.Skip(int(f.Length)); err != nil {
					r.err = eris.Wrapf(err, "dbf: deleted record %d", row)
					return false
				}
			}
		case markerEOF:
			r.table.log.Warn("dbf: end-of-file marker before record count reached",
				zap.Int("record", row),
				zap.Int("missing", r.remaining+1),
			)
			r.remaining = 0
		default:
			r.err = eris.Wrapf(geoerr.ErrFormat, "dbf: record %d at offset %d: invalid marker 0x%02X", row, offset, marker)
			return false
		}
	}
	return false
}

func (r *Records) decodeRow(row int) (Record, error) {
	fields := r.table.Fields
	values := make([]any, len(fields))
	for i, f := range fields {
		raw, err := r.table.cursor.Next(int(f.Length))
		if err != nil {
			return Record{}, eris.Wrapf(err, "dbf: record %d field %s", row, f.Name)
		}
		v, err := f.Decode(raw)
		if err != nil {
			return Record{}, eris.Wrapf(err, "dbf: record %d field %s", row, f.Name)
		}
		values[i] = v
	}
	return Record{fields: fields, values: values}, nil
}

// Record returns the record loaded by the last successful Next.
func (r *Records) Record() Record { return r.current }

// Err returns the error that stopped iteration, if any.
func (r *Records) Err() error { return r.err }

// Deleted returns how many deleted rows have been skipped so far.
func (r *Records) Deleted() int { return r.deleted }

// All drains the iterator.
func (r *Records) All() ([]Record, error) {
	var out []Record
	for r.Next() {
		out = append(out, r.current)
	}
	return out, r.err
}
