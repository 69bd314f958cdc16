package dbf

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/shapeset/internal/esritest"
	"github.com/sells-group/shapeset/internal/geoerr"
)

var allTypes = []esritest.Field{
	{Name: "NAME", Type: 'C', Length: 12},
	{Name: "POP", Type: 'N', Length: 10},
	{Name: "AREA", Type: 'F', Length: 10, Decimals: 2},
	{Name: "MEMBER", Type: 'L', Length: 1},
	{Name: "FOUNDED", Type: 'D', Length: 8},
}

func quiet() Options { return Options{Logger: zap.NewNop()} }

func TestDecode_AllFieldTypes(t *testing.T) {
	data := esritest.Table(allTypes, []esritest.Row{
		{Values: []string{"France", "67000000", "551695.5", "Y", "19580104"}},
		{Values: []string{"", "", "", "n", "19991231"}},
	})

	table, err := Decode(data, quiet())
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), table.Header.Version)
	assert.Equal(t, int32(2), table.Header.RecordCount)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), table.Header.LastUpdate)
	assert.Equal(t, []string{"NAME", "POP", "AREA", "MEMBER", "FOUNDED"}, table.Names())

	area, ok := table.Field("AREA")
	require.True(t, ok)
	assert.Equal(t, Float, area.Type)
	assert.Equal(t, uint8(10), area.Length)
	assert.Equal(t, uint8(2), area.DecimalCount)

	records, err := table.Records()
	require.NoError(t, err)
	all, err := records.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	first := all[0]
	assert.Equal(t, 5, first.Len())
	assert.Equal(t, "France      ", first.Value(0))
	assert.Equal(t, 67000000.0, first.Value(1))
	assert.Equal(t, float32(551695.5), first.Value(2))
	assert.Equal(t, true, first.Value(3))
	assert.Equal(t, time.Date(1958, 1, 4, 0, 0, 0, 0, time.UTC), first.Value(4))

	second := all[1]
	assert.Equal(t, "            ", second.Value(0))
	assert.Nil(t, second.Value(1))
	assert.Nil(t, second.Value(2))
	assert.Equal(t, false, second.Value(3))

	v, ok := second.Get("FOUNDED")
	require.True(t, ok)
	assert.Equal(t, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), v)
	_, ok = second.Get("MISSING")
	assert.False(t, ok)

	m := first.Map()
	assert.Len(t, m, 5)
	assert.Equal(t, 67000000.0, m["POP"])
}

func TestRecords_DeletedRowsCountAgainstTotal(t *testing.T) {
	fields := []esritest.Field{{Name: "ID", Type: 'N', Length: 4}}
	rows := []esritest.Row{
		{Values: []string{"1"}},
		{Deleted: true, Values: []string{"2"}},
		{Values: []string{"3"}},
		{Deleted: true, Values: []string{"4"}},
		{Values: []string{"5"}},
	}

	table, err := Decode(esritest.Table(fields, rows), quiet())
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)

	var ids []any
	for records.Next() {
		ids = append(ids, records.Record().Value(0))
	}
	require.NoError(t, records.Err())
	assert.Equal(t, []any{1.0, 3.0, 5.0}, ids)
	assert.Equal(t, 2, records.Deleted())
}

func TestRecords_EOFMarkerStopsEarly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	fields := []esritest.Field{{Name: "ID", Type: 'N', Length: 4}}
	rows := []esritest.Row{{Values: []string{"1"}}, {Values: []string{"2"}}}

	table, err := Decode(esritest.TableWithCount(fields, rows, 5), Options{Logger: zap.New(core)})
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)

	all, err := records.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, logs.FilterMessage("dbf: end-of-file marker before record count reached").Len())
}

func TestRecords_TruncatedWithoutEOFMarker(t *testing.T) {
	fields := []esritest.Field{{Name: "ID", Type: 'N', Length: 4}}
	data := esritest.TableWithCount(fields, []esritest.Row{{Values: []string{"1"}}}, 2)
	data = data[:len(data)-1]

	table, err := Decode(data, quiet())
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)

	all, err := records.All()
	require.Error(t, err)
	assert.True(t, errors.Is(err, geoerr.ErrFormat))
	assert.Len(t, all, 1)
}

func TestRecords_InvalidMarker(t *testing.T) {
	fields := []esritest.Field{{Name: "ID", Type: 'N', Length: 4}}
	data := esritest.Table(fields, []esritest.Row{{Values: []string{"1"}}})
	data[32+32+1] = '#'

	table, err := Decode(data, quiet())
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)

	assert.False(t, records.Next())
	assert.True(t, errors.Is(records.Err(), geoerr.ErrFormat))
	// Iteration stays stopped.
	assert.False(t, records.Next())
}

func TestRecords_NotRestartable(t *testing.T) {
	table, err := Decode(esritest.Table(allTypes, nil), quiet())
	require.NoError(t, err)

	_, err = table.Records()
	require.NoError(t, err)
	_, err = table.Records()
	require.Error(t, err)
	assert.True(t, errors.Is(err, geoerr.ErrUnsupportedOperation))
}

func TestRecords_FieldParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		field esritest.Field
		value string
	}{
		{"number", esritest.Field{Name: "N", Type: 'N', Length: 6}, "12a"},
		{"overflow", esritest.Field{Name: "N", Type: 'N', Length: 6}, "******"},
		{"float", esritest.Field{Name: "F", Type: 'F', Length: 6}, "x.5"},
		{"nan", esritest.Field{Name: "N", Type: 'N', Length: 6}, "nan"},
		{"inf", esritest.Field{Name: "N", Type: 'N', Length: 6}, "inf"},
		{"negative infinity", esritest.Field{Name: "N", Type: 'N', Length: 9}, "-Infinity"},
		{"hex float", esritest.Field{Name: "N", Type: 'N', Length: 6}, "0x1p-2"},
		{"float nan", esritest.Field{Name: "F", Type: 'F', Length: 6}, "NaN"},
		{"bare exponent", esritest.Field{Name: "N", Type: 'N', Length: 6}, "1e"},
		{"lone sign", esritest.Field{Name: "N", Type: 'N', Length: 6}, "-"},
		{"date", esritest.Field{Name: "D", Type: 'D', Length: 8}, "2024-1-1"},
		{"blank date", esritest.Field{Name: "D", Type: 'D', Length: 8}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := esritest.Table([]esritest.Field{tt.field}, []esritest.Row{{Values: []string{tt.value}}})
			table, err := Decode(data, quiet())
			require.NoError(t, err)
			records, err := table.Records()
			require.NoError(t, err)

			assert.False(t, records.Next())
			assert.True(t, errors.Is(records.Err(), geoerr.ErrFieldParse), "got %v", records.Err())
		})
	}
}

func TestRecords_LenientDates(t *testing.T) {
	fields := []esritest.Field{{Name: "D", Type: 'D', Length: 8}}
	data := esritest.Table(fields, []esritest.Row{{Values: []string{""}}, {Values: []string{"20200229"}}})

	table, err := Decode(data, Options{LenientDates: true, Logger: zap.NewNop()})
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)

	all, err := records.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Nil(t, all[0].Value(0))
	assert.Equal(t, time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), all[1].Value(0))
}

func TestRecords_NumericNulPadding(t *testing.T) {
	fields := []esritest.Field{{Name: "N", Type: 'N', Length: 6}}
	data := esritest.Table(fields, []esritest.Row{{Values: []string{"42"}}})
	// Replace the leading space padding with NULs.
	row := 32 + 32 + 1 + 1
	copy(data[row:], []byte{0, 0, 0, 0})

	table, err := Decode(data, quiet())
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)
	require.True(t, records.Next())
	assert.Equal(t, 42.0, records.Record().Value(0))
}

func TestRecords_Latin1Text(t *testing.T) {
	fields := []esritest.Field{{Name: "NAME", Type: 'C', Length: 8}}
	data := esritest.Table(fields, []esritest.Row{{Values: []string{"Cte"}}})
	// "Côte" in ISO-8859-1.
	row := 32 + 32 + 1 + 1
	copy(data[row:], []byte{'C', 0xF4, 't', 'e'})

	table, err := Decode(data, quiet())
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)
	require.True(t, records.Next())
	assert.Equal(t, "Côte    ", records.Record().Value(0))
}

func TestDecode_HeaderLengthPadding(t *testing.T) {
	fields := []esritest.Field{{Name: "ID", Type: 'N', Length: 4}}
	data := esritest.Table(fields, []esritest.Row{{Values: []string{"7"}}})

	// Insert two padding bytes after the terminator and bump the header length.
	split := 32 + 32 + 1
	padded := append(append(append([]byte(nil), data[:split]...), 0, 0), data[split:]...)
	binary.LittleEndian.PutUint16(padded[8:10], uint16(split+2))

	table, err := Decode(padded, quiet())
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)
	require.True(t, records.Next())
	assert.Equal(t, 7.0, records.Record().Value(0))
}

func TestDecode_SchemaErrors(t *testing.T) {
	valid := esritest.Table(allTypes, nil)

	unsupported := append([]byte(nil), valid...)
	unsupported[32+11] = 'M'

	unterminated := append([]byte(nil), valid[:32+32*2]...)

	unnamed := append([]byte(nil), valid...)
	copy(unnamed[32:32+11], make([]byte, 11))
	unnamed[32] = 0

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", valid[:20], geoerr.ErrFormat},
		{"unsupported type", unsupported, geoerr.ErrUnsupportedFieldType},
		{"unterminated descriptors", unterminated, geoerr.ErrFormat},
		{"unnamed field", unnamed, geoerr.ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Decode(tt.data, quiet())
			require.Error(t, err)
			assert.Nil(t, table)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecode_WorldFixture(t *testing.T) {
	_, data := esritest.Countries(177, 28)

	table, err := Decode(data, quiet())
	require.NoError(t, err)
	assert.Len(t, table.Fields, 29)

	records, err := table.Records()
	require.NoError(t, err)
	all, err := records.All()
	require.NoError(t, err)
	require.Len(t, all, 177)

	for _, rec := range all {
		assert.Equal(t, 29, rec.Len())
	}
	name, _ := all[176].Get("NAME")
	assert.Equal(t, "Country 176", name.(string)[:11])
}

func TestFieldTypeString(t *testing.T) {
	assert.Equal(t, "Character", Character.String())
	assert.Equal(t, "Date", Date.String())
	assert.Equal(t, "'M'", FieldType('M').String())
}

func TestIsDecimal(t *testing.T) {
	for _, s := range []string{"0", "-3", "+3", "12.50", ".5", "3.", "1.5e3", "-2E-4"} {
		assert.True(t, isDecimal(s), s)
	}
	for _, s := range []string{"", "-", ".", "e5", "1e", "1e+", "nan", "Inf", "0x1p-2", "1_000", "1.2.3"} {
		assert.False(t, isDecimal(s), s)
	}
}
