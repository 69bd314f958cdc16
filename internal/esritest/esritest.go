// Package esritest builds shapefile, dBase and zip fixtures in memory for tests.
package esritest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Ring is a list of x/y pairs.
type Ring [][2]float64

// Record is one polygon record: its parts in file order.
type Record []Ring

// Square returns a closed clockwise ring with its lower-left corner at (x, y).
func Square(x, y, size float64) Ring {
	return Ring{
		{x, y},
		{x, y + size},
		{x + size, y + size},
		{x + size, y},
		{x, y},
	}
}

// Shapefile encodes records as a shapefile of the given header shape type.
// Every record body is written as a Polygon.
func Shapefile(shapeType int32, records ...Record) []byte {
	var body bytes.Buffer
	for i, rec := range records {
		content := polygonBody(rec)
		writeBE(&body, int32(i+1))
		writeBE(&body, int32(len(content)/2))
		body.Write(content)
	}

	var out bytes.Buffer
	writeBE(&out, int32(9994))
	for i := 0; i < 5; i++ {
		writeBE(&out, int32(0))
	}
	writeBE(&out, int32((100+body.Len())/2))
	writeLE(&out, int32(1000))
	writeLE(&out, shapeType)
	for _, v := range []float64{-180, -90, 180, 90, 0, 0, 0, 0} {
		writeLE(&out, v)
	}
	out.Write(body.Bytes())
	return out.Bytes()
}

// PolygonShapefile encodes records as a Polygon shapefile.
func PolygonShapefile(records ...Record) []byte {
	return Shapefile(5, records...)
}

func polygonBody(rec Record) []byte {
	var b bytes.Buffer
	writeLE(&b, int32(5))

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	var numPoints int32
	for _, ring := range rec {
		for _, p := range ring {
			minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
			minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
		}
		numPoints += int32(len(ring))
	}
	for _, v := range []float64{minX, minY, maxX, maxY} {
		writeLE(&b, v)
	}

	writeLE(&b, int32(len(rec)))
	writeLE(&b, numPoints)
	var offset int32
	for _, ring := range rec {
		writeLE(&b, offset)
		offset += int32(len(ring))
	}
	for _, ring := range rec {
		for _, p := range ring {
			writeLE(&b, p[0])
			writeLE(&b, p[1])
		}
	}
	return b.Bytes()
}

// Field describes one dBase column.
type Field struct {
	Name     string
	Type     byte
	Length   uint8
	Decimals uint8
}

// Row is one dBase row. Values are raw text, padded to each field's length.
type Row struct {
	Deleted bool
	Values  []string
}

// Table encodes a dBase III table followed by the 0x1A end-of-file marker.
func Table(fields []Field, rows []Row) []byte {
	return TableWithCount(fields, rows, int32(len(rows)))
}

// TableWithCount is Table with an explicit header record count.
func TableWithCount(fields []Field, rows []Row, count int32) []byte {
	recordLen := 1
	for _, f := range fields {
		recordLen += int(f.Length)
	}

	var b bytes.Buffer
	b.Write([]byte{0x03, 124, 1, 15})
	writeLE(&b, count)
	writeLE(&b, int16(32+32*len(fields)+1))
	writeLE(&b, int16(recordLen))
	b.Write(make([]byte, 20))

	for _, f := range fields {
		name := make([]byte, 11)
		copy(name, f.Name)
		b.Write(name)
		b.WriteByte(f.Type)
		b.Write(make([]byte, 4))
		b.WriteByte(f.Length)
		b.WriteByte(f.Decimals)
		b.Write(make([]byte, 14))
	}
	b.WriteByte(0x0D)

	for _, row := range rows {
		if row.Deleted {
			b.WriteByte('*')
		} else {
			b.WriteByte(' ')
		}
		for i, f := range fields {
			var v string
			if i < len(row.Values) {
				v = row.Values[i]
			}
			b.WriteString(pad(v, int(f.Length), f.Type == 'N' || f.Type == 'F'))
		}
	}
	b.WriteByte(0x1A)
	return b.Bytes()
}

func pad(v string, n int, right bool) string {
	if len(v) >= n {
		return v[:n]
	}
	fill := strings.Repeat(" ", n-len(v))
	if right {
		return fill + v
	}
	return v + fill
}

// Entry is one file inside a zip archive.
type Entry struct {
	Name string
	Data []byte
}

// Zip writes entries, in order, into a zip archive.
func Zip(entries ...Entry) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(e.Data); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Countries builds a world-like fixture: n polygon records and a table with
// a NAME column plus extra attribute columns cycling through every field
// type. Every fifth record carries a hole and every seventh is a
// two-polygon record.
func Countries(n, extra int) (shp, dbf []byte) {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		x := -179 + float64(i%30)*11.5
		y := -89 + float64(i/30)*25
		rec := Record{Square(x, y, 10)}
		if i%5 == 0 {
			rec = append(rec, Square(x+2, y+2, 3))
		}
		if i%7 == 0 {
			rec = append(rec, Square(x+1, y+15, 5))
		}
		records = append(records, rec)
	}

	fields := []Field{{Name: "NAME", Type: 'C', Length: 40}}
	types := []Field{
		{Type: 'C', Length: 16},
		{Type: 'N', Length: 10},
		{Type: 'F', Length: 12, Decimals: 3},
		{Type: 'L', Length: 1},
		{Type: 'D', Length: 8},
	}
	for k := 0; k < extra; k++ {
		f := types[k%len(types)]
		f.Name = fmt.Sprintf("ATTR_%02d", k+1)
		fields = append(fields, f)
	}

	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		values := []string{fmt.Sprintf("Country %03d", i)}
		for k := 0; k < extra; k++ {
			switch fields[k+1].Type {
			case 'C':
				values = append(values, fmt.Sprintf("v%d-%d", i, k))
			case 'N':
				values = append(values, fmt.Sprintf("%d", i*(k+1)))
			case 'F':
				values = append(values, fmt.Sprintf("%.3f", float64(i)/8))
			case 'L':
				values = append(values, map[bool]string{true: "T", false: "F"}[i%2 == 0])
			case 'D':
				values = append(values, fmt.Sprintf("2024%02d%02d", i%12+1, i%28+1))
			}
		}
		rows = append(rows, Row{Values: values})
	}

	return PolygonShapefile(records...), Table(fields, rows)
}

func writeBE(b *bytes.Buffer, v any) {
	if err := binary.Write(b, binary.BigEndian, v); err != nil {
		panic(err)
	}
}

func writeLE(b *bytes.Buffer, v any) {
	if err := binary.Write(b, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// CountriesArchive zips a Countries fixture as a bundle named base.
func CountriesArchive(base string, n, extra int) []byte {
	shpData, dbfData := Countries(n, extra)
	return Zip(
		Entry{Name: base + ".shp", Data: shpData},
		Entry{Name: base + ".dbf", Data: dbfData},
	)
}
