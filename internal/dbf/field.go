package dbf

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"

	"github.com/sells-group/shapeset/internal/geoerr"
)

// FieldType is the one-byte type tag of a dBase field.
type FieldType byte

// Supported field types.
const (
	Character FieldType = 'C'
	Number    FieldType = 'N'
	Logical   FieldType = 'L'
	Date      FieldType = 'D'
	Float     FieldType = 'F'
)

func (t FieldType) String() string {
	switch t {
	case Character:
		return "Character"
	case Number:
		return "Number"
	case Logical:
		return "Logical"
	case Date:
		return "Date"
	case Float:
		return "Float"
	default:
		return strconv.QuoteRune(rune(t))
	}
}

// FieldDescriptor is one column of the table schema.
type FieldDescriptor struct {
	Name         string
	Type         FieldType
	Length       uint8
	DecimalCount uint8

	codec fieldCodec
}

// Decode decodes one raw field slot of exactly Length bytes.
func (f FieldDescriptor) Decode(raw []byte) (any, error) {
	return f.codec.decode(raw)
}

// fieldCodec decodes the raw bytes of one field slot. One codec is chosen
// per field when the schema is read.
type fieldCodec interface {
	decode(raw []byte) (any, error)
}

func newFieldCodec(t FieldType, text *encoding.Decoder, lenientDates bool) (fieldCodec, error) {
	switch t {
	case Character:
		return characterCodec{text: text}, nil
	case Number:
		return numberCodec{text: text}, nil
	case Logical:
		return logicalCodec{}, nil
	case Date:
		return dateCodec{lenient: lenientDates}, nil
	case Float:
		return floatCodec{text: text}, nil
	default:
		return nil, eris.Wrapf(geoerr.ErrUnsupportedFieldType, "dbf: type %s", t)
	}
}

type characterCodec struct {
	text *encoding.Decoder
}

func (c characterCodec) decode(raw []byte) (any, error) {
	return decodeText(c.text, raw)
}

type numberCodec struct {
	text *encoding.Decoder
}

func (c numberCodec) decode(raw []byte) (any, error) {
	s, err := numericText(c.text, raw)
	if err != nil || s == "" {
		return nil, err
	}
	if !isDecimal(s) {
		return nil, eris.Wrapf(geoerr.ErrFieldParse, "dbf: %q is not a number", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Wrapf(geoerr.ErrFieldParse, "dbf: %q is not a number", s)
	}
	return v, nil
}

type floatCodec struct {
	text *encoding.Decoder
}

func (c floatCodec) decode(raw []byte) (any, error) {
	s, err := numericText(c.text, raw)
	if err != nil || s == "" {
		return nil, err
	}
	if !isDecimal(s) {
		return nil, eris.Wrapf(geoerr.ErrFieldParse, "dbf: %q is not a float", s)
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil, eris.Wrapf(geoerr.ErrFieldParse, "dbf: %q is not a float", s)
	}
	return float32(v), nil
}

// isDecimal reports whether s is a plain decimal literal: optional sign,
// digits with an optional fraction, optional exponent. ParseFloat alone also
// takes hex floats, inf and nan.
func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

type logicalCodec struct{}

func (logicalCodec) decode(raw []byte) (any, error) {
	if len(raw) == 0 {
		return false, nil
	}
	switch raw[0] {
	case 'Y', 'y', 'T', 't':
		return true, nil
	default:
		return false, nil
	}
}

const dateLayout = "20060102"

type dateCodec struct {
	lenient bool
}

func (c dateCodec) decode(raw []byte) (any, error) {
	s := strings.TrimSpace(string(raw))
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		if c.lenient {
			return nil, nil
		}
		return nil, eris.Wrapf(geoerr.ErrFieldParse, "dbf: %q is not a yyyyMMdd date", s)
	}
	return d, nil
}

func decodeText(text *encoding.Decoder, raw []byte) (string, error) {
	b, err := text.Bytes(raw)
	if err != nil {
		return "", eris.Wrap(geoerr.ErrFieldParse, "dbf: decode text")
	}
	return string(b), nil
}

func numericText(text *encoding.Decoder, raw []byte) (string, error) {
	s, err := decodeText(text, raw)
	if err != nil {
		return "", err
	}
	return strings.Trim(s, " \x00"), nil
}
