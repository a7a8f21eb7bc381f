// Package codec converts between the string form of a value, as it travels over
// the RPC channel, and its raw little-endian representation in target memory.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Kind is a value-type tag.
type Kind string

const (
	S8      Kind = "s8"
	U8      Kind = "u8"
	S16     Kind = "s16"
	U16     Kind = "u16"
	S32     Kind = "s32"
	U32     Kind = "u32"
	S64     Kind = "s64"
	U64     Kind = "u64"
	Float   Kind = "float"
	Double  Kind = "double"
	UTF8    Kind = "utf8"
	UTF16   Kind = "utf16"
	ANSI    Kind = "ansi"
	CString Kind = "cstring"
)

var kinds = map[string]Kind{
	"s8": S8, "int8": S8,
	"u8": U8, "uint8": U8, "byte": U8,
	"s16": S16, "int16": S16,
	"u16": U16, "uint16": U16,
	"s32": S32, "int32": S32, "int": S32,
	"u32": U32, "uint32": U32, "uint": U32,
	"s64": S64, "int64": S64,
	"u64": U64, "uint64": U64, "pointer": U64,
	"float": Float, "f32": Float, "float32": Float,
	"double": Double, "f64": Double, "float64": Double,
	"utf8": UTF8, "string": UTF8,
	"utf16": UTF16,
	"ansi": ANSI,
	"cstring": CString,
}

// ParseKind resolves a value-type tag or one of its aliases.
func ParseKind(tag string) (Kind, error) {
	k, ok := kinds[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return "", fmt.Errorf("unknown value type %q", tag)
	}
	return k, nil
}

// Size is the byte width of a scalar kind, 0 for strings.
func (k Kind) Size() int {
	switch k {
	case S8, U8:
		return 1
	case S16, U16:
		return 2
	case S32, U32, Float:
		return 4
	case S64, U64, Double:
		return 8
	}
	return 0
}

func (k Kind) IsString() bool {
	switch k {
	case UTF8, UTF16, ANSI, CString:
		return true
	}
	return false
}

// UnitSize is the width of one code unit: 2 for utf16, otherwise 1.
func (k Kind) UnitSize() int {
	if k == UTF16 {
		return 2
	}
	return 1
}

// Terminator is the byte sequence ending a string of this kind.
func (k Kind) Terminator() []byte {
	return make([]byte, k.UnitSize())
}

var (
	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	ansi    = charmap.Windows1252
)

// Encode converts value into its in-memory bytes. Strings include their terminator.
func Encode(value string, k Kind) ([]byte, error) {
	if k.IsString() {
		return encodeString(value, k)
	}

	v := strings.TrimSpace(value)
	buf := make([]byte, k.Size())
	switch k {
	case S8, S16, S32, S64:
		n, err := strconv.ParseInt(v, 10, k.Size()*8)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", k, value, numErr(err))
		}
		putUint(buf, uint64(n))
	case U8, U16, U32, U64:
		n, err := strconv.ParseUint(v, 10, k.Size()*8)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", k, value, numErr(err))
		}
		putUint(buf, n)
	case Float:
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", k, value, numErr(err))
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(f)))
	case Double:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", k, value, numErr(err))
		}
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	default:
		return nil, fmt.Errorf("unknown value type %q", k)
	}
	return buf, nil
}

func encodeString(value string, k Kind) ([]byte, error) {
	var out []byte
	switch k {
	case UTF8, CString:
		out = []byte(value)
	case UTF16:
		b, err := utf16le.NewEncoder().Bytes([]byte(value))
		if err != nil {
			return nil, fmt.Errorf("cannot encode %q as utf16: %w", value, err)
		}
		out = b
	case ANSI:
		b, err := ansi.NewEncoder().Bytes([]byte(value))
		if err != nil {
			return nil, fmt.Errorf("cannot encode %q as ansi: %w", value, err)
		}
		out = b
	}
	return append(out, k.Terminator()...), nil
}

// Decode converts raw memory into the string form of a value. Scalar kinds
// require at least Size() bytes; strings stop at the first terminator.
func Decode(raw []byte, k Kind) (string, error) {
	if k.IsString() {
		return decodeString(raw, k)
	}
	if k.Size() == 0 {
		return "", fmt.Errorf("unknown value type %q", k)
	}
	if len(raw) < k.Size() {
		return "", fmt.Errorf("%s needs %d bytes, got %d", k, k.Size(), len(raw))
	}

	u := getUint(raw[:k.Size()])
	switch k {
	case S8:
		return strconv.FormatInt(int64(int8(u)), 10), nil
	case S16:
		return strconv.FormatInt(int64(int16(u)), 10), nil
	case S32:
		return strconv.FormatInt(int64(int32(u)), 10), nil
	case S64:
		return strconv.FormatInt(int64(u), 10), nil
	case U8, U16, U32, U64:
		return strconv.FormatUint(u, 10), nil
	case Float:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(u))), 'g', -1, 32), nil
	default: // Double
		return strconv.FormatFloat(math.Float64frombits(u), 'g', -1, 64), nil
	}
}

func decodeString(raw []byte, k Kind) (string, error) {
	raw = cutTerminator(raw, k)
	switch k {
	case UTF8:
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("memory does not contain valid UTF-8")
		}
		return string(raw), nil
	case CString:
		return strings.ToValidUTF8(string(raw), "�"), nil
	case UTF16:
		b, err := utf16le.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("memory does not contain valid UTF-16: %w", err)
		}
		return string(b), nil
	default: // ANSI
		b, err := ansi.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("memory does not contain valid ansi text: %w", err)
		}
		return string(b), nil
	}
}

// cutTerminator truncates raw at the first unit-aligned terminator and drops a
// trailing partial code unit.
func cutTerminator(raw []byte, k Kind) []byte {
	unit := k.UnitSize()
	raw = raw[:len(raw)-len(raw)%unit]
	term := k.Terminator()
	for i := 0; i+unit <= len(raw); i += unit {
		if bytes.Equal(raw[i:i+unit], term) {
			return raw[:i]
		}
	}
	return raw
}

func putUint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
}

func getUint(buf []byte) uint64 {
	var v uint64
	for i := range buf {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v
}

func numErr(err error) error {
	if ne, ok := err.(*strconv.NumError); ok {
		return ne.Err
	}
	return err
}
