package types

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is a typed column value. A nil Data is NULL.
//
// Data always holds the canonical Go representation of Type:
//
//	BOOL bool, CHAR int8, SHORT int16, INT int32, LONG int64,
//	FLOAT float32, DOUBLE float64, STRING/SYMBOL string, BLOB []byte,
//	DATE/TIMESTAMP/NANOTIMESTAMP time.Time (UTC), UUID uuid.UUID,
//	arrays []Value of the element type.
type Value struct {
	Type DataType
	Data any
}

// RawRow is an application row before conversion, one host value per column.
type RawRow = []any

// Row is a converted row, one typed value per column in schema order.
type Row = []Value

// Null returns the NULL value of type t.
func Null(t DataType) Value {
	return Value{Type: t}
}

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool {
	return v.Data == nil
}

// Int64 returns the integral payload of v. Temporal values are returned in
// their type's unit: days for DATE, milliseconds for TIMESTAMP, nanoseconds
// for NANOTIMESTAMP.
func (v Value) Int64() (int64, bool) {
	switch d := v.Data.(type) {
	case int8:
		return int64(d), true
	case int16:
		return int64(d), true
	case int32:
		return int64(d), true
	case int64:
		return d, true
	case bool:
		if d {
			return 1, true
		}
		return 0, true
	case time.Time:
		switch v.Type {
		case TypeDate:
			return floorDiv(d.Unix(), 86400), true
		case TypeTimestamp:
			return d.UnixMilli(), true
		default:
			return d.UnixNano(), true
		}
	}
	return 0, false
}

// Float64 returns the numeric payload of v as a float64.
func (v Value) Float64() (float64, bool) {
	switch d := v.Data.(type) {
	case float32:
		return float64(d), true
	case float64:
		return d, true
	}
	if i, ok := v.Int64(); ok {
		return float64(i), true
	}
	return 0, false
}

// Bytes returns the byte payload of string, blob and uuid values.
func (v Value) Bytes() ([]byte, bool) {
	switch d := v.Data.(type) {
	case string:
		return []byte(d), true
	case []byte:
		return d, true
	case uuid.UUID:
		return d[:], true
	}
	return nil, false
}

// Elements returns the items of an array value.
func (v Value) Elements() []Value {
	items, _ := v.Data.([]Value)
	return items
}

func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	switch d := v.Data.(type) {
	case []Value:
		parts := make([]string, len(d))
		for i, e := range d {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case time.Time:
		switch v.Type {
		case TypeDate:
			return d.Format("2006.01.02")
		case TypeTimestamp:
			return d.Format("2006.01.02T15:04:05.000")
		default:
			return d.Format("2006.01.02T15:04:05.000000000")
		}
	case []byte:
		return string(d)
	}
	return fmt.Sprint(v.Data)
}

// Native returns the Go value carried by v, unwrapping array elements, so
// that a converted row can be fed back through conversion unchanged.
func (v Value) Native() any {
	if items, ok := v.Data.([]Value); ok {
		out := make([]any, len(items))
		for i, e := range items {
			out[i] = e.Native()
		}
		return out
	}
	return v.Data
}

// NativeRow returns the host representation of a converted row.
func NativeRow(r Row) RawRow {
	raw := make(RawRow, len(r))
	for i, v := range r {
		raw[i] = v.Native()
	}
	return raw
}

// Compare orders two values of the same scalar type. NULL sorts first.
func Compare(a, b Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}
	switch a.Type.Elem() {
	case TypeFloat, TypeDouble:
		x, _ := a.Float64()
		y, _ := b.Float64()
		return cmpOrdered(x, y)
	case TypeString, TypeSymbol, TypeBlob, TypeUUID:
		x, _ := a.Bytes()
		y, _ := b.Bytes()
		return bytes.Compare(x, y)
	}
	x, _ := a.Int64()
	y, _ := b.Int64()
	return cmpOrdered(x, y)
}

// Equal reports whether two values of the same type are equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func cmpOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
