// Package convert coerces host values into typed column values.
package convert

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// Func converts one host value to the typed representation of a column.
// It returns an *errors.Error of type ErrorTypeConversion on failure.
type Func func(v any, t types.DataType) (types.Value, error)

// numberLike matches json.Number from encoding/json and goccy/go-json.
type numberLike interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// timestampFormats are tried in order when parsing temporal strings.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006.01.02T15:04:05.999999999",
	"2006.01.02 15:04:05.999999999",
	"2006-01-02",
	"2006.01.02",
}

// Default is the built-in converter. NULL (nil) is accepted for every type.
func Default(v any, t types.DataType) (types.Value, error) {
	if v == nil {
		return types.Null(t), nil
	}
	if tv, ok := v.(types.Value); ok {
		if tv.Type == t || tv.IsNull() {
			return types.Value{Type: t, Data: tv.Data}, nil
		}
		v = tv.Native()
	}
	if t.IsArray() {
		return toArray(v, t)
	}

	var (
		data any
		ok   bool
	)
	switch t {
	case types.TypeBool:
		data, ok = toBool(v)
	case types.TypeChar:
		data, ok = toIntN[int8](v, math.MinInt8, math.MaxInt8)
	case types.TypeShort:
		data, ok = toIntN[int16](v, math.MinInt16, math.MaxInt16)
	case types.TypeInt:
		data, ok = toIntN[int32](v, math.MinInt32, math.MaxInt32)
	case types.TypeLong:
		data, ok = toIntN[int64](v, math.MinInt64, math.MaxInt64)
	case types.TypeFloat:
		var f float64
		if f, ok = toFloat(v); ok {
			data = float32(f)
		}
	case types.TypeDouble:
		data, ok = toFloat(v)
	case types.TypeString, types.TypeSymbol:
		data, ok = toString(v)
	case types.TypeBlob:
		data, ok = toBlob(v)
	case types.TypeDate, types.TypeTimestamp, types.TypeNanoTimestamp:
		data, ok = toTime(v, t)
	case types.TypeUUID:
		data, ok = toUUID(v)
	default:
		return types.Value{}, errors.Newf(errors.ErrorTypeConversion, "unsupported column type %s", t)
	}
	if !ok {
		return types.Value{}, mismatch(v, t)
	}
	return types.Value{Type: t, Data: data}, nil
}

// Row converts every value of raw using the matching column type.
// It returns the index of the failing column alongside the error.
func Row(fn Func, raw types.RawRow, dts []types.DataType) (types.Row, int, error) {
	if len(raw) != len(dts) {
		return nil, -1, errors.Newf(errors.ErrorTypeValidation,
			"column counts don't match: row has %d values, table has %d columns", len(raw), len(dts))
	}
	row := make(types.Row, len(raw))
	for i, v := range raw {
		tv, err := fn(v, dts[i])
		if err != nil {
			return nil, i, err
		}
		row[i] = tv
	}
	return row, -1, nil
}

func mismatch(v any, t types.DataType) error {
	return errors.Newf(errors.ErrorTypeConversion, "cannot convert %T value %v to %s", v, v, t).
		WithDetail("type", t.String())
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(b)
		return p, err == nil
	}
	if i, ok := toInt64(v); ok {
		return i != 0, true
	}
	return false, false
}

func toIntN[T int8 | int16 | int32 | int64](v any, lo, hi int64) (T, bool) {
	i, ok := toInt64(v)
	if !ok || i < lo || i > hi {
		return 0, false
	}
	return T(i), true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case numberLike:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return floatToInt(f)
		}
		return i, true
	}
	return 0, false
}

// floatToInt refuses values with a fractional part.
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case numberLike:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		return 0, false
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

func toBlob(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	}
	return nil, false
}

// toTime accepts time.Time, temporal strings, and integers already expressed
// in the column's unit (days, milliseconds or nanoseconds since epoch).
func toTime(v any, t types.DataType) (time.Time, bool) {
	var ts time.Time
	switch x := v.(type) {
	case time.Time:
		ts = x
	case string:
		parsed, ok := parseTime(x)
		if !ok {
			return time.Time{}, false
		}
		ts = parsed
	default:
		n, ok := toInt64(v)
		if !ok {
			return time.Time{}, false
		}
		switch t {
		case types.TypeDate:
			ts = time.Unix(n*86400, 0)
		case types.TypeTimestamp:
			ts = time.UnixMilli(n)
		default:
			ts = time.Unix(0, n)
		}
	}
	ts = ts.UTC()
	switch t {
	case types.TypeDate:
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	case types.TypeTimestamp:
		ts = ts.Truncate(time.Millisecond)
	}
	return ts, true
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, format := range timestampFormats {
		if ts, err := time.Parse(format, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func toUUID(v any) (uuid.UUID, bool) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, true
	case [16]byte:
		return uuid.UUID(u), true
	case []byte:
		id, err := uuid.FromBytes(u)
		return id, err == nil
	case string:
		id, err := uuid.Parse(u)
		return id, err == nil
	}
	return uuid.UUID{}, false
}

func toArray(v any, t types.DataType) (types.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return types.Value{}, mismatch(v, t)
	}
	// []byte is a scalar BLOB, not an array of CHAR.
	if _, isBytes := v.([]byte); isBytes && t.Elem() != types.TypeChar {
		return types.Value{}, mismatch(v, t)
	}
	elem := t.Elem()
	items := make([]types.Value, rv.Len())
	for i := range items {
		item, err := Default(rv.Index(i).Interface(), elem)
		if err != nil {
			return types.Value{}, errors.Wrap(err, errors.ErrorTypeConversion,
				fmt.Sprintf("array element %d", i))
		}
		items[i] = item
	}
	return types.Value{Type: t, Data: items}, nil
}
