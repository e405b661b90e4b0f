package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType("long")
	require.NoError(t, err)
	assert.Equal(t, TypeLong, dt)

	dt, err = ParseDataType("DOUBLE[]")
	require.NoError(t, err)
	assert.True(t, dt.IsArray())
	assert.Equal(t, TypeDouble, dt.Elem())
	assert.Equal(t, "DOUBLE[]", dt.String())

	_, err = ParseDataType("DECIMAL")
	assert.Error(t, err)
}

func TestSchemaLookup(t *testing.T) {
	s := TableSchema{Columns: []ColumnSchema{
		{Name: "sym", Type: TypeSymbol},
		{Name: "price", Type: TypeDouble},
	}}
	assert.Equal(t, 1, s.Index("price"))
	assert.Equal(t, -1, s.Index("qty"))
	assert.Equal(t, []string{"sym", "price"}, s.Names())
	assert.Equal(t, []DataType{TypeSymbol, TypeDouble}, s.Types())
}

func TestValueInt64TemporalUnits(t *testing.T) {
	ts := time.Date(1969, 12, 31, 12, 0, 0, 0, time.UTC)

	days, ok := Value{Type: TypeDate, Data: ts}.Int64()
	require.True(t, ok)
	assert.Equal(t, int64(-1), days)

	ms, ok := Value{Type: TypeTimestamp, Data: ts}.Int64()
	require.True(t, ok)
	assert.Equal(t, ts.UnixMilli(), ms)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Null(TypeInt), Value{Type: TypeInt, Data: int32(0)}))
	assert.Equal(t, 1, Compare(Value{Type: TypeLong, Data: int64(5)}, Value{Type: TypeLong, Data: int64(2)}))
	assert.Equal(t, 0, Compare(Value{Type: TypeString, Data: "a"}, Value{Type: TypeString, Data: "a"}))
	assert.Equal(t, -1, Compare(Value{Type: TypeDouble, Data: 1.5}, Value{Type: TypeDouble, Data: 2.5}))
}

func TestNativeRowUnwrapsArrays(t *testing.T) {
	row := Row{
		{Type: TypeInt, Data: int32(7)},
		{Type: ArrayOf(TypeLong), Data: []Value{{Type: TypeLong, Data: int64(1)}, Null(TypeLong)}},
		Null(TypeString),
	}
	raw := NativeRow(row)
	assert.Equal(t, RawRow{int32(7), []any{int64(1), nil}, nil}, raw)
}
