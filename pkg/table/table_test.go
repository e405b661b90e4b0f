package table

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

func testSchema() *types.TableSchema {
	return &types.TableSchema{Columns: []types.ColumnSchema{
		{Name: "ts", Type: types.TypeTimestamp},
		{Name: "sym", Type: types.TypeSymbol},
		{Name: "qty", Type: types.TypeInt},
		{Name: "price", Type: types.TypeDouble},
		{Name: "id", Type: types.TypeUUID},
		{Name: "flags", Type: types.ArrayOf(types.TypeLong)},
		{Name: "day", Type: types.TypeDate},
		{Name: "raw", Type: types.TypeBlob},
	}}
}

func testRows(n int) []types.Row {
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	rows := make([]types.Row, n)
	for i := range rows {
		qty := types.Value{Type: types.TypeInt, Data: int32(i * 10)}
		if i%3 == 0 {
			qty = types.Null(types.TypeInt)
		}
		rows[i] = types.Row{
			{Type: types.TypeTimestamp, Data: base.Add(time.Duration(i) * time.Millisecond)},
			{Type: types.TypeSymbol, Data: []string{"AAPL", "MSFT"}[i%2]},
			qty,
			{Type: types.TypeDouble, Data: 100.5 + float64(i)},
			{Type: types.TypeUUID, Data: uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i)})},
			{Type: types.ArrayOf(types.TypeLong), Data: []types.Value{
				{Type: types.TypeLong, Data: int64(i)},
				types.Null(types.TypeLong),
			}},
			{Type: types.TypeDate, Data: time.Date(2024, 1, 2+i%5, 0, 0, 0, 0, time.UTC)},
			{Type: types.TypeBlob, Data: []byte{byte(i), 0xff}},
		}
	}
	return rows
}

func TestBuildPreservesRowsAndOrder(t *testing.T) {
	schema := testSchema()
	rows := testRows(5)

	b, err := Build(schema, rows)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, 5, b.NumRows())
	assert.Equal(t, rows, b.Rows())
}

func TestBuildRejectsWrongGoType(t *testing.T) {
	schema := &types.TableSchema{Columns: []types.ColumnSchema{{Name: "x", Type: types.TypeInt}}}
	_, err := Build(schema, []types.Row{{{Type: types.TypeInt, Data: "seven"}}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSend))
}

func TestBuildRejectsOversizedBatch(t *testing.T) {
	schema := &types.TableSchema{Columns: []types.ColumnSchema{{Name: "x", Type: types.TypeInt}}}
	_, err := Build(schema, make([]types.Row, MaxRows+1))
	assert.Error(t, err)
}

func TestArrowSchemaRoundTrip(t *testing.T) {
	schema := testSchema()
	as, err := ArrowSchema(schema)
	require.NoError(t, err)

	back, err := TableSchemaOf(as)
	require.NoError(t, err)
	assert.Equal(t, schema, back)
}

func TestCodecRoundTrip(t *testing.T) {
	schema := testSchema()
	rows := testRows(40)
	b, err := Build(schema, rows)
	require.NoError(t, err)
	defer b.Release()

	methodSets := map[string][]compression.Method{
		"none": nil,
		"mixed": {
			compression.Delta, compression.LZ4, compression.Delta, compression.LZ4,
			compression.None, compression.LZ4, compression.Delta, compression.None,
		},
	}
	for name, methods := range methodSets {
		t.Run(name, func(t *testing.T) {
			blocks, err := EncodeColumns(b, methods)
			require.NoError(t, err)
			require.Len(t, blocks, schema.Len())

			decoded, err := DecodeColumns(schema, b.NumRows(), blocks, methods)
			require.NoError(t, err)
			defer decoded.Release()
			assert.Equal(t, rows, decoded.Rows())
		})
	}
}

func TestDecodeRejectsTruncatedBlock(t *testing.T) {
	schema := &types.TableSchema{Columns: []types.ColumnSchema{{Name: "x", Type: types.TypeLong}}}
	_, err := DecodeColumns(schema, 4, [][]byte{{0, 1, 2}}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProtocol))
}
