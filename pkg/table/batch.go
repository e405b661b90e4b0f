package table

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/google/uuid"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// MaxRows is the largest number of rows a single batch may hold.
const MaxRows = 65535

// Batch is a materialized table holding the rows of one bulk insert.
// A batch owns an Arrow record; call Release when done with it.
type Batch struct {
	Schema *types.TableSchema
	Record arrow.Record
}

// Build materializes rows, in order, into a new batch.
func Build(schema *types.TableSchema, rows []types.Row) (*Batch, error) {
	return BuildWith(memory.DefaultAllocator, schema, rows)
}

// BuildWith is Build with an explicit allocator.
func BuildWith(mem memory.Allocator, schema *types.TableSchema, rows []types.Row) (*Batch, error) {
	if len(rows) > MaxRows {
		return nil, errors.Newf(errors.ErrorTypeSend, "batch of %d rows exceeds %d", len(rows), MaxRows)
	}
	as, err := ArrowSchema(schema)
	if err != nil {
		return nil, err
	}

	rb := array.NewRecordBuilder(mem, as)
	defer rb.Release()

	for r, row := range rows {
		if len(row) != schema.Len() {
			return nil, errors.Newf(errors.ErrorTypeSend, "row %d has %d values, table has %d columns", r, len(row), schema.Len())
		}
		for c, col := range schema.Columns {
			if err := appendValue(rb.Field(c), col.Type, row[c]); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeSend,
					fmt.Sprintf("materialize row %d column %s", r, col.Name))
			}
		}
	}
	return &Batch{Schema: schema, Record: rb.NewRecord()}, nil
}

// NumRows returns the row count.
func (b *Batch) NumRows() int {
	if b == nil || b.Record == nil {
		return 0
	}
	return int(b.Record.NumRows())
}

// Release frees the Arrow buffers.
func (b *Batch) Release() {
	if b != nil && b.Record != nil {
		b.Record.Release()
		b.Record = nil
	}
}

// Value returns the value at (row, col).
func (b *Batch) Value(row, col int) types.Value {
	return valueAt(b.Record.Column(col), b.Schema.Columns[col].Type, row)
}

// Rows copies the batch back into typed rows.
func (b *Batch) Rows() []types.Row {
	n := b.NumRows()
	rows := make([]types.Row, n)
	for r := 0; r < n; r++ {
		row := make(types.Row, b.Schema.Len())
		for c := range row {
			row[c] = b.Value(r, c)
		}
		rows[r] = row
	}
	return rows
}

func appendValue(bld array.Builder, dt types.DataType, v types.Value) error {
	if v.IsNull() {
		bld.AppendNull()
		return nil
	}
	if dt.IsArray() {
		items, ok := v.Data.([]types.Value)
		if !ok {
			return mismatch(v, dt)
		}
		lb := bld.(*array.ListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder()
		for _, item := range items {
			if err := appendValue(vb, dt.Elem(), item); err != nil {
				return err
			}
		}
		return nil
	}

	var ok bool
	switch dt {
	case types.TypeBool:
		var d bool
		if d, ok = v.Data.(bool); ok {
			bld.(*array.BooleanBuilder).Append(d)
		}
	case types.TypeChar:
		var d int8
		if d, ok = v.Data.(int8); ok {
			bld.(*array.Int8Builder).Append(d)
		}
	case types.TypeShort:
		var d int16
		if d, ok = v.Data.(int16); ok {
			bld.(*array.Int16Builder).Append(d)
		}
	case types.TypeInt:
		var d int32
		if d, ok = v.Data.(int32); ok {
			bld.(*array.Int32Builder).Append(d)
		}
	case types.TypeLong:
		var d int64
		if d, ok = v.Data.(int64); ok {
			bld.(*array.Int64Builder).Append(d)
		}
	case types.TypeFloat:
		var d float32
		if d, ok = v.Data.(float32); ok {
			bld.(*array.Float32Builder).Append(d)
		}
	case types.TypeDouble:
		var d float64
		if d, ok = v.Data.(float64); ok {
			bld.(*array.Float64Builder).Append(d)
		}
	case types.TypeString, types.TypeSymbol:
		var d string
		if d, ok = v.Data.(string); ok {
			bld.(*array.StringBuilder).Append(d)
		}
	case types.TypeBlob:
		var d []byte
		if d, ok = v.Data.([]byte); ok {
			bld.(*array.BinaryBuilder).Append(d)
		}
	case types.TypeDate, types.TypeTimestamp, types.TypeNanoTimestamp:
		if _, ok = v.Data.(time.Time); ok {
			n, _ := types.Value{Type: dt, Data: v.Data}.Int64()
			if dt == types.TypeDate {
				bld.(*array.Date32Builder).Append(arrow.Date32(n))
			} else {
				bld.(*array.TimestampBuilder).Append(arrow.Timestamp(n))
			}
		}
	case types.TypeUUID:
		var d uuid.UUID
		if d, ok = v.Data.(uuid.UUID); ok {
			bld.(*array.FixedSizeBinaryBuilder).Append(d[:])
		}
	}
	if !ok {
		return mismatch(v, dt)
	}
	return nil
}

func mismatch(v types.Value, dt types.DataType) error {
	return errors.Newf(errors.ErrorTypeSend, "value %v of Go type %T does not fit column type %s", v.Data, v.Data, dt)
}

func valueAt(arr arrow.Array, dt types.DataType, i int) types.Value {
	if arr.IsNull(i) {
		return types.Null(dt)
	}
	var data any
	switch a := arr.(type) {
	case *array.List:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		items := make([]types.Value, 0, end-start)
		for j := start; j < end; j++ {
			items = append(items, valueAt(values, dt.Elem(), int(j)))
		}
		data = items
	case *array.Boolean:
		data = a.Value(i)
	case *array.Int8:
		data = a.Value(i)
	case *array.Int16:
		data = a.Value(i)
	case *array.Int32:
		data = a.Value(i)
	case *array.Int64:
		data = a.Value(i)
	case *array.Float32:
		data = a.Value(i)
	case *array.Float64:
		data = a.Value(i)
	case *array.String:
		data = a.Value(i)
	case *array.Binary:
		data = append([]byte(nil), a.Value(i)...)
	case *array.Date32:
		data = fromUnit(types.TypeDate, int64(a.Value(i)))
	case *array.Timestamp:
		data = fromUnit(dt, int64(a.Value(i)))
	case *array.FixedSizeBinary:
		var id uuid.UUID
		copy(id[:], a.Value(i))
		data = id
	}
	return types.Value{Type: dt, Data: data}
}

// fromUnit turns an integer in the column's temporal unit into a time.
func fromUnit(dt types.DataType, n int64) time.Time {
	switch dt {
	case types.TypeDate:
		return time.Unix(n*86400, 0).UTC()
	case types.TypeTimestamp:
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(0, n).UTC()
}
