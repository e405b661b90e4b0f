// Package table materializes converted rows into Apache Arrow record
// batches and encodes them as compressed column blocks for the wire.
package table

import (
	"github.com/apache/arrow/go/v17/arrow"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// typeMetadataKey keeps the column type on Arrow fields, since several
// column types share one Arrow type (STRING and SYMBOL, for instance).
const typeMetadataKey = "tablewriter.type"

// ArrowType returns the Arrow type used to hold columns of dt.
func ArrowType(dt types.DataType) (arrow.DataType, error) {
	if dt.IsArray() {
		elem, err := ArrowType(dt.Elem())
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	}
	switch dt {
	case types.TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case types.TypeChar:
		return arrow.PrimitiveTypes.Int8, nil
	case types.TypeShort:
		return arrow.PrimitiveTypes.Int16, nil
	case types.TypeInt:
		return arrow.PrimitiveTypes.Int32, nil
	case types.TypeLong:
		return arrow.PrimitiveTypes.Int64, nil
	case types.TypeFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case types.TypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case types.TypeString, types.TypeSymbol:
		return arrow.BinaryTypes.String, nil
	case types.TypeBlob:
		return arrow.BinaryTypes.Binary, nil
	case types.TypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	case types.TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_ms, nil
	case types.TypeNanoTimestamp:
		return arrow.FixedWidthTypes.Timestamp_ns, nil
	case types.TypeUUID:
		return &arrow.FixedSizeBinaryType{ByteWidth: 16}, nil
	}
	return nil, errors.Newf(errors.ErrorTypeInternal, "no arrow type for column type %s", dt)
}

// ArrowSchema converts a table schema to an Arrow schema. Every field is
// nullable and records its column type in field metadata.
func ArrowSchema(s *types.TableSchema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, s.Len())
	for _, c := range s.Columns {
		at, err := ArrowType(c.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "column "+c.Name)
		}
		fields = append(fields, arrow.Field{
			Name:     c.Name,
			Type:     at,
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{typeMetadataKey}, []string{c.Type.String()}),
		})
	}
	return arrow.NewSchema(fields, nil), nil
}

// TableSchemaOf recovers the table schema from an Arrow schema built by
// ArrowSchema.
func TableSchemaOf(as *arrow.Schema) (*types.TableSchema, error) {
	s := &types.TableSchema{Columns: make([]types.ColumnSchema, 0, len(as.Fields()))}
	for _, f := range as.Fields() {
		idx := f.Metadata.FindKey(typeMetadataKey)
		if idx < 0 {
			return nil, errors.Newf(errors.ErrorTypeInternal, "field %s has no column type", f.Name)
		}
		dt, err := types.ParseDataType(f.Metadata.Values()[idx])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "field "+f.Name)
		}
		s.Columns = append(s.Columns, types.ColumnSchema{Name: f.Name, Type: dt})
	}
	return s, nil
}
