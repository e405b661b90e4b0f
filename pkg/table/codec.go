package table

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tablewriter/pkg/compression"
	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// Column block layout, one block per column:
//
//	[null bitmap, ceil(rows/8) bytes, bit set = NULL][payload]
//
// The payload holds one scalar per row (NULL slots hold a zero scalar) and
// is compressed with the column's method. Scalars are:
//
//	integral, temporal, bool  int64 little endian (temporal in column unit)
//	FLOAT, DOUBLE             float64 bits little endian
//	STRING, SYMBOL, BLOB      uvarint length + bytes
//	UUID                      16 bytes
//	arrays                    uvarint count + per item (null flag byte + scalar)

// EncodeColumns encodes every column of b. methods may be empty (no
// compression) or hold one method per column.
func EncodeColumns(b *Batch, methods []compression.Method) ([][]byte, error) {
	cols := b.Schema.Len()
	if len(methods) != 0 && len(methods) != cols {
		return nil, errors.Newf(errors.ErrorTypeInternal, "%d compress methods for %d columns", len(methods), cols)
	}
	n := b.NumRows()
	blocks := make([][]byte, cols)
	for c, col := range b.Schema.Columns {
		bitmap := make([]byte, (n+7)/8)
		var payload []byte
		for r := 0; r < n; r++ {
			v := b.Value(r, c)
			if v.IsNull() {
				bitmap[r/8] |= 1 << (r % 8)
			}
			payload = putScalar(payload, col.Type, v)
		}
		payload, err := compress(methodAt(methods, c), payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSend, "compress column "+col.Name)
		}
		blocks[c] = append(bitmap, payload...)
	}
	return blocks, nil
}

// DecodeColumns rebuilds a batch of rows rows from blocks made by
// EncodeColumns with the same methods.
func DecodeColumns(schema *types.TableSchema, rows int, blocks [][]byte, methods []compression.Method) (*Batch, error) {
	if len(blocks) != schema.Len() {
		return nil, errors.Newf(errors.ErrorTypeProtocol, "%d column blocks for %d columns", len(blocks), schema.Len())
	}
	if rows < 0 || rows > MaxRows {
		return nil, errors.Newf(errors.ErrorTypeProtocol, "invalid row count %d", rows)
	}
	out := make([]types.Row, rows)
	for r := range out {
		out[r] = make(types.Row, schema.Len())
	}
	bitmapLen := (rows + 7) / 8
	for c, col := range schema.Columns {
		block := blocks[c]
		if len(block) < bitmapLen {
			return nil, errors.Newf(errors.ErrorTypeProtocol, "column %s block too short", col.Name)
		}
		bitmap := block[:bitmapLen]
		payload, err := decompress(methodAt(methods, c), block[bitmapLen:])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decompress column "+col.Name)
		}
		rd := &reader{buf: payload}
		for r := 0; r < rows; r++ {
			v, err := rd.scalar(col.Type)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decode column "+col.Name)
			}
			if bitmap[r/8]&(1<<(r%8)) != 0 {
				v = types.Null(col.Type)
			}
			out[r][c] = v
		}
	}
	return Build(schema, out)
}

func methodAt(methods []compression.Method, i int) compression.Method {
	if len(methods) == 0 {
		return compression.None
	}
	return methods[i]
}

func compress(m compression.Method, data []byte) ([]byte, error) {
	if m == compression.None {
		return data, nil
	}
	c, err := compression.For(m)
	if err != nil {
		return nil, err
	}
	return c.Compress(data)
}

func decompress(m compression.Method, data []byte) ([]byte, error) {
	if m == compression.None {
		return data, nil
	}
	c, err := compression.For(m)
	if err != nil {
		return nil, err
	}
	return c.Decompress(data)
}

func putScalar(buf []byte, dt types.DataType, v types.Value) []byte {
	if dt.IsArray() {
		items := v.Elements()
		buf = binary.AppendUvarint(buf, uint64(len(items)))
		for _, item := range items {
			if item.IsNull() {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
			buf = putScalar(buf, dt.Elem(), item)
		}
		return buf
	}
	switch dt {
	case types.TypeFloat, types.TypeDouble:
		f, _ := v.Float64()
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	case types.TypeString, types.TypeSymbol, types.TypeBlob:
		b, _ := v.Bytes()
		buf = binary.AppendUvarint(buf, uint64(len(b)))
		return append(buf, b...)
	case types.TypeUUID:
		var id uuid.UUID
		if d, ok := v.Data.(uuid.UUID); ok {
			id = d
		}
		return append(buf, id[:]...)
	}
	i, _ := v.Int64()
	return binary.LittleEndian.AppendUint64(buf, uint64(i))
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, errors.New(errors.ErrorTypeProtocol, "unexpected end of column payload")
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uvarint() (uint64, error) {
	u, k := binary.Uvarint(r.buf[r.off:])
	if k <= 0 {
		return 0, errors.New(errors.ErrorTypeProtocol, "malformed varint in column payload")
	}
	r.off += k
	return u, nil
}

func (r *reader) scalar(dt types.DataType) (types.Value, error) {
	if dt.IsArray() {
		n, err := r.uvarint()
		if err != nil {
			return types.Value{}, err
		}
		if n > uint64(len(r.buf)-r.off) {
			return types.Value{}, errors.Newf(errors.ErrorTypeProtocol, "array length %d exceeds payload", n)
		}
		items := make([]types.Value, n)
		for i := range items {
			flag, err := r.take(1)
			if err != nil {
				return types.Value{}, err
			}
			item, err := r.scalar(dt.Elem())
			if err != nil {
				return types.Value{}, err
			}
			if flag[0] == 1 {
				item = types.Null(dt.Elem())
			}
			items[i] = item
		}
		return types.Value{Type: dt, Data: items}, nil
	}

	switch dt {
	case types.TypeString, types.TypeSymbol, types.TypeBlob:
		n, err := r.uvarint()
		if err != nil {
			return types.Value{}, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return types.Value{}, err
		}
		if dt == types.TypeBlob {
			return types.Value{Type: dt, Data: append([]byte(nil), b...)}, nil
		}
		return types.Value{Type: dt, Data: string(b)}, nil
	case types.TypeUUID:
		b, err := r.take(16)
		if err != nil {
			return types.Value{}, err
		}
		var id uuid.UUID
		copy(id[:], b)
		return types.Value{Type: dt, Data: id}, nil
	}

	b, err := r.take(8)
	if err != nil {
		return types.Value{}, err
	}
	word := binary.LittleEndian.Uint64(b)
	var data any
	switch dt {
	case types.TypeFloat:
		data = float32(math.Float64frombits(word))
	case types.TypeDouble:
		data = math.Float64frombits(word)
	case types.TypeBool:
		data = word != 0
	case types.TypeChar:
		data = int8(word)
	case types.TypeShort:
		data = int16(word)
	case types.TypeInt:
		data = int32(word)
	case types.TypeLong:
		data = int64(word)
	case types.TypeDate, types.TypeTimestamp, types.TypeNanoTimestamp:
		data = fromUnit(dt, int64(word))
	default:
		return types.Value{}, errors.Newf(errors.ErrorTypeProtocol, "cannot decode column type %s", dt)
	}
	return types.Value{Type: dt, Data: data}, nil
}
