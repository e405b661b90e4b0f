// Package compression implements the per-column wire compression methods.
//
// Two methods are supported, matching the methods a writer accepts in its
// compress method list:
//   - LZ4: general purpose, any column type
//   - DELTA: delta-of-value with zigzag varints followed by a zstd stage,
//     for integral and temporal columns only
//
// Columns without a method are sent uncompressed (None).
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(compression.LZ4, compression.Default)
//	compressed, err := comp.Compress(block)
//	original, err := comp.Decompress(compressed)
package compression

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
	"github.com/ajitpratap0/tablewriter/pkg/types"
)

// Method is a column compression method.
type Method string

const (
	// None sends the column block as is
	None Method = ""
	// LZ4 compresses the block with an LZ4 frame
	LZ4 Method = "lz4"
	// Delta encodes int64 words as zigzag deltas, then zstd
	Delta Method = "delta"
)

// ParseMethod parses a method name such as "LZ4" or "delta". An empty name
// is None.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "delta":
		return Delta, nil
	}
	return None, errors.Newf(errors.ErrorTypeConfig, "unsupported compression method %q", name)
}

// Supports reports whether m can compress a column of type dt.
func (m Method) Supports(dt types.DataType) bool {
	if m == Delta {
		return dt.IsIntegral() && !dt.IsArray()
	}
	return true
}

func (m Method) String() string {
	if m == None {
		return "none"
	}
	return string(m)
}

// Level controls the trade-off between speed and ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Best maximizes compression ratio
	Best Level = 9
)

// Compressor compresses and decompresses column blocks.
// All implementations are safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Method() Method
}

// NewCompressor creates a compressor for m.
func NewCompressor(m Method, level Level) (Compressor, error) {
	switch m {
	case None:
		return noneCompressor{}, nil
	case LZ4:
		return &lz4Compressor{level: mapLZ4Level(level)}, nil
	case Delta:
		return newDeltaCompressor(level), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression method %q", string(m))
}

var (
	sharedMu sync.Mutex
	shared   = map[Method]Compressor{}
)

// For returns a shared default-level compressor for m.
func For(m Method) (Compressor, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if c, ok := shared[m]; ok {
		return c, nil
	}
	c, err := NewCompressor(m, Default)
	if err != nil {
		return nil, err
	}
	shared[m] = c
	return c, nil
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Method() Method                         { return None }

type lz4Compressor struct {
	level lz4.CompressionLevel
}

func (lc *lz4Compressor) Method() Method { return LZ4 }

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lc.level)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(bytes.NewReader(data))); err != nil { //nolint:gosec // blocks are bounded by the frame size
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "lz4 decompress")
	}
	return buf.Bytes(), nil
}

// deltaCompressor encodes a block of little-endian int64 words.
type deltaCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newDeltaCompressor(level Level) *deltaCompressor {
	zl := mapZstdLevel(level)
	dc := &deltaCompressor{}
	dc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zl))
		return enc
	}
	dc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}
	return dc
}

func (dc *deltaCompressor) Method() Method { return Delta }

func (dc *deltaCompressor) Compress(data []byte) ([]byte, error) {
	if len(data)%8 != 0 {
		return nil, errors.Newf(errors.ErrorTypeInternal, "delta block length %d is not a multiple of 8", len(data))
	}
	n := len(data) / 8
	varints := make([]byte, binary.MaxVarintLen64, n*2+binary.MaxVarintLen64)
	varints = varints[:binary.PutUvarint(varints, uint64(n))]
	var prev int64
	tmp := make([]byte, binary.MaxVarintLen64)
	for i := 0; i < n; i++ {
		v := int64(binary.LittleEndian.Uint64(data[i*8:]))
		k := binary.PutVarint(tmp, v-prev)
		varints = append(varints, tmp[:k]...)
		prev = v
	}

	enc := dc.encoderPool.Get().(*zstd.Encoder)
	defer dc.encoderPool.Put(enc)
	return enc.EncodeAll(varints, nil), nil
}

func (dc *deltaCompressor) Decompress(data []byte) ([]byte, error) {
	dec := dc.decoderPool.Get().(*zstd.Decoder)
	defer dc.decoderPool.Put(dec)
	varints, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "delta zstd stage")
	}

	r := bytes.NewReader(varints)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "delta word count")
	}
	if n > uint64(len(varints)) {
		return nil, errors.Newf(errors.ErrorTypeProtocol, "delta word count %d exceeds block", n)
	}
	out := make([]byte, n*8)
	var prev int64
	for i := uint64(0); i < n; i++ {
		d, err := binary.ReadVarint(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, fmt.Sprintf("delta word %d", i))
		}
		prev += d
		binary.LittleEndian.PutUint64(out[i*8:], uint64(prev))
	}
	return out, nil
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
