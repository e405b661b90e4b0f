// Package json wraps goccy/go-json with pooled buffers and the decoding
// modes the table writer needs: numbers kept as json.Number so that values
// convert to their column type without a float64 detour.
package json

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number is a JSON number kept as its literal text.
type Number = gojson.Number

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes data into v, keeping numbers as Number.
func Unmarshal(data []byte, v interface{}) error {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// AppendMarshal appends the encoding of v to dst using a pooled buffer.
func AppendMarshal(dst []byte, v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return dst, err
	}
	// Encode adds a trailing newline
	return append(dst, bytes.TrimRight(buf.Bytes(), "\n")...), nil
}

// LineReader reads line-delimited JSON values.
type LineReader struct {
	sc   *bufio.Scanner
	line int
}

// NewLineReader reads from r. Lines may be up to maxLine bytes.
func NewLineReader(r io.Reader, maxLine int) *LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &LineReader{sc: sc}
}

// Next decodes the next non-blank line into v. It returns io.EOF after
// the last line.
func (lr *LineReader) Next(v interface{}) error {
	for lr.sc.Scan() {
		lr.line++
		b := bytes.TrimSpace(lr.sc.Bytes())
		if len(b) == 0 {
			continue
		}
		return Unmarshal(b, v)
	}
	if err := lr.sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Line returns the number of the line read last.
func (lr *LineReader) Line() int {
	return lr.line
}
