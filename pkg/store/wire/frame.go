// Package wire implements the native table store protocol: a client
// registered as the "wire" driver and a server answering it from a memory
// catalog.
//
// Every message is a frame:
//
//	[u32 length][u8 kind][payload]
//
// where length counts the payload only. Requests carry a JSON header; an
// insert also carries one column block per column, each prefixed by its
// u32 length and compressed with the column's method.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
)

// Kind identifies a frame.
type Kind uint8

const (
	KindLogin Kind = iota + 1
	KindSchema
	KindInsert
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindSchema:
		return "schema"
	case KindInsert:
		return "insert"
	case KindResponse:
		return "response"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MaxFrameSize bounds the payload a peer may announce.
const MaxFrameSize = 512 << 20

// WriteFrame writes one frame.
func WriteFrame(w io.Writer, kind Kind, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errors.Newf(errors.ErrorTypeProtocol, "frame of %d bytes exceeds %d", len(payload), MaxFrameSize)
	}
	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	hdr[4] = byte(kind)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame.
func ReadFrame(r io.Reader) (Kind, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:4])
	if n > MaxFrameSize {
		return 0, nil, errors.Newf(errors.ErrorTypeProtocol, "frame of %d bytes exceeds %d", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrorTypeProtocol, "truncated frame")
	}
	return Kind(hdr[4]), payload, nil
}

// appendBlock appends a u32 length-prefixed block.
func appendBlock(dst, block []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(block)))
	return append(dst, block...)
}

// splitBlock returns the first length-prefixed block of src and the rest.
func splitBlock(src []byte) (block, rest []byte, err error) {
	if len(src) < 4 {
		return nil, nil, errors.New(errors.ErrorTypeProtocol, "truncated block length")
	}
	n := binary.BigEndian.Uint32(src[:4])
	if uint64(len(src)-4) < uint64(n) {
		return nil, nil, errors.Newf(errors.ErrorTypeProtocol, "block of %d bytes overruns payload", n)
	}
	return src[4 : 4+n], src[4+n:], nil
}
