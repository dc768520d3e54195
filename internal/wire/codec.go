package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-cansock/internal/can"
)

// RecordSize is the size of one frame on the wire: the SocketCAN can_frame
// layout with the id in little endian regardless of host order.
const RecordSize = can.MTU

// ErrInvalidLength is returned when a record declares more than 8 data bytes.
var ErrInvalidLength = errors.New("wire: invalid length")

// ErrTruncatedFrame is returned when the stream ends mid-record.
var ErrTruncatedFrame = errors.New("wire: truncated frame")

// Codec encodes/decodes frame records. Stateless and safe for concurrent use.
type Codec struct{}

// Put writes fr as one record into b, which must hold RecordSize bytes.
func Put(b []byte, fr can.Frame) {
	_ = b[RecordSize-1]
	clear(b[:RecordSize])
	binary.LittleEndian.PutUint32(b[0:4], fr.CANID)
	p := fr.Payload()
	b[4] = uint8(len(p))
	copy(b[can.DataOffset:], p)
}

// Parse decodes one record from b.
func Parse(b []byte) (can.Frame, error) {
	var fr can.Frame
	if len(b) < RecordSize {
		return fr, ErrTruncatedFrame
	}
	fr.CANID = binary.LittleEndian.Uint32(b[0:4])
	ln := int(b[4])
	if ln > can.MaxDataLen {
		return fr, fmt.Errorf("%w (%d)", ErrInvalidLength, ln)
	}
	fr.Len = uint8(ln)
	copy(fr.Data[:], b[can.DataOffset:can.DataOffset+ln])
	return fr, nil
}

// EncodeTo writes frames to w and returns the bytes written.
func (c *Codec) EncodeTo(w io.Writer, frames []can.Frame) (int, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(frames)*RecordSize)
	for i, fr := range frames {
		Put(buf[i*RecordSize:], fr)
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("wire encode: %w", err)
	}
	return n, nil
}

// Encode returns the wire bytes for frames.
func (c *Codec) Encode(frames []can.Frame) []byte {
	buf := make([]byte, len(frames)*RecordSize)
	for i, fr := range frames {
		Put(buf[i*RecordSize:], fr)
	}
	return buf
}

// Decode reads exactly one record from r. It returns io.EOF at a clean
// record boundary. Use a Stream for connections with read deadlines.
func (c *Codec) Decode(r io.Reader) (can.Frame, error) {
	return NewStream(r).Next()
}
