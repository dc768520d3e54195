package wire

import (
	"errors"
	"io"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/transport"
)

// Stream decodes consecutive records from one connection. Bytes of a record
// that is only partly received stay buffered when the underlying read fails,
// so a read deadline firing mid-record does not shift the framing: the next
// call to Next continues the same record.
type Stream struct {
	r   io.Reader
	rec [RecordSize]byte
	n   int
}

// NewStream returns a Stream reading from r.
func NewStream(r io.Reader) *Stream { return &Stream{r: r} }

// NewStream implements transport.FrameDecoder.
func (c *Codec) NewStream(r io.Reader) transport.FrameStream { return NewStream(r) }

// Next returns the next complete frame. Errors from the reader are returned
// as is with the partial record kept; io.EOF in the middle of a record is
// ErrTruncatedFrame.
func (s *Stream) Next() (can.Frame, error) {
	for s.n < RecordSize {
		m, err := s.r.Read(s.rec[s.n:])
		s.n += m
		if s.n == RecordSize {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) && s.n > 0 {
				s.n = 0
				return can.Frame{}, ErrTruncatedFrame
			}
			return can.Frame{}, err
		}
	}
	s.n = 0
	return Parse(s.rec[:])
}

// Pending reports how many bytes of an incomplete record are buffered.
func (s *Stream) Pending() int { return s.n }
