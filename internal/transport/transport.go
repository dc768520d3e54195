package transport

import (
	"io"

	"github.com/kstaniek/go-cansock/internal/can"
)

// FrameStream yields the frames of one byte stream in order.
type FrameStream interface {
	Next() (can.Frame, error)
}

// FrameDecoder creates a per-connection decoder. The returned stream owns
// any partially received record between calls.
type FrameDecoder interface {
	NewStream(r io.Reader) FrameStream
}

// FrameBatchEncoder writes a batch of frames to w.
type FrameBatchEncoder interface {
	EncodeTo(w io.Writer, frames []can.Frame) (int, error)
}

// FrameCodec is what the TCP server needs from a stream codec.
type FrameCodec interface {
	FrameDecoder
	FrameBatchEncoder
}

// FrameSink is a generic CAN frame transmission target.
type FrameSink interface {
	SendFrame(can.Frame) error
}
