package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/kstaniek/go-cansock/internal/can"
)

func mkFrame(id uint32, data ...byte) can.Frame {
	f := can.Frame{CANID: id, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

func TestCodecRoundTrip(t *testing.T) {
	codec := Codec{}
	in := []can.Frame{
		mkFrame(0x123, 1, 2, 3),
		mkFrame(can.SetEFF(0x1ABCDE), 1, 2, 3, 4, 5, 6, 7, 8),
		mkFrame(can.SetRTR(0x7FF)),
	}
	wire := codec.Encode(in)
	if len(wire) != len(in)*RecordSize {
		t.Fatalf("encoded %d bytes, want %d", len(wire), len(in)*RecordSize)
	}
	var out []can.Frame
	dec := codec.NewStream(bytes.NewReader(wire))
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, f)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("frame %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestRecordLayout(t *testing.T) {
	var b [RecordSize]byte
	Put(b[:], mkFrame(0x80000123, 0xAA, 0xBB))
	want := []byte{0x23, 0x01, 0x00, 0x80, 2, 0, 0, 0, 0xAA, 0xBB, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(b[:], want) {
		t.Fatalf("layout\n got % X\nwant % X", b[:], want)
	}
}

func TestEncodeToMatchesEncode(t *testing.T) {
	codec := Codec{}
	frames := []can.Frame{mkFrame(0x10, 1), mkFrame(0x11, 1, 2, 3)}
	var buf bytes.Buffer
	n, err := codec.EncodeTo(&buf, frames)
	if err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	if n != 2*RecordSize || !bytes.Equal(buf.Bytes(), codec.Encode(frames)) {
		t.Fatalf("EncodeTo and Encode differ")
	}
}

func TestDecodeInvalidLength(t *testing.T) {
	var b [RecordSize]byte
	b[4] = 9
	if _, err := (&Codec{}).Decode(bytes.NewReader(b[:])); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	wire := (&Codec{}).Encode([]can.Frame{mkFrame(0x1, 1)})
	if _, err := (&Codec{}).Decode(bytes.NewReader(wire[:10])); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
	if _, err := Parse(wire[:3]); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("Parse: expected ErrTruncatedFrame, got %v", err)
	}
}
