package can

import (
	"errors"
	"testing"
)

func TestIDMasks(t *testing.T) {
	id := uint32(0xE0012345)
	if got := SFF(id); got != 0x345 {
		t.Fatalf("SFF: got 0x%X", got)
	}
	if got := EFF(id); got != 0x00012345 {
		t.Fatalf("EFF: got 0x%X", got)
	}
	if got := ERR(id); got != 0x00012345 {
		t.Fatalf("ERR: got 0x%X", got)
	}
}

func TestEFFRoundTrip(t *testing.T) {
	for _, id := range []uint32{0, 0x123, 0x7FF, 0x1FFFFFFF, 0x12345678, 0xFFFFFFFF, CAN_RTR_FLAG | 0x42} {
		if got := EFF(SetEFF(id)); got != EFF(id) {
			t.Fatalf("EFF(SetEFF(0x%X)) = 0x%X, want 0x%X", id, got, EFF(id))
		}
		if !IsEFF(SetEFF(id)) {
			t.Fatalf("IsEFF(SetEFF(0x%X)) false", id)
		}
		if IsEFF(ClearEFF(id)) {
			t.Fatalf("IsEFF(ClearEFF(0x%X)) true", id)
		}
	}
}

func TestFlagBits(t *testing.T) {
	tests := []struct {
		name  string
		set   func(uint32) uint32
		clear func(uint32) uint32
		is    func(uint32) bool
		bit   uint32
	}{
		{"eff", SetEFF, ClearEFF, IsEFF, CAN_EFF_FLAG},
		{"rtr", SetRTR, ClearRTR, IsRTR, CAN_RTR_FLAG},
		{"err", SetERR, ClearERR, IsERR, CAN_ERR_FLAG},
	}
	for _, tc := range tests {
		id := uint32(0x123)
		s := tc.set(id)
		if s != id|tc.bit || !tc.is(s) {
			t.Fatalf("%s: set gave 0x%X", tc.name, s)
		}
		c := tc.clear(s)
		if c != id || tc.is(c) {
			t.Fatalf("%s: clear gave 0x%X", tc.name, c)
		}
		// the other flags are untouched
		all := uint32(CAN_EFF_FLAG | CAN_RTR_FLAG | CAN_ERR_FLAG)
		if got := tc.clear(all); got != all&^tc.bit {
			t.Fatalf("%s: clear touched other flags: 0x%X", tc.name, got)
		}
	}
}

func TestIsBitSet(t *testing.T) {
	v := uint64(0b1010) | 1<<40
	if !IsBitSet(v, 1) || IsBitSet(v, 0) || !IsBitSet(v, 3) || !IsBitSet(v, 40) {
		t.Fatalf("unexpected bit results for %b", v)
	}
	if IsBitSet(^uint64(0), 64) {
		t.Fatalf("bit 64 must never be set")
	}
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		in   string
		id   uint32
		data []byte
	}{
		{"123#010203", 0x123, []byte{1, 2, 3}},
		{"7FF#", 0x7FF, nil},
		{"00000123#DEADBEEF", CAN_EFF_FLAG | 0x123, []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{"1234#11.22", CAN_EFF_FLAG | 0x1234, []byte{0x11, 0x22}},
		{"123#R", CAN_RTR_FLAG | 0x123, nil},
		{"20000004#0000000000000000", CAN_ERR_FLAG | 0x4, make([]byte, 8)},
		{"A0000123#", CAN_EFF_FLAG | CAN_ERR_FLAG | 0x123, nil},
	}
	for _, tc := range tests {
		f, err := ParseFrame(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if f.CANID != tc.id {
			t.Fatalf("%s: id 0x%X want 0x%X", tc.in, f.CANID, tc.id)
		}
		if string(f.Payload()) != string(tc.data) {
			t.Fatalf("%s: data % X want % X", tc.in, f.Payload(), tc.data)
		}
	}
}

func TestParseFrameErrors(t *testing.T) {
	for _, in := range []string{"", "123", "#01", "XYZ#01", "123#0", "123#010203040506070809", "123456789#"} {
		if _, err := ParseFrame(in); !errors.Is(err, ErrSyntax) {
			t.Fatalf("%q: expected ErrSyntax, got %v", in, err)
		}
	}
}

func TestErrorFrameTextRoundTrip(t *testing.T) {
	for _, in := range []string{"A0000123#", "20000004#0000000000000000", "A0000040#0102"} {
		f, err := ParseFrame(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got := f.String(); got != in {
			t.Fatalf("%s: String() = %s", in, got)
		}
		back, err := ParseFrame(f.String())
		if err != nil || back != f {
			t.Fatalf("%s: reparsed %+v, %v", in, back, err)
		}
	}
}

func TestFrameString(t *testing.T) {
	tests := []string{"123#010203", "00000123#DEADBEEF", "123#R", "7FF#", "20000004#0000000000000000"}
	for _, in := range tests {
		f, err := ParseFrame(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got := f.String(); got != in {
			t.Fatalf("String() = %q want %q", got, in)
		}
	}
}

func TestFilterMatch(t *testing.T) {
	f := Filter{ID: 0x120, Mask: 0x7F0}
	if !f.Match(0x123) || f.Match(0x133) {
		t.Fatalf("unexpected filter result")
	}
}
