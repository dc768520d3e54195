package socketcan

import (
	"encoding/binary"

	"github.com/kstaniek/go-cansock/internal/can"
)

// struct can_frame (linux/can.h):
//
//	can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
//	len     u8    [4]
//	pad     3B    [5:8]
//	data    [8]   [8:16] (aligned(8))
//
// The kernel uses host byte order for can_id.

// putRecord fills rec with a frame record for id and data. len(data) must not
// exceed can.MaxDataLen.
func putRecord(rec *[can.MTU]byte, id uint32, data []byte) {
	*rec = [can.MTU]byte{}
	binary.NativeEndian.PutUint32(rec[0:4], id)
	rec[4] = uint8(len(data))
	copy(rec[can.DataOffset:], data)
}

// parseRecord decodes the first n bytes of rec into fr. The payload length is
// the smaller of the declared length and the bytes actually transferred past
// the header, so a corrupt length byte never reads beyond what was received.
func parseRecord(rec []byte, n int, fr *can.Frame) {
	fr.CANID = binary.NativeEndian.Uint32(rec[0:4])
	ln := int(rec[4])
	if avail := n - can.DataOffset; avail < ln {
		ln = avail
	}
	if ln > can.MaxDataLen {
		ln = can.MaxDataLen
	}
	if ln < 0 {
		ln = 0
	}
	fr.Len = uint8(ln)
	fr.Data = [can.MaxDataLen]byte{}
	copy(fr.Data[:], rec[can.DataOffset:can.DataOffset+ln])
}
