package can

// SocketCAN flag bits and masks for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
	CAN_ERR_MASK = 0x1FFFFFFF
)

// Frame record sizes (sizeof struct can_frame / struct canfd_frame).
const (
	MTU        = 16
	FDMTU      = 72
	MaxDataLen = 8
	// DataOffset is offsetof(struct can_frame, data); the payload is 8-byte aligned.
	DataOffset = 8
)

// Protocols of the CAN address family.
const (
	ProtoRaw = 1
	ProtoBCM = 2
)

// CAN_RAW socket option names (<linux/can/raw.h>).
const (
	RawFilter      = 1
	RawErrFilter   = 2
	RawLoopback    = 3
	RawRecvOwnMsgs = 4
	RawFDFrames    = 5
)

// Frame is a classic CAN frame as exchanged with a raw socket.
// CANID carries the EFF/RTR/ERR flags in its upper bits like SocketCAN.
// Only the first Len bytes of Data are valid. Ifindex is the interface the
// frame was received on (0 when unknown or not yet sent).
type Frame struct {
	Ifindex int
	CANID   uint32
	Len     uint8
	Data    [MaxDataLen]byte
}

// Payload returns the valid part of Data.
func (f Frame) Payload() []byte {
	n := int(f.Len)
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

// Filter is a CAN_RAW_FILTER entry: a frame matches when
// received_id & Mask == ID & Mask.
type Filter struct {
	ID   uint32 `yaml:"id"`
	Mask uint32 `yaml:"mask"`
}

// Match reports whether id passes the filter.
func (f Filter) Match(id uint32) bool { return id&f.Mask == f.ID&f.Mask }
