package can

// SFF returns the standard frame format (11-bit) identifier bits.
func SFF(id uint32) uint32 { return id & CAN_SFF_MASK }

// EFF returns the extended frame format (29-bit) identifier bits.
func EFF(id uint32) uint32 { return id & CAN_EFF_MASK }

// ERR returns the error class bits of an error frame identifier.
func ERR(id uint32) uint32 { return id & CAN_ERR_MASK }

func IsEFF(id uint32) bool    { return id&CAN_EFF_FLAG != 0 }
func SetEFF(id uint32) uint32 { return id | CAN_EFF_FLAG }

// ClearEFF marks the identifier as standard frame format.
func ClearEFF(id uint32) uint32 { return id &^ CAN_EFF_FLAG }

func IsRTR(id uint32) bool      { return id&CAN_RTR_FLAG != 0 }
func SetRTR(id uint32) uint32   { return id | CAN_RTR_FLAG }
func ClearRTR(id uint32) uint32 { return id &^ CAN_RTR_FLAG }

func IsERR(id uint32) bool      { return id&CAN_ERR_FLAG != 0 }
func SetERR(id uint32) uint32   { return id | CAN_ERR_FLAG }
func ClearERR(id uint32) uint32 { return id &^ CAN_ERR_FLAG }

// IsBitSet reports whether bit is set in v. Bits past 63 are never set.
func IsBitSet(v uint64, bit uint) bool {
	if bit > 63 {
		return false
	}
	return v&(1<<bit) != 0
}
