package can

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned by ParseFrame for malformed input.
var ErrSyntax = errors.New("can: invalid frame syntax")

// String renders the frame in the compact cansend notation:
// 3 hex digits for SFF ids, 8 for EFF and error frames, '#', then payload
// hex or 'R' for a remote request. Error frame ids keep the EFF flag so the
// output parses back to the same id.
func (f Frame) String() string {
	var sb strings.Builder
	switch {
	case IsERR(f.CANID):
		fmt.Fprintf(&sb, "%08X", f.CANID&(CAN_EFF_FLAG|CAN_ERR_FLAG|CAN_ERR_MASK))
	case IsEFF(f.CANID):
		fmt.Fprintf(&sb, "%08X", EFF(f.CANID))
	default:
		fmt.Fprintf(&sb, "%03X", SFF(f.CANID))
	}
	sb.WriteByte('#')
	if IsRTR(f.CANID) {
		sb.WriteByte('R')
		return sb.String()
	}
	sb.WriteString(strings.ToUpper(hex.EncodeToString(f.Payload())))
	return sb.String()
}

// ParseFrame parses "<id>#<data>" (cansend notation). An id written with
// 8 hex digits, or larger than 0x7FF, is extended. An error frame id keeps
// the error class bits and the EFF flag exactly as written. Data bytes may be separated by '.'; "R" requests RTR.
func ParseFrame(s string) (Frame, error) {
	var f Frame
	idPart, dataPart, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok || idPart == "" {
		return f, fmt.Errorf("%w: missing '#' in %q", ErrSyntax, s)
	}
	if len(idPart) > 8 {
		return f, fmt.Errorf("%w: id %q too long", ErrSyntax, idPart)
	}
	id, err := strconv.ParseUint(idPart, 16, 32)
	if err != nil {
		return f, fmt.Errorf("%w: id %q: %v", ErrSyntax, idPart, err)
	}
	raw := uint32(id)
	switch {
	case IsERR(raw):
		f.CANID = raw & (CAN_EFF_FLAG | CAN_ERR_FLAG | CAN_ERR_MASK)
	case len(idPart) == 8 || raw > CAN_SFF_MASK:
		f.CANID = SetEFF(EFF(raw))
	default:
		f.CANID = raw
	}
	if strings.EqualFold(dataPart, "R") {
		f.CANID = SetRTR(f.CANID)
		return f, nil
	}
	data, err := hex.DecodeString(strings.ReplaceAll(dataPart, ".", ""))
	if err != nil {
		return f, fmt.Errorf("%w: data %q: %v", ErrSyntax, dataPart, err)
	}
	if len(data) > MaxDataLen {
		return f, fmt.Errorf("%w: %d data bytes (max %d)", ErrSyntax, len(data), MaxDataLen)
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, nil
}
