package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kstaniek/go-cansock/internal/can"
)

// parseFilters turns "ID:MASK" hex pairs into CAN_RAW_FILTER entries. A bare
// ID matches exactly (SFF or EFF mask by magnitude).
func parseFilters(specs []string) ([]can.Filter, error) {
	out := make([]can.Filter, 0, len(specs))
	for _, s := range specs {
		idStr, maskStr, hasMask := strings.Cut(strings.TrimSpace(s), ":")
		id, err := strconv.ParseUint(strings.TrimPrefix(idStr, "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("filter %q: id: %w", s, err)
		}
		f := can.Filter{ID: uint32(id)}
		switch {
		case hasMask:
			m, err := strconv.ParseUint(strings.TrimPrefix(maskStr, "0x"), 16, 32)
			if err != nil {
				return nil, fmt.Errorf("filter %q: mask: %w", s, err)
			}
			f.Mask = uint32(m)
		case f.ID > can.CAN_SFF_MASK:
			f.ID = can.SetEFF(f.ID)
			f.Mask = can.CAN_EFF_FLAG | can.CAN_EFF_MASK
		default:
			f.Mask = can.CAN_EFF_FLAG | can.CAN_SFF_MASK
		}
		out = append(out, f)
	}
	return out, nil
}
