package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-cansock/internal/can"
)

var (
	idSetEFF, idSetRTR, idSetERR       bool
	idClearEFF, idClearRTR, idClearERR bool
	idBit                              int
)

func init() {
	f := idCmd.Flags()
	f.BoolVar(&idSetEFF, "set-eff", false, "set the extended frame flag")
	f.BoolVar(&idSetRTR, "set-rtr", false, "set the remote request flag")
	f.BoolVar(&idSetERR, "set-err", false, "set the error frame flag")
	f.BoolVar(&idClearEFF, "clear-eff", false, "clear the extended frame flag")
	f.BoolVar(&idClearRTR, "clear-rtr", false, "clear the remote request flag")
	f.BoolVar(&idClearERR, "clear-err", false, "clear the error frame flag")
	f.IntVar(&idBit, "bit", -1, "also report whether this bit (0-63) is set")
	rootCmd.AddCommand(idCmd, constsCmd)
}

type idInfo struct {
	ID       uint32 `json:"id"`
	Hex      string `json:"hex"`
	SFF      uint32 `json:"sff"`
	EFF      uint32 `json:"eff"`
	ERR      uint32 `json:"err"`
	Extended bool   `json:"extended"`
	Remote   bool   `json:"remote"`
	Error    bool   `json:"error"`
	Bit      *bool  `json:"bit,omitempty"`
}

func describeID(id uint32) idInfo {
	return idInfo{
		ID:       id,
		Hex:      fmt.Sprintf("0x%08X", id),
		SFF:      can.SFF(id),
		EFF:      can.EFF(id),
		ERR:      can.ERR(id),
		Extended: can.IsEFF(id),
		Remote:   can.IsRTR(id),
		Error:    can.IsERR(id),
	}
}

func (i idInfo) String() string {
	var flags []string
	if i.Extended {
		flags = append(flags, "EFF")
	}
	if i.Remote {
		flags = append(flags, "RTR")
	}
	if i.Error {
		flags = append(flags, "ERR")
	}
	s := fmt.Sprintf("%s sff=0x%03X eff=0x%08X err=0x%08X flags=[%s]", i.Hex, i.SFF, i.EFF, i.ERR, strings.Join(flags, ","))
	if i.Bit != nil {
		s += fmt.Sprintf(" bit=%t", *i.Bit)
	}
	return s
}

// applyFlagEdits sets then clears the requested flags.
func applyFlagEdits(id uint32) uint32 {
	if idSetEFF {
		id = can.SetEFF(id)
	}
	if idSetRTR {
		id = can.SetRTR(id)
	}
	if idSetERR {
		id = can.SetERR(id)
	}
	if idClearEFF {
		id = can.ClearEFF(id)
	}
	if idClearRTR {
		id = can.ClearRTR(id)
	}
	if idClearERR {
		id = can.ClearERR(id)
	}
	return id
}

var idCmd = &cobra.Command{
	Use:   "id ID",
	Short: "Decompose a 32-bit CAN identifier (hex with 0x prefix or decimal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("id %q: %w", args[0], err)
		}
		info := describeID(applyFlagEdits(uint32(v)))
		if idBit >= 0 {
			b := can.IsBitSet(uint64(info.ID), uint(idBit))
			info.Bit = &b
		}
		return emit(cmd.OutOrStdout(), info, info.String())
	},
}

type constant struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

var constants = []constant{
	{"CAN_EFF_FLAG", can.CAN_EFF_FLAG},
	{"CAN_RTR_FLAG", can.CAN_RTR_FLAG},
	{"CAN_ERR_FLAG", can.CAN_ERR_FLAG},
	{"CAN_SFF_MASK", can.CAN_SFF_MASK},
	{"CAN_EFF_MASK", can.CAN_EFF_MASK},
	{"CAN_ERR_MASK", can.CAN_ERR_MASK},
	{"CAN_MTU", can.MTU},
	{"CANFD_MTU", can.FDMTU},
	{"CAN_RAW_FILTER", can.RawFilter},
	{"CAN_RAW_ERR_FILTER", can.RawErrFilter},
	{"CAN_RAW_LOOPBACK", can.RawLoopback},
	{"CAN_RAW_RECV_OWN_MSGS", can.RawRecvOwnMsgs},
	{"CAN_RAW_FD_FRAMES", can.RawFDFrames},
}

var constsCmd = &cobra.Command{
	Use:   "consts",
	Short: "Print the SocketCAN flag, mask and option constants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sb strings.Builder
		for i, c := range constants {
			if i > 0 {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%-22s 0x%08X", c.Name, c.Value)
		}
		return emit(cmd.OutOrStdout(), constants, sb.String())
	},
}
