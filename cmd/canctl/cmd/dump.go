package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/socketcan"
)

const (
	dumpRecvTimeout = 250 * time.Millisecond
	dumpBackoffMin  = 20 * time.Millisecond
	dumpBackoffMax  = 500 * time.Millisecond
)

// sleepFn is replaced in tests.
var sleepFn = time.Sleep

var (
	dumpFilters []string
	dumpCount   int
	dumpOwn     bool
)

var (
	idColor  = color.New(color.FgHiBlue).SprintfFunc()
	errColor = color.New(color.FgRed).SprintfFunc()
	rtrColor = color.New(color.FgYellow).SprintfFunc()
	lenColor = color.New(color.FgGreen).SprintfFunc()
)

func init() {
	dumpCmd.Flags().StringArrayVarP(&dumpFilters, "filter", "f", nil, "receive filter ID:MASK in hex (repeatable)")
	dumpCmd.Flags().IntVarP(&dumpCount, "count", "n", 0, "exit after n frames (0 = until interrupted)")
	dumpCmd.Flags().BoolVar(&dumpOwn, "own", false, "also receive frames sent by this socket")
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump IFACE",
	Short: "Print frames received on an interface",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := parseFilters(dumpFilters)
		if err != nil {
			return err
		}
		a := newAdapter()
		d, err := socketcan.Open(a, args[0])
		if err != nil {
			return err
		}
		defer d.Close()
		// Bounded receive so an interrupt is noticed.
		if err := a.SetReceiveTimeout(d.FD(), dumpRecvTimeout); err != nil {
			return err
		}
		if len(filters) > 0 {
			if err := a.SetFilters(d.FD(), filters); err != nil {
				return err
			}
		}
		if dumpOwn {
			if err := a.SetRawOption(d.FD(), can.RawRecvOwnMsgs, 1); err != nil {
				return err
			}
		}
		return dumpLoop(cmd.Context(), d, cmd.OutOrStdout(), args[0], dumpCount, dumpRecvTimeout)
	},
}

// dumpLoop prints frames read from d until ctx is done or count frames were
// printed (count 0 means no limit). A read that fails well before recvTimeout
// is an error rather than an idle poll and backs off exponentially.
func dumpLoop(ctx context.Context, d socketcan.Dev, w io.Writer, iface string, count int, recvTimeout time.Duration) error {
	backoff := dumpBackoffMin
	for n := 0; count == 0 || n < count; {
		if ctx.Err() != nil {
			return nil
		}
		start := time.Now()
		fr, ok := d.ReadFrame()
		if !ok {
			if time.Since(start) < recvTimeout/2 {
				sleepFn(backoff)
				backoff = min(backoff*2, dumpBackoffMax)
			}
			continue
		}
		backoff = dumpBackoffMin
		n++
		if err := printFrame(w, iface, fr); err != nil {
			return err
		}
	}
	return nil
}

type dumpRecord struct {
	Time      time.Time `json:"time"`
	Interface string    `json:"interface"`
	ID        uint32    `json:"id"`
	Extended  bool      `json:"extended"`
	Remote    bool      `json:"remote"`
	Error     bool      `json:"error"`
	Data      string    `json:"data"`
}

func printFrame(w io.Writer, iface string, fr can.Frame) error {
	if jsonOut {
		return emit(w, dumpRecord{
			Time:      time.Now(),
			Interface: iface,
			ID:        idBits(fr.CANID),
			Extended:  can.IsEFF(fr.CANID),
			Remote:    can.IsRTR(fr.CANID),
			Error:     can.IsERR(fr.CANID),
			Data:      hex.EncodeToString(fr.Payload()),
		}, "")
	}
	_, err := fmt.Fprintln(w, formatFrame(iface, fr))
	return err
}

// formatFrame renders a candump style line: iface, id, [len], data bytes.
func formatFrame(iface string, fr can.Frame) string {
	var id string
	switch {
	case can.IsERR(fr.CANID):
		id = errColor("%08X", idBits(fr.CANID))
	case can.IsEFF(fr.CANID):
		id = idColor("%08X", idBits(fr.CANID))
	default:
		id = idColor("%03X", idBits(fr.CANID))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s   %s", iface, id, lenColor("[%d]", fr.Len))
	if can.IsRTR(fr.CANID) {
		sb.WriteString("  " + rtrColor("remote request"))
		return sb.String()
	}
	for _, b := range fr.Payload() {
		fmt.Fprintf(&sb, " %02X", b)
	}
	return sb.String()
}

func idBits(id uint32) uint32 {
	switch {
	case can.IsERR(id):
		return can.ERR(id)
	case can.IsEFF(id):
		return can.EFF(id)
	}
	return can.SFF(id)
}
