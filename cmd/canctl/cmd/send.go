package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/socketcan"
)

var (
	sendCount    int
	sendInterval time.Duration
)

func init() {
	sendCmd.Flags().IntVarP(&sendCount, "count", "n", 1, "number of times to send the frame")
	sendCmd.Flags().DurationVarP(&sendInterval, "interval", "i", 0, "delay between repeated frames")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send IFACE ID#DATA",
	Short: "Send a classic CAN frame (cansend notation, e.g. 123#DEADBEEF, 1F334455#R)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fr, err := can.ParseFrame(args[1])
		if err != nil {
			return err
		}
		if sendCount < 1 {
			return fmt.Errorf("count must be >= 1")
		}
		a := newAdapter()
		d, err := socketcan.Open(a, args[0])
		if err != nil {
			return err
		}
		defer d.Close()
		ctx := cmd.Context()
		for i := 0; i < sendCount; i++ {
			if i > 0 && sendInterval > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(sendInterval):
				}
			}
			if err := d.WriteFrame(fr); err != nil {
				return err
			}
		}
		return emit(cmd.OutOrStdout(), map[string]any{"interface": args[0], "frame": fr.String(), "count": sendCount},
			fmt.Sprintf("sent %s x%d on %s", fr, sendCount, args[0]))
	},
}
