package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/socketcan"
)

// rawOptions lists the 4-byte SOL_CAN_RAW options by CLI name.
var rawOptions = map[string]int{
	"err-filter": can.RawErrFilter,
	"loopback":   can.RawLoopback,
	"recv-own":   can.RawRecvOwnMsgs,
	"fd-frames":  can.RawFDFrames,
}

func optionByName(name string) (int, error) {
	if opt, ok := rawOptions[strings.ToLower(name)]; ok {
		return opt, nil
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		return n, nil
	}
	names := make([]string, 0, len(rawOptions))
	for k := range rawOptions {
		names = append(names, k)
	}
	sort.Strings(names)
	return 0, fmt.Errorf("unknown option %q (one of %s or a number)", name, strings.Join(names, ", "))
}

// parseOptValue accepts decimal, 0x hex and on/off style booleans.
func parseOptValue(s string) (int32, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes":
		return 1, nil
	case "off", "false", "no":
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		u, uerr := strconv.ParseUint(s, 0, 32)
		if uerr != nil {
			return 0, fmt.Errorf("option value %q: %w", s, err)
		}
		return int32(u), nil
	}
	return int32(v), nil
}

func init() {
	optCmd.AddCommand(optGetCmd, optSetCmd)
	rootCmd.AddCommand(optCmd)
}

var optCmd = &cobra.Command{
	Use:   "opt",
	Short: "Read or write SOL_CAN_RAW options on a fresh raw socket",
}

var optGetCmd = &cobra.Command{
	Use:   "get OPTION",
	Short: "Print the value of a raw socket option",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := optionByName(args[0])
		if err != nil {
			return err
		}
		return withRaw(func(a *socketcan.Adapter, fd int) error {
			v, err := a.RawOption(fd, opt)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]any{"option": args[0], "value": v}, fmt.Sprintf("%s=%d", args[0], v))
		})
	},
}

var optSetCmd = &cobra.Command{
	Use:   "set OPTION VALUE",
	Short: "Set a raw socket option and read it back",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := optionByName(args[0])
		if err != nil {
			return err
		}
		v, err := parseOptValue(args[1])
		if err != nil {
			return err
		}
		return withRaw(func(a *socketcan.Adapter, fd int) error {
			if err := a.SetRawOption(fd, opt, v); err != nil {
				return err
			}
			got, err := a.RawOption(fd, opt)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]any{"option": args[0], "value": got}, fmt.Sprintf("%s=%d", args[0], got))
		})
	},
}
