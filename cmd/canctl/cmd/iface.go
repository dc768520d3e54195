package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-cansock/internal/can"
	"github.com/kstaniek/go-cansock/internal/socketcan"
)

func init() {
	rootCmd.AddCommand(indexCmd, nameCmd, mtuCmd, probeCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index IFACE",
	Short: "Resolve an interface name to its kernel index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRaw(func(a *socketcan.Adapter, fd int) error {
			idx, err := a.InterfaceIndex(fd, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]any{"name": args[0], "index": idx}, strconv.Itoa(idx))
		})
	},
}

var nameCmd = &cobra.Command{
	Use:   "name INDEX",
	Short: "Resolve a kernel interface index to its name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("index %q: %w", args[0], err)
		}
		return withRaw(func(a *socketcan.Adapter, fd int) error {
			name, err := a.InterfaceName(fd, idx)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]any{"name": name, "index": idx}, name)
		})
	},
}

var mtuCmd = &cobra.Command{
	Use:   "mtu IFACE",
	Short: "Print the interface MTU (16 classic CAN, 72 CAN FD)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRaw(func(a *socketcan.Adapter, fd int) error {
			mtu, err := a.MTU(fd, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), map[string]any{"name": args[0], "mtu": mtu}, strconv.Itoa(mtu))
		})
	},
}

type probeResult struct {
	Interface string `json:"interface"`
	Index     int    `json:"index"`
	MTU       int    `json:"mtu"`
	FD        bool   `json:"fd_capable"`
	Raw       bool   `json:"raw"`
	BCM       bool   `json:"bcm"`
	Error     string `json:"error,omitempty"`
}

var probeCmd = &cobra.Command{
	Use:   "probe IFACE",
	Short: "Check raw and BCM sockets can be opened and the interface is usable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := probe(newAdapter(), args[0])
		text := fmt.Sprintf("%s index=%d mtu=%d fd=%t raw=%t bcm=%t", res.Interface, res.Index, res.MTU, res.FD, res.Raw, res.BCM)
		if res.Error != "" {
			text += " error=" + res.Error
		}
		if err := emit(cmd.OutOrStdout(), res, text); err != nil {
			return err
		}
		if res.Error != "" {
			return fmt.Errorf("probe %s failed", args[0])
		}
		return nil
	},
}

func probe(a *socketcan.Adapter, iface string) probeResult {
	res := probeResult{Interface: iface}
	fail := func(err error) probeResult { res.Error = err.Error(); return res }

	fd, err := a.OpenRaw()
	if err != nil {
		return fail(err)
	}
	defer a.Close(fd)
	res.Raw = true
	if res.Index, err = a.InterfaceIndex(fd, iface); err != nil {
		return fail(err)
	}
	if res.MTU, err = a.MTU(fd, iface); err != nil {
		return fail(err)
	}
	res.FD = res.MTU > can.MTU
	if err := a.Bind(fd, res.Index); err != nil {
		return fail(err)
	}

	bfd, err := a.OpenBCM()
	if err != nil {
		return fail(err)
	}
	res.BCM = true
	if err := a.Close(bfd); err != nil {
		return fail(err)
	}
	return res
}
