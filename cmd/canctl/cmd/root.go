package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-cansock/internal/logging"
	"github.com/kstaniek/go-cansock/internal/socketcan"
)

var rootCmd = &cobra.Command{
	Use:           "canctl",
	Short:         "Inspect and drive SocketCAN interfaces",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		format := "text"
		if jsonOut {
			format = "json"
		}
		logging.Set(logging.New(format, lvl, cmd.ErrOrStderr()).With("app", "canctl"))
		return nil
	},
}

var (
	logLevel string
	jsonOut  bool
)

// newAdapter picks up the logger installed by PersistentPreRunE.
func newAdapter() *socketcan.Adapter { return socketcan.New(socketcan.WithLogger(logging.L())) }

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON output (results and logs)")
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// emit prints v as JSON when --json is set, otherwise the text form.
func emit(w io.Writer, v any, text string) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// withRaw runs fn with a fresh, unbound CAN_RAW socket.
func withRaw(fn func(a *socketcan.Adapter, fd int) error) error {
	a := newAdapter()
	fd, err := a.OpenRaw()
	if err != nil {
		return err
	}
	defer a.Close(fd)
	return fn(a, fd)
}
