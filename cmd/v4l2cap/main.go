//go:build linux

// v4l2cap is a small capture tool built on the library. It can inspect a
// device, tune its controls and stream frames to a file while exporting
// Prometheus metrics.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	intlog "github.com/edgevid/v4l2/internal/logging"
)

var (
	devicePath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "v4l2cap",
		Short: "Inspect and capture from video devices",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				intlog.SetLevel(logging.LogLevelDebug)
			}
		},
	}
	root.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().StringVarP(&devicePath, "device", "d", "/dev/video0", "device node to open")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newInfoCmd(), newCaptureCmd(), newCtrlCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
