// Command kmsdrm-demo exercises pkg/kmsdrm from a real terminal: it opens
// the DRM device, prints what it discovers, and optionally drives a short
// present loop so the present engine (including the triple-buffer worker)
// can be watched outside of a test double.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kmsdrm-demo",
		Short: "Exercise the direct-rendering KMS/DRM backend from a terminal",
	}
	root.AddCommand(newInfoCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newColorsCmd())
	return root
}
