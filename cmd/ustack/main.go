// Command ustack runs the virtual device layer with a set of drivers and
// pushes a test packet through it until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const name = "ustack"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           name,
		Short:         "User-space virtual interrupt and network device harness",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
	root.AddCommand(newRunCommand())
	root.AddCommand(newConfigCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}
