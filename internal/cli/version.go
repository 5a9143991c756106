package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridable at build time:
//
//	go build -ldflags "-X .../internal/cli.version=1.2.3"
var version = "0.1.0-dev"

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show taskorc version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("taskorc version " + version)
		},
	}
}
