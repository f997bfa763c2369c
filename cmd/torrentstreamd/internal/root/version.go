package root

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X ...root.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the torrentstreamd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}
