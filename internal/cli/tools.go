package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AnkitD0811/cloud-security-scanner/tools"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List registered scanner tools and bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "TOOL\tDESCRIPTION")
			for _, info := range tools.ToolCatalog() {
				fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Description)
			}
			fmt.Fprintln(tw, "\nBUNDLE\tTOOLS")
			for _, b := range tools.BundleCatalog() {
				fmt.Fprintf(tw, "@%s\t%s\n", b.Name, strings.Join(b.Tools, ", "))
			}
			return tw.Flush()
		},
	}
}
