package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AnkitD0811/cloud-security-scanner/internal/config"
)

// ReportPathMarker prefixes the line that tells callers where the report was
// written.
const ReportPathMarker = "FINAL_REPORT_PATH: "

func newScanCmd(opts *Options) *cobra.Command {
	var (
		so       scanOptions
		toolsRaw string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Scan one IaC file and write a security report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			if path == "" {
				return fmt.Errorf("file path cannot be empty")
			}
			so.tools = config.SplitCSV(toolsRaw)

			ctx := cmd.Context()
			d, err := buildDeps(ctx, opts)
			if err != nil {
				return err
			}
			defer d.close()

			a, err := d.buildAgent(ctx, opts, so)
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}
			res, err := a.Run(ctx, path)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if !quiet {
				if err := printResult(out, res); err != nil {
					return err
				}
			}
			writef(out, "%s%s\n", ReportPathMarker, res.ReportPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&so.outputDir, "out", "", "Output directory for reports and scanner artifacts")
	cmd.Flags().IntVar(&so.maxIterations, "max-iterations", 0, "Maximum THINK/ACT cycles (1-64)")
	cmd.Flags().DurationVar(&so.timeout, "timeout", 0, "Overall scan timeout, e.g. 5m")
	cmd.Flags().StringVar(&toolsRaw, "tools", "", "Scanner selection (comma-separated names or @bundles)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the report path line")
	return cmd
}
