package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnkitD0811/cloud-security-scanner/internal/config"
	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/state"
)

var errNoStore = errors.New("run index is disabled (state.backend=none or unavailable)")

func newRunsCmd(opts *Options) *cobra.Command {
	var (
		limit  int
		status string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent scan runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx, opts)
			if err != nil {
				return err
			}
			defer d.close()
			if d.store == nil {
				return errNoStore
			}

			runs, err := d.store.ListRuns(ctx, state.ListRunsQuery{Status: strings.TrimSpace(status), Limit: limit})
			if err != nil {
				return fmt.Errorf("list runs failed: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs, time.Now())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", config.ParseIntEnv("IACSCAN_RUNS_LIMIT", 20), "Maximum number of runs to list")
	cmd.Flags().StringVar(&status, "status", "", "Only list runs with this status (running, completed, failed)")
	return cmd
}

func newShowCmd(opts *Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report persisted by a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}
			ctx := cmd.Context()
			d, err := buildDeps(ctx, opts)
			if err != nil {
				return err
			}
			defer d.close()
			if d.store == nil {
				return errNoStore
			}

			run, err := d.store.LoadRun(ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("load run: %w", err)
			}
			if run.ReportPath == "" {
				return fmt.Errorf("run %s has no report (status %s)", run.RunID, run.Status)
			}
			raw, err := os.ReadFile(run.ReportPath)
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}
			r, err := report.Decode(raw)
			if err != nil {
				return err
			}

			var out []byte
			if format == "yaml" {
				out, err = report.EncodeYAML(r)
			} else {
				out, err = report.EncodeJSON(r)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	return cmd
}
