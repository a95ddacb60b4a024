package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/AnkitD0811/cloud-security-scanner/agent"
	"github.com/AnkitD0811/cloud-security-scanner/internal/config"
	"github.com/AnkitD0811/cloud-security-scanner/report"
	"github.com/AnkitD0811/cloud-security-scanner/state"
)

// interactive reports whether w is a terminal. Pipes and files get the raw
// JSON report so downstream tools can parse it.
func interactive(w io.Writer) bool {
	if config.ParseBoolString(os.Getenv("IACSCAN_PLAIN"), false) {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printResult(w io.Writer, res agent.Result) error {
	if !interactive(w) {
		raw, err := report.EncodeJSON(res.Report)
		if err != nil {
			return err
		}
		_, err = w.Write(raw)
		return err
	}

	r := res.Report
	writef(w, "Report %s for %s\n", r.Name, r.File)
	writef(w, "  %s finding(s): %d high, %d medium, %d low\n",
		humanize.Comma(int64(r.Summary.Count)), r.Summary.High, r.Summary.Medium, r.Summary.Low)
	writef(w, "  %d iteration(s), finished in %s", res.Iterations, res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))
	if res.Usage != nil && res.Usage.TotalTokens > 0 {
		writef(w, ", %s tokens", humanize.Comma(int64(res.Usage.TotalTokens)))
	}
	writef(w, "\n")
	if res.BoundExceeded {
		writef(w, "  iteration limit reached, report may be incomplete\n")
	}
	for _, reason := range res.Degraded {
		writef(w, "  degraded: %s\n", reason)
	}
	if len(r.Findings) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSEVERITY\tLINES\tCONFIDENCE\tISSUE")
	for _, f := range r.Findings {
		fmt.Fprintf(tw, "%s\t%d-%d\t%s\t%s\n", f.Severity, f.Location[0], f.Location[1], f.Confidence, f.Name)
	}
	return tw.Flush()
}

func printRuns(w io.Writer, runs []state.RunRecord, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tINPUT\tFINDINGS\tPROVIDER\tUPDATED")
	for _, run := range runs {
		findings := "-"
		if run.Summary != nil {
			findings = fmt.Sprintf("%d (%d high)", run.Summary.Count, run.Summary.High)
		}
		updated := "-"
		if run.UpdatedAt != nil {
			updated = humanize.RelTime(*run.UpdatedAt, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.RunID, run.Status, shorten(run.Input, 48), findings, run.Provider, updated)
	}
	return tw.Flush()
}

func shorten(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
