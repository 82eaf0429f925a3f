// Package reporter renders the per-platform build summary and derives the
// process exit status. It formats already-finalized data only and never
// mutates the session.
package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/crossforge/crossforge/pkg/types"
)

// Summarize writes the session summary: one line per platform in result
// order, a totals footer, and the verbatim logs of every failed phase so
// failures are diagnosable without re-running.
func Summarize(w io.Writer, session *types.BuildSession) {
	fmt.Fprintf(w, "\nBuild summary (session %s)\n", session.ID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tSTATUS\tDURATION")
	fmt.Fprintln(tw, "--------\t------\t--------")
	for i := range session.Results {
		res := &session.Results[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Platform, statusText(res), durationText(res))
	}
	tw.Flush()

	total := len(session.Results)
	failed := session.FailureCount()
	if failed == 0 {
		fmt.Fprintln(w, color.GreenString("\nall %d platforms succeeded", total))
	} else {
		fmt.Fprintln(w, color.RedString("\n%d of %d platforms failed", failed, total))
	}

	writeFailureLogs(w, session)
}

// statusText renders a result status with the color conventions the rest
// of the CLI uses.
func statusText(res *types.BuildResult) string {
	suffix := ""
	if res.Optional {
		suffix = " (optional)"
	}
	switch res.Status {
	case types.StatusSucceeded:
		return color.GreenString(string(res.Status)) + suffix
	case types.StatusFailedEnvironment:
		return color.YellowString(string(res.Status)) + suffix
	case types.StatusCancelled:
		return color.New(color.Faint).Sprint(string(res.Status)) + suffix
	default:
		return color.RedString(string(res.Status)) + suffix
	}
}

func durationText(res *types.BuildResult) string {
	if len(res.Phases) == 0 {
		return "-"
	}
	var d time.Duration
	for _, p := range res.Phases {
		d += p.Duration
	}
	return d.Round(time.Millisecond).String()
}

// writeFailureLogs emits the captured output of each failed phase.
func writeFailureLogs(w io.Writer, session *types.BuildSession) {
	for i := range session.Results {
		res := &session.Results[i]
		if res.Succeeded() || res.Status == types.StatusCancelled {
			continue
		}
		if res.Reason != "" {
			fmt.Fprintf(w, "\n%s %s\n", color.RedString("[%s]", res.Platform), res.Reason)
		}
		for _, phase := range res.Phases {
			if phase.ExitCode == 0 {
				continue
			}
			fmt.Fprintf(w, "\n%s %s phase output (exit %d):\n",
				color.RedString("[%s]", res.Platform), phase.Phase, phase.ExitCode)
			out := strings.TrimRight(phase.Output, "\n")
			if out != "" {
				fmt.Fprintln(w, out)
			}
		}
	}
}

// ExitCode derives the process exit status: 0 iff every required platform
// succeeded. Optional platforms are reported but never fail the process.
func ExitCode(session *types.BuildSession) int {
	if session.Succeeded() {
		return 0
	}
	return 1
}
