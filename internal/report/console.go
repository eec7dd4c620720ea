package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/quackphp/quack/internal/deduce"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	keyColor  = color.New(color.Bold)
)

// PrintSummary writes a colored overview of the batch to w. Leaked and
// inconsistent sites are listed one per line so an analyst can triage them.
func PrintSummary(w io.Writer, reports []deduce.SiteReport) {
	summary := Summarize(reports)

	keyColor.Fprintf(w, "[+] %d call sites consolidated\n", summary.Total)
	okColor.Fprintf(w, "  ✔ deduced:      %d\n", summary.Deduced)
	warnColor.Fprintf(w, "  ↪ leaked:       %d\n", summary.Leaked)
	errColor.Fprintf(w, "  [!] inconsistent: %d\n", summary.Inconsistent)

	for _, report := range reports {
		switch report.Verdict {
		case deduce.Leaked:
			warnColor.Fprintf(w, "  [leak] %s:%d\n", report.Entry.Filename, report.Entry.LineNumber)
		case deduce.Inconsistent:
			errColor.Fprintf(w, "  [inconsistent] %s:%d: %v\n", report.Entry.Filename, report.Entry.LineNumber, report.Err)
		}
	}
}

// PrintAudit writes, for one site, the strict allow-list next to the one that
// still includes __toString evidence
func PrintAudit(w io.Writer, report deduce.SiteReport) {
	keyColor.Fprintf(w, "%s:%d ", report.Entry.Filename, report.Entry.LineNumber)

	switch report.Verdict {
	case deduce.Deduced:
		okColor.Fprintln(w, report.Verdict)
		fmt.Fprintf(w, "  types:          %q\n", report.Entry.AllowedTypes)
		fmt.Fprintf(w, "  allowed:        %q\n", report.Entry.AllowedClasses)
		fmt.Fprintf(w, "  with toString:  %q\n", report.AllowedAll)
	case deduce.Leaked:
		warnColor.Fprintln(w, report.Verdict)
		fmt.Fprintf(w, "  available:      %q\n", report.Available)
	default:
		errColor.Fprintln(w, report.Verdict)
		fmt.Fprintf(w, "  error:          %v\n", report.Err)
	}
}
