package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nao1215/vpnprobe/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs a plain text report for the terminal: a ranked table
// of alive servers, the failures and the totals.
type SimpleWriter struct {
	baseWriter

	// showFailures controls whether the failure section is printed.
	showFailures bool

	// limit caps the number of alive rows. Zero means no cap.
	limit int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithFailures toggles the failure section. It is on by default.
func WithFailures(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showFailures = show
	}
}

// WithLimit caps the number of alive rows printed.
func WithLimit(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.limit = n
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:   newBaseWriter(output),
		showFailures: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.TestReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeAlive(&sb, report)
	if w.showFailures {
		w.writeFailures(&sb, report)
	}
	w.writeTotals(&sb, report)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.TestReport) {
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	sb.WriteString("VPNPROBE REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(sb, "Run:         %s\n", report.RunID)
	fmt.Fprintf(sb, "Started:     %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Elapsed:     %s\n", report.Elapsed().Round(10*time.Millisecond))
	fmt.Fprintf(sb, "Concurrency: %d\n", report.Concurrency)
	if report.Canceled {
		sb.WriteString("Status:      CANCELED (partial results)\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeAlive(sb *strings.Builder, report *model.TestReport) {
	section(sb, "ALIVE SERVERS")
	if len(report.Alive) == 0 {
		sb.WriteString("  No alive servers\n\n")
		return
	}

	alive := report.Alive
	if w.limit > 0 && len(alive) > w.limit {
		alive = alive[:w.limit]
	}

	tw := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tLATENCY\tNAME\tSERVER\tNETWORK\tFINGERPRINT")
	for i, r := range alive {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			formatLatency(r),
			truncateString(displayName(r.Profile), 32),
			r.Profile.ID(),
			networkLabel(r.Profile),
			r.Profile.ShortFingerprint(),
		)
	}
	_ = tw.Flush()
	if len(alive) < len(report.Alive) {
		fmt.Fprintf(sb, "  ... %d more\n", len(report.Alive)-len(alive))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.TestReport) {
	if len(report.Failures) == 0 && len(report.Skipped) == 0 {
		return
	}
	section(sb, "FAILURES")
	for _, r := range report.Failures {
		fmt.Fprintf(sb, "  [%s] %s (%s): %s\n",
			r.Kind, truncateString(displayName(r.Profile), 32), r.Profile.ID(), r.Message)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(sb, "  [skipped] %s: %s\n", truncateString(s.Raw, 40), s.Reason)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, report *model.TestReport) {
	section(sb, "TOTALS")
	fmt.Fprintf(sb, "  Tested:  %d\n", report.Total())
	fmt.Fprintf(sb, "  Alive:   %d\n", len(report.Alive))
	fmt.Fprintf(sb, "  Failed:  %d", report.FailedCount())
	if counts := report.FailureCounts(); len(counts) > 0 {
		fmt.Fprintf(sb, " (%s)", formatCounts(counts))
	}
	sb.WriteString("\n")
	if len(report.Skipped) > 0 {
		fmt.Fprintf(sb, "  Skipped: %d\n", len(report.Skipped))
	}
	if best, ok := report.Best(); ok {
		fmt.Fprintf(sb, "  Best:    %s (%s)\n", displayName(best.Profile), formatLatency(best))
	}
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
}

// formatCounts renders failure counts as "probe=2, start=1" in kind order.
func formatCounts(counts map[model.FailureKind]int) string {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	slices.Sort(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k + "=" + strconv.Itoa(counts[model.FailureKind(k)])
	}
	return strings.Join(parts, ", ")
}

func networkLabel(p model.ServerProfile) string {
	if p.Security == model.SecurityTLS {
		return p.Network.String() + "+tls"
	}
	return p.Network.String()
}

func formatMS(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 1, 64) + " ms"
}
