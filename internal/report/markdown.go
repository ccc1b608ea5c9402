package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/vpnprobe/internal/model"
)

// MarkdownWriter outputs reports as GitHub flavored Markdown with tables,
// an alert and an alive/dead pie chart.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.TestReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeAlive(md, report)
	w.writeFailures(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.TestReport) {
	md.H1("vpnprobe Report")
	md.PlainText("")

	status := "✅ Complete"
	if report.Canceled {
		status = "⚠️ Canceled (partial results)"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + report.RunID + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", report.Elapsed().Round(10 * time.Millisecond).String()},
			{"Concurrency", strconv.Itoa(report.Concurrency)},
			{"Status", status},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.TestReport) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Result", "Count"},
		Rows: [][]string{
			{"🟢 Alive", strconv.Itoa(len(report.Alive))},
			{"🔴 Failed", strconv.Itoa(report.FailedCount())},
			{"⚪ Skipped", strconv.Itoa(len(report.Skipped))},
			{"**Tested**", "**" + strconv.Itoa(report.Total()) + "**"},
		},
	})
	md.PlainText("")

	if report.Total() > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Alive vs Dead"),
			piechart.WithShowData(true),
		)
		if n := len(report.Alive); n > 0 {
			chart.LabelAndIntValue("Alive", uint64(n))
		}
		if n := report.FailedCount(); n > 0 {
			chart.LabelAndIntValue("Dead", uint64(n))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case report.Total() == 0:
		md.Note("No candidates were tested.")
	case len(report.Alive) == 0:
		md.Cautionf("None of the %d servers answered the probe.", report.Total())
	case report.Canceled:
		md.Warningf("The run was canceled; %d of the tested servers are alive.", len(report.Alive))
	default:
		best, _ := report.Best()
		md.Tip(fmt.Sprintf("Fastest server: %s (%s).", displayName(best.Profile), formatLatency(best)))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlive(md *markdown.Markdown, report *model.TestReport) {
	md.H2("Alive Servers")
	md.PlainText("")
	if len(report.Alive) == 0 {
		md.PlainText("No alive servers.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Alive))
	for i, r := range report.Alive {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			formatLatency(r),
			truncateString(displayName(r.Profile), 40),
			"`" + r.Profile.ID() + "`",
			networkLabel(r.Profile),
			"`" + r.Profile.ShortFingerprint() + "`",
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Latency", "Name", "Server", "Network", "Fingerprint"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.TestReport) {
	if len(report.Failures) == 0 && len(report.Skipped) == 0 {
		return
	}
	md.H2("Failures")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Failures)+len(report.Skipped))
	for _, r := range report.Failures {
		rows = append(rows, []string{
			string(r.Kind),
			truncateString(displayName(r.Profile), 40),
			"`" + r.Profile.ID() + "`",
			truncateString(r.Message, 60),
		})
	}
	for _, s := range report.Skipped {
		rows = append(rows, []string{"skipped", "-", "`" + truncateString(s.Raw, 30) + "`", s.Reason})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Name", "Server", "Message"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [vpnprobe](https://github.com/nao1215/vpnprobe)*")
}
