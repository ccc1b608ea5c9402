package report

import (
	"io"

	"github.com/nao1215/vpnprobe/internal/model"
)

// Writer renders a test report in one output format.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *model.TestReport) (int, error)
}

// MultiWriter writes the same report to several Writers, for example the
// terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to every Writer and stops on the first error.
func (m *MultiWriter) Write(report *model.TestReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Format selects a Writer implementation.
type Format int

const (
	// FormatText is the plain text table.
	FormatText Format = iota
	// FormatJSON is indented JSON.
	FormatJSON
	// FormatMarkdown is GitHub flavored Markdown.
	FormatMarkdown
)

// NewWriter returns the Writer for format.
func NewWriter(output io.Writer, format Format) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint())
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewSimpleWriter(output)
	}
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// displayName returns the profile name, falling back to its address.
func displayName(p model.ServerProfile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID()
}

// formatLatency renders a latency in milliseconds with one decimal.
func formatLatency(r model.TestResult) string {
	if r.LatencyMS == nil {
		return "-"
	}
	return formatMS(*r.LatencyMS)
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
