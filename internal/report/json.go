package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/vpnprobe/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Summary carries the derived counts next to the raw report.
type Summary struct {
	Total    int                       `json:"total"`
	Alive    int                       `json:"alive"`
	Failed   int                       `json:"failed"`
	Skipped  int                       `json:"skipped"`
	ByKind   map[model.FailureKind]int `json:"failures_by_kind,omitempty"`
	ElapsedS float64                   `json:"elapsed_seconds"`
}

// Document is the JSON envelope written by JSONWriter.
type Document struct {
	Summary Summary           `json:"summary"`
	Report  *model.TestReport `json:"report"`
}

// NewDocument wraps a report with its summary.
func NewDocument(report *model.TestReport) Document {
	return Document{
		Summary: Summary{
			Total:    report.Total(),
			Alive:    len(report.Alive),
			Failed:   report.FailedCount(),
			Skipped:  len(report.Skipped),
			ByKind:   report.FailureCounts(),
			ElapsedS: report.Elapsed().Seconds(),
		},
		Report: report,
	}
}

// Write outputs the report wrapped in a Document.
func (w *JSONWriter) Write(report *model.TestReport) (int, error) {
	return w.WriteValue(NewDocument(report))
}

// WriteValue marshals any value with the writer's settings, followed by a newline.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	return w.output.Write(append(data, '\n'))
}
