// Package report renders test reports.
//
// Writers implement the Writer interface:
//   - SimpleWriter: ranked plain text table for the terminal
//   - JSONWriter: the report with a summary envelope
//   - MarkdownWriter: GitHub flavored Markdown with a mermaid pie chart
//
// ExportLinks writes the alive servers back out as a subscription body and
// Compare/WriteDiff show what changed between two runs.
package report
