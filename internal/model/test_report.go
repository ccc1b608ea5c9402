package model

import (
	"slices"
	"time"
)

// SkippedLink records a raw link that never became a candidate,
// either because it failed to decode or because its scheme is not supported.
type SkippedLink struct {
	// Raw is the (possibly truncated) link text.
	Raw string `json:"raw"`

	// Reason is a short diagnostic.
	Reason string `json:"reason"`
}

// TestReport is the aggregated outcome of one health check run.
//
// Every candidate appears in exactly one of Alive or Failures.
// Alive is sorted ascending by latency; Failures keeps candidate order.
type TestReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last task completed.
	FinishedAt time.Time `json:"finished_at"`

	// Concurrency is the concurrency limit the run used.
	Concurrency int `json:"concurrency"`

	// Alive is the ranked list of reachable servers.
	Alive []TestResult `json:"alive"`

	// Failures holds the candidates that were not alive.
	Failures []TestResult `json:"failures"`

	// Skipped holds raw links that were not tested at all.
	Skipped []SkippedLink `json:"skipped,omitempty"`

	// Canceled is true if the run was interrupted before every task finished.
	Canceled bool `json:"canceled,omitempty"`
}

// NewTestReport builds a report from unordered results.
// Results are split into alive and failed, then alive results are ranked.
func NewTestReport(runID string, startedAt time.Time, concurrency int, results []TestResult) *TestReport {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b TestResult) int {
		return a.Index - b.Index
	})

	report := &TestReport{
		RunID:       runID,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		Concurrency: concurrency,
		Alive:       make([]TestResult, 0, len(ordered)),
		Failures:    make([]TestResult, 0),
	}
	for _, r := range ordered {
		if r.Alive {
			report.Alive = append(report.Alive, r)
			continue
		}
		report.Failures = append(report.Failures, r)
	}
	SortByLatency(report.Alive)
	return report
}

// Total returns the number of tested candidates.
func (r *TestReport) Total() int {
	return len(r.Alive) + len(r.Failures)
}

// FailedCount returns the number of candidates that were not alive.
func (r *TestReport) FailedCount() int {
	return len(r.Failures)
}

// Elapsed returns the wall-clock duration of the run.
func (r *TestReport) Elapsed() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Best returns the fastest alive result.
func (r *TestReport) Best() (TestResult, bool) {
	if len(r.Alive) == 0 {
		return TestResult{}, false
	}
	return r.Alive[0], true
}

// FailureCounts returns the number of failures per kind.
func (r *TestReport) FailureCounts() map[FailureKind]int {
	counts := make(map[FailureKind]int)
	for _, f := range r.Failures {
		counts[f.Kind]++
	}
	return counts
}
