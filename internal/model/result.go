package model

import (
	"slices"
	"time"
)

// FailureKind classifies why a candidate was not alive.
// It mirrors the error taxonomy of the health check: a failed candidate
// is always recorded, never escalated.
type FailureKind string

const (
	// FailureNone is used for alive results.
	FailureNone FailureKind = ""
	// FailureConfig means the proxy configuration could not be generated.
	FailureConfig FailureKind = "config"
	// FailureStart means the proxy process exited during the startup grace period
	// or could not be launched at all.
	FailureStart FailureKind = "start"
	// FailureProbe means the probe request through the proxy failed.
	FailureProbe FailureKind = "probe"
	// FailureCanceled means the batch was canceled before the candidate finished.
	FailureCanceled FailureKind = "canceled"
	// FailureInternal means the task itself broke, for example by panicking.
	FailureInternal FailureKind = "internal"
)

// TestResult is the outcome of probing one candidate profile.
// It is created once per completed task and never mutated afterwards.
type TestResult struct {
	// Profile is the candidate that was tested.
	Profile ServerProfile `json:"profile"`

	// Alive is true only if the probe returned the expected status in time.
	Alive bool `json:"alive"`

	// LatencyMS is the wall-clock duration of the probe request in
	// milliseconds. Nil when the candidate is not alive.
	LatencyMS *float64 `json:"latency_ms,omitempty"`

	// Message is a short, operator facing diagnostic.
	Message string `json:"message"`

	// Kind is the failure class. Empty for alive results.
	Kind FailureKind `json:"kind,omitempty"`

	// Index is the position of the candidate in the input order.
	Index int `json:"index"`
}

// NewAliveResult creates an alive result with the measured latency.
func NewAliveResult(profile ServerProfile, index int, latency time.Duration, message string) TestResult {
	ms := float64(latency.Microseconds()) / 1000
	return TestResult{
		Profile:   profile,
		Alive:     true,
		LatencyMS: &ms,
		Message:   message,
		Index:     index,
	}
}

// NewDeadResult creates a result for a candidate that did not pass.
func NewDeadResult(profile ServerProfile, index int, kind FailureKind, message string) TestResult {
	return TestResult{
		Profile: profile,
		Alive:   false,
		Message: message,
		Kind:    kind,
		Index:   index,
	}
}

// Latency returns the measured latency as a duration, or zero when unknown.
func (r TestResult) Latency() time.Duration {
	if r.LatencyMS == nil {
		return 0
	}
	return time.Duration(*r.LatencyMS * float64(time.Millisecond))
}

// SortByLatency sorts alive results ascending by latency.
// The sort is stable so equal latencies keep their input order.
// Results without latency sort last.
func SortByLatency(results []TestResult) {
	slices.SortStableFunc(results, func(a, b TestResult) int {
		switch {
		case a.LatencyMS == nil && b.LatencyMS == nil:
			return 0
		case a.LatencyMS == nil:
			return 1
		case b.LatencyMS == nil:
			return -1
		case *a.LatencyMS < *b.LatencyMS:
			return -1
		case *a.LatencyMS > *b.LatencyMS:
			return 1
		default:
			return 0
		}
	})
}
