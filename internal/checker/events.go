package checker

import (
	"github.com/nao1215/vpnprobe/internal/model"
)

// EventType identifies an orchestration event.
type EventType int

const (
	// EventTaskStarted is emitted when a candidate has been admitted to a slot.
	EventTaskStarted EventType = iota
	// EventTaskFinished is emitted when a candidate has a result.
	EventTaskFinished
	// EventBatchFinished is emitted once, after every task has finished.
	EventBatchFinished
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventTaskStarted:
		return "task started"
	case EventTaskFinished:
		return "task finished"
	case EventBatchFinished:
		return "batch finished"
	default:
		return "unknown"
	}
}

// Event is a progress notification from Orchestrator.Run.
type Event struct {
	// Type identifies the event.
	Type EventType

	// Index is the candidate position. Unused for EventBatchFinished.
	Index int

	// Total is the number of candidates in the batch.
	Total int

	// Done is the number of finished tasks at the time of the event.
	Done int

	// Profile is the candidate. Unused for EventBatchFinished.
	Profile model.ServerProfile

	// Result is set for EventTaskFinished.
	Result *model.TestResult

	// Report is set for EventBatchFinished.
	Report *model.TestReport
}

// EventHandler receives events. Calls are serialized, so a handler does not
// need its own locking, but it must not block for long.
type EventHandler func(Event)
