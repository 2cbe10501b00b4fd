package ai

import "time"

// Stage is the fan-out used for one generation call.
type Stage int

const (
	StageSingle Stage = iota
	StageBulk
	StageBatched
	StageSequential
)

func (s Stage) String() string {
	switch s {
	case StageSingle:
		return "SINGLE"
	case StageBulk:
		return "BULK"
	case StageBatched:
		return "BATCHED"
	case StageSequential:
		return "SEQUENTIAL"
	default:
		return "UNKNOWN"
	}
}

type EventKind int

const (
	EventStageEntered EventKind = iota
	EventItem
	EventWaiting
	EventStageFailed
	EventCombine
)

func (k EventKind) String() string {
	switch k {
	case EventStageEntered:
		return "stage_entered"
	case EventItem:
		return "item"
	case EventWaiting:
		return "waiting"
	case EventStageFailed:
		return "stage_failed"
	case EventCombine:
		return "combine"
	default:
		return "unknown"
	}
}

// Event is a progress notification. Item and Total are 1-based group counters;
// Attempt is set for retry waits.
type Event struct {
	Kind    EventKind
	Stage   Stage
	Item    int
	Total   int
	Images  int
	Attempt int
	Wait    time.Duration
	Err     error
}

// ProgressFunc receives events synchronously on the extracting goroutine.
type ProgressFunc func(Event)
