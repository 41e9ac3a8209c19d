package tasks

import (
	"fmt"
	"time"
)

// Event is a lifecycle notification emitted by the engine.
type Event struct {
	Kind    EventKind
	Count   int    // Queue size for SubmissionStart, accepted batch size for SubmissionUpdate
	Message string // Human-readable message for display
	Time    time.Time
}

// EventKind enumerates engine notifications.
type EventKind int

const (
	SubmissionStart EventKind = iota
	SubmissionUpdate
	SubmissionEnd
	AuthFailure
)

func (k EventKind) String() string {
	switch k {
	case SubmissionStart:
		return "submission_start"
	case SubmissionUpdate:
		return "submission_update"
	case SubmissionEnd:
		return "submission_end"
	case AuthFailure:
		return "auth_failure"
	default:
		return ""
	}
}

func submissionStartEvent(now time.Time, queued int) Event {
	return Event{
		Kind:    SubmissionStart,
		Count:   queued,
		Message: fmt.Sprintf("Submitting %d pending scrobbles", queued),
		Time:    now,
	}
}

func submissionUpdateEvent(now time.Time, accepted int) Event {
	return Event{
		Kind:    SubmissionUpdate,
		Count:   accepted,
		Message: fmt.Sprintf("Submitted %d scrobbles", accepted),
		Time:    now,
	}
}

func submissionEndEvent(now time.Time) Event {
	return Event{Kind: SubmissionEnd, Message: "Queue drained", Time: now}
}

func authFailureEvent(now time.Time, method string) Event {
	return Event{
		Kind:    AuthFailure,
		Message: fmt.Sprintf("Session rejected by %s; re-authenticate", method),
		Time:    now,
	}
}

// sendEvent delivers ev without blocking; events are dropped when the channel is full.
func (e *SubmissionEngine) sendEvent(ev Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
