package session

import "github.com/exam-sentinel/backend/internal/policy"

// EventType classifies the inputs the state machine consumes. Ticks come
// from the monitoring scheduler; the rest come from the presentation shell.
type EventType int

const (
	EventStartRequested      EventType = iota // shell: begin the proctored session
	EventTickReport                           // scheduler: steady-state poll result
	EventResolveReport                        // scheduler: in-warning poll result
	EventWarningTimerExpired                  // shell: grace period ran out
	EventEndRequested                         // shell: end the session gracefully
)

var eventNames = map[EventType]string{
	EventStartRequested:      "start_requested",
	EventTickReport:          "tick_report",
	EventResolveReport:       "resolve_report",
	EventWarningTimerExpired: "warning_timer_expired",
	EventEndRequested:        "end_requested",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event is one input to the state machine. Report is set only on tick and
// resolve events.
type Event struct {
	Type   EventType
	Report *policy.Report
}
