package session

import (
	"encoding/json"
	"time"

	"github.com/exam-sentinel/backend/internal/policy"
)

// Phase is the session's lifecycle position. Terminated is terminal for the
// process lifetime: no event transitions out of it.
type Phase int

const (
	Idle Phase = iota
	Active
	Warning
	Terminated
)

var phaseNames = map[Phase]string{
	Idle:       "idle",
	Active:     "active",
	Warning:    "warning",
	Terminated: "terminated",
}

var phaseFromName = map[string]Phase{
	"idle":       Idle,
	"active":     Active,
	"warning":    Warning,
	"terminated": Terminated,
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := phaseFromName[s]; ok {
		*p = v
	}
	return nil
}

// State is the session's full condition. The Machine is the only writer;
// everything else sees read-only snapshots via Clone.
type State struct {
	Phase             Phase             `json:"phase"`
	Started           bool              `json:"started"`
	ShowingWarning    bool              `json:"showingWarning"`
	ActiveViolation   *policy.Violation `json:"activeViolation,omitempty"`
	StartedAt         time.Time         `json:"startedAt"`
	WarningSince      *time.Time        `json:"warningSince,omitempty"`
	TerminatedAt      *time.Time        `json:"terminatedAt,omitempty"`
	TerminationReason string            `json:"terminationReason,omitempty"`
	WarningCount      int               `json:"warningCount"`
}

// Clone returns a deep copy of the State, duplicating pointer fields so the
// copy can be read independently of the original.
func (s *State) Clone() *State {
	c := *s
	if s.ActiveViolation != nil {
		v := *s.ActiveViolation
		c.ActiveViolation = &v
	}
	if s.WarningSince != nil {
		t := *s.WarningSince
		c.WarningSince = &t
	}
	if s.TerminatedAt != nil {
		t := *s.TerminatedAt
		c.TerminatedAt = &t
	}
	return &c
}
