package session

import (
	"sync"
	"testing"

	"github.com/exam-sentinel/backend/internal/policy"
	"github.com/exam-sentinel/backend/internal/probe"
)

// fakeShell records the commands the machine issues, in order.
type fakeShell struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeShell) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeShell) LockWindow()            { f.record("lock_window") }
func (f *fakeShell) EnterKiosk()            { f.record("enter_kiosk") }
func (f *fakeShell) ExitKiosk()             { f.record("exit_kiosk") }
func (f *fakeShell) ShowWarning(msg string) { f.record("show_warning") }
func (f *fakeShell) CloseWarning()          { f.record("close_warning") }
func (f *fakeShell) ShowTerminated(string)  { f.record("terminated") }
func (f *fakeShell) UnlockForExit()         { f.record("unlock_for_exit") }
func (f *fakeShell) Quit()                  { f.record("quit") }

func (f *fakeShell) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func cleanReport() *policy.Report {
	r := policy.Evaluate(probe.Snapshot{
		Display:    probe.DisplayResult{Count: 1},
		Conference: probe.ConferenceResult{Running: true, CameraActive: true},
	})
	return &r
}

func violationReport() *policy.Report {
	r := policy.Evaluate(probe.Snapshot{
		Display:    probe.DisplayResult{Count: 1},
		Conference: probe.ConferenceResult{Running: true, CameraActive: false},
	})
	return &r
}

// newTestMachine returns a machine whose events are applied synchronously
// via apply, bypassing the Run goroutine for deterministic tests.
func newTestMachine() (*Machine, *fakeShell) {
	shell := &fakeShell{}
	return NewMachine(shell, nil), shell
}

func startSession(m *Machine) {
	m.apply(Event{Type: EventStartRequested})
}

func TestStartTransitionsToActive(t *testing.T) {
	m, shell := newTestMachine()

	startSession(m)

	state := m.Snapshot()
	if state.Phase != Active {
		t.Fatalf("phase = %s, want active", state.Phase)
	}
	if !state.Started {
		t.Error("Started flag not set")
	}
	if state.StartedAt.IsZero() {
		t.Error("StartedAt not stamped")
	}
	if shell.count("lock_window") != 1 || shell.count("enter_kiosk") != 1 {
		t.Errorf("shell calls = %v, want lock_window and enter_kiosk", shell.calls)
	}
}

func TestStartIsOneShot(t *testing.T) {
	m, shell := newTestMachine()

	startSession(m)
	startSession(m)

	if shell.count("enter_kiosk") != 1 {
		t.Errorf("enter_kiosk called %d times, want 1", shell.count("enter_kiosk"))
	}
}

func TestTickViolationOpensWarning(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})

	state := m.Snapshot()
	if state.Phase != Warning {
		t.Fatalf("phase = %s, want warning", state.Phase)
	}
	if !state.ShowingWarning {
		t.Error("ShowingWarning not set")
	}
	if state.ActiveViolation == nil || state.ActiveViolation.Kind != policy.CameraInactive {
		t.Errorf("ActiveViolation = %+v, want camera_inactive", state.ActiveViolation)
	}
	if state.WarningSince == nil {
		t.Error("WarningSince not stamped")
	}
	if shell.count("show_warning") != 1 {
		t.Errorf("show_warning called %d times, want 1", shell.count("show_warning"))
	}
}

// Opening a warning is idempotent: while one is showing, further violation
// reports from either tick stream must not open a second surface.
func TestWarningOpenIdempotent(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventResolveReport, Report: violationReport()})

	if shell.count("show_warning") != 1 {
		t.Errorf("show_warning called %d times, want 1", shell.count("show_warning"))
	}
	if got := m.Snapshot().WarningCount; got != 1 {
		t.Errorf("WarningCount = %d, want 1", got)
	}
}

func TestTickCleanKeepsActive(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: cleanReport()})

	if got := m.Snapshot().Phase; got != Active {
		t.Errorf("phase = %s, want active", got)
	}
	if shell.count("show_warning") != 0 {
		t.Error("clean report must not open a warning")
	}
}

// Scenario from the policy: camera drops mid-session, the warning shows, and
// a later resolve poll finds the camera back on. The session returns to
// Active and the warning closes.
func TestWarningResolvesBackToActive(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventResolveReport, Report: cleanReport()})

	state := m.Snapshot()
	if state.Phase != Active {
		t.Fatalf("phase = %s, want active", state.Phase)
	}
	if state.ShowingWarning {
		t.Error("ShowingWarning still set")
	}
	if state.ActiveViolation != nil {
		t.Error("ActiveViolation not cleared")
	}
	if shell.count("close_warning") != 1 {
		t.Errorf("close_warning called %d times, want 1", shell.count("close_warning"))
	}
}

func TestResolveDirtyStaysInWarning(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventResolveReport, Report: violationReport()})

	if got := m.Snapshot().Phase; got != Warning {
		t.Errorf("phase = %s, want warning", got)
	}
	if shell.count("close_warning") != 0 {
		t.Error("dirty resolve must not close the warning")
	}
}

func TestExpiryWithViolationTerminates(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventResolveReport, Report: violationReport()})
	m.apply(Event{Type: EventWarningTimerExpired})

	state := m.Snapshot()
	if state.Phase != Terminated {
		t.Fatalf("phase = %s, want terminated", state.Phase)
	}
	if state.TerminatedAt == nil {
		t.Error("TerminatedAt not stamped")
	}
	if state.TerminationReason == "" {
		t.Error("TerminationReason empty")
	}
	for _, want := range []string{"close_warning", "unlock_for_exit", "terminated"} {
		if shell.count(want) != 1 {
			t.Errorf("%s called %d times, want 1", want, shell.count(want))
		}
	}
}

func TestExpiryWithCleanReportResumes(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventResolveReport, Report: cleanReport()})

	// The clean resolve already closed the warning; a racing expiry event
	// arriving afterwards must be dropped, not terminate the session.
	m.apply(Event{Type: EventWarningTimerExpired})

	if got := m.Snapshot().Phase; got != Active {
		t.Errorf("phase = %s, want active", got)
	}
	if shell.count("terminated") != 0 {
		t.Error("session terminated despite resolved violation")
	}
}

func TestExpiryRaceCleanLastReport(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	// The resolve poll saw the environment clean, but its report and the
	// expiry event arrive back to back: expiry consults the latest report
	// and resumes instead of terminating.
	m.lastReport = cleanReport()
	m.apply(Event{Type: EventWarningTimerExpired})

	if got := m.Snapshot().Phase; got != Active {
		t.Errorf("phase = %s, want active", got)
	}
	if shell.count("close_warning") != 1 {
		t.Errorf("close_warning called %d times, want 1", shell.count("close_warning"))
	}
}

// No sequence of events may leave Terminated.
func TestTerminatedIsMonotonic(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)

	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventWarningTimerExpired})

	if got := m.Snapshot().Phase; got != Terminated {
		t.Fatalf("phase = %s, want terminated", got)
	}

	before := shell.count("quit")
	events := []Event{
		{Type: EventStartRequested},
		{Type: EventTickReport, Report: cleanReport()},
		{Type: EventResolveReport, Report: cleanReport()},
		{Type: EventWarningTimerExpired},
		{Type: EventEndRequested},
	}
	for _, ev := range events {
		m.apply(ev)
		if got := m.Snapshot().Phase; got != Terminated {
			t.Fatalf("event %s moved phase to %s, want terminated", ev.Type, got)
		}
	}
	if shell.count("quit") != before {
		t.Error("end_requested must be rejected after termination")
	}
	if shell.count("show_warning") != 1 {
		t.Error("no new warning may open after termination")
	}
}

func TestEndRequestedClosesSession(t *testing.T) {
	m, shell := newTestMachine()
	startSession(m)
	m.apply(Event{Type: EventTickReport, Report: violationReport()})

	m.apply(Event{Type: EventEndRequested})

	state := m.Snapshot()
	if state.Phase != Idle {
		t.Errorf("phase = %s, want idle", state.Phase)
	}
	if state.ShowingWarning {
		t.Error("warning still showing after end")
	}
	for _, want := range []string{"close_warning", "exit_kiosk", "quit"} {
		if shell.count(want) != 1 {
			t.Errorf("%s called %d times, want 1", want, shell.count(want))
		}
	}
}

func TestQuitBeforeStart(t *testing.T) {
	m, shell := newTestMachine()

	m.apply(Event{Type: EventEndRequested})

	if got := m.Snapshot().Phase; got != Idle {
		t.Errorf("phase = %s, want idle", got)
	}
	if shell.count("quit") != 1 {
		t.Errorf("quit called %d times, want 1", shell.count("quit"))
	}
	if shell.count("exit_kiosk") != 0 {
		t.Error("exit_kiosk must not run for a never-started session")
	}
}

// Events arriving in states they don't apply to are dropped, not fatal.
func TestIncompatibleEventsDropped(t *testing.T) {
	m, shell := newTestMachine()

	// All of these land in Idle before the session started.
	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventResolveReport, Report: cleanReport()})
	m.apply(Event{Type: EventWarningTimerExpired})
	m.apply(Event{Type: EventTickReport, Report: nil})

	if got := m.Snapshot().Phase; got != Idle {
		t.Errorf("phase = %s, want idle", got)
	}
	if len(shell.calls) != 0 {
		t.Errorf("shell calls = %v, want none", shell.calls)
	}
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAuditor) Record(event, phase, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func TestAuditTrailAcrossLifecycle(t *testing.T) {
	shell := &fakeShell{}
	aud := &recordingAuditor{}
	m := NewMachine(shell, aud)

	m.apply(Event{Type: EventStartRequested})
	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventResolveReport, Report: cleanReport()})
	m.apply(Event{Type: EventTickReport, Report: violationReport()})
	m.apply(Event{Type: EventWarningTimerExpired})

	want := []string{"session_started", "warning_shown", "warning_cleared", "warning_shown", "session_terminated"}
	if len(aud.events) != len(want) {
		t.Fatalf("audit events = %v, want %v", aud.events, want)
	}
	for i := range want {
		if aud.events[i] != want[i] {
			t.Errorf("audit[%d] = %s, want %s", i, aud.events[i], want[i])
		}
	}
}
