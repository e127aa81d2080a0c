// Package session owns the proctored-session state machine. All session
// state lives in one State value mutated only here; the scheduler and the
// presentation shell submit events and the machine applies guarded
// transitions, so the two concurrent tick streams can never race each other
// into inconsistent state.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/exam-sentinel/backend/internal/policy"
)

// Recorder receives audit entries for integrity-relevant transitions.
// Satisfied by *audit.Log.
type Recorder interface {
	Record(event, phase, detail string) error
}

// Machine applies session events in arrival order on a single goroutine.
type Machine struct {
	shell ShellDriver
	aud   Recorder // nil disables audit recording

	events  chan Event
	phaseCh chan Phase

	// onState is invoked with a state snapshot after every applied
	// transition. Set before Run.
	onState func(*State)

	mu         sync.RWMutex // protects state and lastReport
	state      State
	lastReport *policy.Report
}

func NewMachine(shell ShellDriver, aud Recorder) *Machine {
	return &Machine{
		shell:   shell,
		aud:     aud,
		events:  make(chan Event, 32),
		phaseCh: make(chan Phase, 8),
	}
}

// SetStateHook registers a callback for applied transitions. Must be called
// before Run.
func (m *Machine) SetStateHook(fn func(*State)) {
	m.onState = fn
}

// Submit queues an event for the machine. Non-blocking: if the machine has
// stopped draining (shutdown), the event is dropped with a log line rather
// than stalling the caller's tick loop.
func (m *Machine) Submit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Printf("[session] dropping %s event: queue full", ev.Type)
	}
}

// PhaseChanges delivers the phase after each transition that changed it.
// The scheduler uses this to start and cancel the resolve poll.
func (m *Machine) PhaseChanges() <-chan Phase {
	return m.phaseCh
}

// Snapshot returns a read-only copy of the current session state.
func (m *Machine) Snapshot() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Run consumes events until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	log.Println("[session] state machine started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[session] state machine stopped")
			return
		case ev := <-m.events:
			m.apply(ev)
		}
	}
}

func (m *Machine) apply(ev Event) {
	switch ev.Type {
	case EventStartRequested:
		m.handleStart()
	case EventTickReport:
		m.handleTick(ev.Report)
	case EventResolveReport:
		m.handleResolve(ev.Report)
	case EventWarningTimerExpired:
		m.handleExpiry()
	case EventEndRequested:
		m.handleEnd()
	default:
		log.Printf("[session] unknown event type %d", ev.Type)
	}
}

func (m *Machine) handleStart() {
	m.mu.Lock()
	if m.state.Phase == Terminated || m.state.Started {
		phase := m.state.Phase
		m.mu.Unlock()
		log.Printf("[session] dropping start_requested in phase %s", phase)
		return
	}
	m.state.Started = true
	m.state.Phase = Active
	m.state.StartedAt = time.Now()
	snap := m.state.Clone()
	m.mu.Unlock()

	m.shell.LockWindow()
	m.shell.EnterKiosk()
	m.record("session_started", "")
	m.notify(snap)
}

// handleTick processes a steady-state poll result. The monitor tick keeps
// firing while a warning is showing; the ShowingWarning guard makes it a
// no-op there so the two poll streams never open two warning surfaces.
func (m *Machine) handleTick(report *policy.Report) {
	if report == nil {
		log.Println("[session] dropping tick_report without report")
		return
	}
	m.mu.Lock()
	m.lastReport = report
	if m.state.Phase != Active || m.state.ShowingWarning || report.Clean() {
		m.mu.Unlock()
		return
	}
	violation := report.Violations[0]
	now := time.Now()
	m.state.Phase = Warning
	m.state.ShowingWarning = true
	m.state.ActiveViolation = &violation
	m.state.WarningSince = &now
	m.state.WarningCount++
	snap := m.state.Clone()
	m.mu.Unlock()

	log.Printf("[session] violation detected: %s", violation.Kind)
	m.shell.ShowWarning(violation.Message)
	m.record("warning_shown", violation.Message)
	m.notify(snap)
}

// handleResolve processes an in-warning poll result. A clean report closes
// the warning and resumes steady-state monitoring; a dirty one leaves the
// warning up and only refreshes the stored report for the expiry decision.
func (m *Machine) handleResolve(report *policy.Report) {
	if report == nil {
		log.Println("[session] dropping resolve_report without report")
		return
	}
	m.mu.Lock()
	m.lastReport = report
	if m.state.Phase != Warning {
		phase := m.state.Phase
		m.mu.Unlock()
		log.Printf("[session] dropping resolve_report in phase %s", phase)
		return
	}
	if !report.Clean() {
		m.mu.Unlock()
		return
	}
	snap := m.clearWarningLocked()
	m.mu.Unlock()

	m.shell.CloseWarning()
	m.record("warning_cleared", "")
	m.notify(snap)
}

// handleExpiry decides the session's fate when the shell's grace countdown
// runs out. The most recent poll report decides; it is at most one resolve
// interval old. A missing report fails closed.
func (m *Machine) handleExpiry() {
	m.mu.Lock()
	if m.state.Phase != Warning {
		phase := m.state.Phase
		m.mu.Unlock()
		log.Printf("[session] dropping warning_timer_expired in phase %s", phase)
		return
	}

	if m.lastReport != nil && m.lastReport.Clean() {
		snap := m.clearWarningLocked()
		m.mu.Unlock()

		m.shell.CloseWarning()
		m.record("warning_cleared", "resolved at grace expiry")
		m.notify(snap)
		return
	}

	reason := "integrity violation not resolved within the grace period"
	if m.state.ActiveViolation != nil {
		reason = m.state.ActiveViolation.Message
	}
	if m.lastReport != nil && !m.lastReport.Clean() {
		reason = m.lastReport.Headline()
	}
	now := time.Now()
	m.state.Phase = Terminated
	m.state.ShowingWarning = false
	m.state.TerminatedAt = &now
	m.state.TerminationReason = reason
	snap := m.state.Clone()
	m.mu.Unlock()

	log.Printf("[session] terminating session: %s", reason)
	m.shell.CloseWarning()
	m.shell.UnlockForExit()
	m.shell.ShowTerminated(reason)
	m.record("session_terminated", reason)
	m.notify(snap)
}

func (m *Machine) handleEnd() {
	m.mu.Lock()
	if m.state.Phase == Terminated {
		m.mu.Unlock()
		log.Println("[session] dropping end_requested: session terminated")
		return
	}
	if !m.state.Started {
		m.mu.Unlock()
		log.Println("[session] quit requested before session start")
		m.shell.Quit()
		return
	}
	wasShowing := m.state.ShowingWarning
	m.state.Phase = Idle
	m.state.ShowingWarning = false
	m.state.ActiveViolation = nil
	m.state.WarningSince = nil
	snap := m.state.Clone()
	m.mu.Unlock()

	if wasShowing {
		m.shell.CloseWarning()
	}
	m.shell.ExitKiosk()
	m.record("session_ended", "")
	m.notify(snap)
	m.shell.Quit()
}

// clearWarningLocked returns the session from Warning to Active. Callers
// hold m.mu and have verified the phase.
func (m *Machine) clearWarningLocked() *State {
	m.state.Phase = Active
	m.state.ShowingWarning = false
	m.state.ActiveViolation = nil
	m.state.WarningSince = nil
	return m.state.Clone()
}

func (m *Machine) record(event, detail string) {
	if m.aud == nil {
		return
	}
	phase := m.Snapshot().Phase
	if err := m.aud.Record(event, phase.String(), detail); err != nil {
		log.Printf("[session] audit record failed: %v", err)
	}
}

// notify publishes the transition to the phase channel and the state hook.
// The phase send is non-blocking; a slow consumer misses intermediate
// phases but the hook snapshot always carries the latest state.
func (m *Machine) notify(snap *State) {
	select {
	case m.phaseCh <- snap.Phase:
	default:
	}
	if m.onState != nil {
		m.onState(snap)
	}
}
