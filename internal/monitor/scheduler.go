// Package monitor drives the periodic environment checks. Two independent
// cadences share the prober: the steady-state poll while the session is
// active, and a faster resolve poll that exists only while a warning is
// showing.
package monitor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/exam-sentinel/backend/internal/config"
	"github.com/exam-sentinel/backend/internal/policy"
	"github.com/exam-sentinel/backend/internal/probe"
	"github.com/exam-sentinel/backend/internal/session"
)

type Scheduler struct {
	mu      sync.RWMutex // protects cfg
	cfg     config.MonitorConfig
	machine *session.Machine
	prober  probe.Prober

	// In-flight guards. Probe commands can outlast a tick period; a tick
	// that finds its own task still running is skipped rather than stacked.
	monitorBusy atomic.Bool
	resolveBusy atomic.Bool
}

func NewScheduler(cfg config.MonitorConfig, machine *session.Machine, prober probe.Prober) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		machine: machine,
		prober:  prober,
	}
}

// SetConfig replaces the scheduler's monitor config. Interval changes apply
// to the next ticker the scheduler creates; the running steady-state ticker
// keeps its period until restart.
func (s *Scheduler) SetConfig(cfg config.MonitorConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Scheduler) resolveInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ResolveInterval
}

// Run drives the steady-state ticker and manages the resolve poll's
// lifecycle from the machine's phase changes. Blocks until ctx is
// cancelled; both tickers are torn down on return regardless of state.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.RLock()
	pollInterval := s.cfg.PollInterval
	s.mu.RUnlock()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Printf("[monitor] started (poll=%s, resolve=%s)", pollInterval, s.resolveInterval())

	var resolveCancel context.CancelFunc
	defer func() {
		if resolveCancel != nil {
			resolveCancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("[monitor] stopped")
			return
		case <-ticker.C:
			go s.monitorTick(ctx)
		case phase := <-s.machine.PhaseChanges():
			// The resolve poll exists exactly while the session is in
			// Warning. Any transition out of Warning cancels it, whichever
			// path caused the transition.
			if phase == session.Warning && resolveCancel == nil {
				resolveCtx, cancel := context.WithCancel(ctx)
				resolveCancel = cancel
				go s.resolveLoop(resolveCtx)
			} else if phase != session.Warning && resolveCancel != nil {
				resolveCancel()
				resolveCancel = nil
			}
		}
	}
}

// monitorTick runs one steady-state check. No-ops unless the session is
// active without a showing warning, and skips entirely when the previous
// monitor tick has not finished.
func (s *Scheduler) monitorTick(ctx context.Context) {
	if !s.monitorBusy.CompareAndSwap(false, true) {
		log.Println("[monitor] poll still running, skipping tick")
		return
	}
	defer s.monitorBusy.Store(false)

	state := s.machine.Snapshot()
	if state.Phase != session.Active || state.ShowingWarning {
		return
	}

	report := policy.Evaluate(s.prober.Check(ctx))
	if !report.Clean() {
		log.Printf("[monitor] violation: %s", report.Headline())
	}
	s.machine.Submit(session.Event{Type: session.EventTickReport, Report: &report})
}

func (s *Scheduler) resolveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.resolveInterval())
	defer ticker.Stop()

	log.Println("[monitor] resolve poll started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[monitor] resolve poll stopped")
			return
		case <-ticker.C:
			s.resolveTick(ctx)
		}
	}
}

// resolveTick runs one in-warning check. Skipped when the previous resolve
// tick has not finished or the session has already left Warning.
func (s *Scheduler) resolveTick(ctx context.Context) {
	if !s.resolveBusy.CompareAndSwap(false, true) {
		log.Println("[monitor] resolve check still running, skipping tick")
		return
	}
	defer s.resolveBusy.Store(false)

	if s.machine.Snapshot().Phase != session.Warning {
		return
	}

	report := policy.Evaluate(s.prober.Check(ctx))
	if report.Clean() {
		log.Println("[monitor] violation resolved")
	}
	s.machine.Submit(session.Event{Type: session.EventResolveReport, Report: &report})
}
