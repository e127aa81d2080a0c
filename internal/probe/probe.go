// Package probe queries the host environment for the conditions the exam
// integrity policy cares about: attached displays, the video-conferencing
// app and its camera, short-range radio power, and external USB peripherals.
//
// The OS diagnostics are shell commands with heuristic text output, so each
// probe is split into a runner (executes the command) and a pure parser that
// can be unit-tested against captured output. A probe never returns an error
// to its caller: every command failure degrades to that probe's fail-safe
// default.
package probe

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/exam-sentinel/backend/internal/config"
)

// DisplayResult reports the number of attached display surfaces.
type DisplayResult struct {
	Count int `json:"count"`
}

// ConferenceResult reports the state of the video-conferencing app.
// CameraActive and ScreenSharing are meaningful only when Running is true.
type ConferenceResult struct {
	Running       bool `json:"running"`
	CameraActive  bool `json:"cameraActive"`
	ScreenSharing bool `json:"screenSharing"`
}

// RadioResult reports whether the short-range radio is powered on.
type RadioResult struct {
	Enabled bool `json:"enabled"`
}

// PeripheralResult reports the number of external USB devices attached.
type PeripheralResult struct {
	Count int `json:"count"`
}

// Snapshot is one complete set of probe results. Snapshots are stateless
// values recomputed on every poll; nothing persists across ticks.
type Snapshot struct {
	Display    DisplayResult    `json:"display"`
	Conference ConferenceResult `json:"conference"`
	Radio      RadioResult      `json:"radio"`
	Peripheral PeripheralResult `json:"peripheral"`
	TakenAt    time.Time        `json:"takenAt"`
}

// Prober produces environment snapshots. Implemented by HostProber for the
// real host and by fakes in tests.
type Prober interface {
	Check(ctx context.Context) Snapshot
}

// runner executes a diagnostic command and returns its combined stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// HostProber checks the real host. The command runner and process lister are
// injectable so parsers and classification logic run in tests without
// touching the OS.
type HostProber struct {
	mu        sync.RWMutex
	cfg       config.ProbeConfig
	run       runner
	listProcs processLister
}

func NewHostProber(cfg config.ProbeConfig) *HostProber {
	return &HostProber{
		cfg:       cfg,
		run:       execRunner,
		listProcs: systemProcessList,
	}
}

// SetConfig swaps the probe configuration. Takes effect on the next Check.
func (p *HostProber) SetConfig(cfg config.ProbeConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Check runs all four probes concurrently and returns when every one has
// finished, so a tick either sees a complete snapshot or none at all. One
// slow command delays the snapshot but never serializes the other three.
func (p *HostProber) Check(ctx context.Context) Snapshot {
	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()

	var snap Snapshot
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		snap.Display = p.checkDisplay(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.Conference = p.checkConference(ctx, cfg)
	}()
	go func() {
		defer wg.Done()
		snap.Radio = p.checkRadio(ctx)
	}()
	go func() {
		defer wg.Done()
		snap.Peripheral = p.checkPeripheral(ctx)
	}()
	wg.Wait()

	snap.TakenAt = time.Now()
	return snap
}
