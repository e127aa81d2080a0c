package probe

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/exam-sentinel/backend/internal/config"
	"github.com/shirou/gopsutil/v3/process"
)

// procEntry is one row of the running-process table.
type procEntry struct {
	pid  int32
	name string
}

// processLister returns the running-process table. Injectable for tests.
type processLister func(ctx context.Context) ([]procEntry, error)

func systemProcessList(ctx context.Context) ([]procEntry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	entries := make([]procEntry, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue // process exited mid-scan
		}
		entries = append(entries, procEntry{pid: proc.Pid, name: name})
	}
	return entries, nil
}

// windowCompositorTokens mark open file handles that reference the display
// server. The conferencing process holding one while no capture helper runs
// still counts as screen sharing.
var windowCompositorTokens = []string{"windowserver", "skylight"}

// checkConference determines whether the conferencing app is running and, if
// so, whether its camera is streaming and whether the screen is being shared.
//
// The camera check fails closed: a missing streaming flag or a failed
// registry dump counts as camera OFF. The policy wants proof the camera is
// on, so ambiguity is itself a violation.
func (p *HostProber) checkConference(ctx context.Context, cfg config.ProbeConfig) ConferenceResult {
	procs, err := p.listProcs(ctx)
	if err != nil {
		log.Printf("[conference] process table unavailable: %v", err)
		return ConferenceResult{}
	}

	main, running := matchProcess(procs, cfg.ConferenceProcessNames)
	if !running {
		return ConferenceResult{}
	}

	res := ConferenceResult{Running: true}

	if out, err := p.run(ctx, "ioreg", "-l"); err != nil {
		log.Printf("[conference] registry dump failed, treating camera as off: %v", err)
	} else {
		res.CameraActive = parseCameraActive(string(out), cfg.CameraActiveKey)
	}

	if _, ok := matchProcess(procs, cfg.ScreenShareHelperNames); ok {
		res.ScreenSharing = true
	} else if out, err := p.run(ctx, "lsof", "-p", fmt.Sprint(main.pid)); err == nil {
		res.ScreenSharing = holdsCompositorHandle(string(out))
	}

	return res
}

// matchProcess returns the first process whose name matches one of the
// wanted names, case-insensitively, by exact or substring match.
func matchProcess(procs []procEntry, wanted []string) (procEntry, bool) {
	for _, proc := range procs {
		name := strings.ToLower(proc.name)
		for _, w := range wanted {
			w = strings.ToLower(w)
			if name == w || strings.Contains(name, w) {
				return proc, true
			}
		}
	}
	return procEntry{}, false
}

// parseCameraActive scans a hardware-registry dump for a line containing the
// camera-streaming key and reports whether its value is affirmative. No key,
// no affirmative value, or garbage all mean false.
func parseCameraActive(output, key string) bool {
	if key == "" {
		return false
	}
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, key) {
			continue
		}
		value := line
		if _, after, ok := strings.Cut(line, "="); ok {
			value = after
		} else if _, after, ok := strings.Cut(line, ":"); ok {
			value = after
		}
		return affirmative(value)
	}
	return false
}

func affirmative(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.Trim(value, `"'`)
	switch value {
	case "yes", "on", "true", "1", "active":
		return true
	}
	return false
}

// holdsCompositorHandle reports whether an open-files listing references a
// window-compositor resource.
func holdsCompositorHandle(output string) bool {
	lower := strings.ToLower(output)
	for _, token := range windowCompositorTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
