package probe

import (
	"context"
	"log"
	"strings"
)

// checkDisplay counts attached display surfaces via the platform display
// enumeration. A failed query reports a single display: the violation being
// detected is an extra display, so an unreadable enumeration cannot confirm
// one.
func (p *HostProber) checkDisplay(ctx context.Context) DisplayResult {
	out, err := p.run(ctx, "system_profiler", "SPDisplaysDataType")
	if err != nil {
		log.Printf("[display] enumeration failed: %v", err)
		return DisplayResult{Count: 1}
	}
	return DisplayResult{Count: parseDisplayCount(string(out))}
}

// parseDisplayCount counts display entries in an SPDisplaysDataType dump.
// Each attached display reports exactly one Resolution line. The machine
// always has at least one display, so an empty dump still counts as 1.
func parseDisplayCount(output string) int {
	count := 0
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "Resolution:") {
			count++
		}
	}
	if count < 1 {
		return 1
	}
	return count
}
