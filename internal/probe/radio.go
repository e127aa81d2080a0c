package probe

import (
	"context"
	"log"
	"strings"
)

// checkRadio reports whether the short-range radio is powered on, from the
// platform hardware-profile dump.
//
// A failed query reports Enabled=false — "cannot confirm enabled". The
// violation being detected is a powered radio, so the candidate gets the
// benefit of the doubt here. Note the opposite polarity from the camera
// probe, which treats ambiguity as a violation.
func (p *HostProber) checkRadio(ctx context.Context) RadioResult {
	out, err := p.run(ctx, "system_profiler", "SPBluetoothDataType")
	if err != nil {
		log.Printf("[radio] hardware profile query failed: %v", err)
		return RadioResult{}
	}
	return RadioResult{Enabled: parseRadioPower(string(out))}
}

// parseRadioPower finds the power/state line in a hardware-profile dump and
// classifies the radio as on only if the line's value contains "on",
// case-insensitively. The first matching line decides.
func parseRadioPower(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "state:") &&
			!strings.HasPrefix(lower, "bluetooth power:") &&
			!strings.HasPrefix(lower, "power:") {
			continue
		}
		_, value, ok := strings.Cut(trimmed, ":")
		return ok && strings.Contains(strings.ToLower(value), "on")
	}
	return false
}
