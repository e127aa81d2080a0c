package probe

import (
	"context"
	"log"
	"strings"
)

// deviceIndent is the indentation at which a new device entry begins in the
// inventory dump. Sub-attributes of an entry are indented deeper; bus and
// section headers sit shallower and are ignored.
const deviceIndent = 8

// internalDeviceTokens classify an inventory entry as part of the machine
// itself rather than an attached peripheral. Matched against the lower-cased
// entry name by substring.
var internalDeviceTokens = []string{
	"hub",
	"internal",
	"built-in",
	"bluetooth",
	"apple",
	"host controller",
	"root hub",
	"bus",
	"keyboard",
	"trackpad",
	"mouse",
	"camera",
	"facetime",
	"ambient light",
	"controller",
	"sensor",
	"card reader",
	"ir receiver",
}

// checkPeripheral counts external USB devices from the platform device
// inventory. A failed query reports zero: an unreadable inventory cannot
// confirm an attached peripheral.
func (p *HostProber) checkPeripheral(ctx context.Context) PeripheralResult {
	out, err := p.run(ctx, "system_profiler", "SPUSBDataType")
	if err != nil {
		log.Printf("[peripheral] device inventory query failed: %v", err)
		return PeripheralResult{}
	}
	return PeripheralResult{Count: len(parseExternalPeripherals(string(out)))}
}

// parseExternalPeripherals extracts external device names from an indented
// device-inventory dump. A device entry is a name line ending in ":" at
// deviceIndent; everything indented deeper belongs to the preceding entry.
// Entries whose lower-cased name contains an internal-device token are
// excluded. The last entry in the dump has no trailing boundary marker and
// is attributed like any other. Empty or device-free output yields nil.
func parseExternalPeripherals(output string) []string {
	var external []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !strings.HasSuffix(trimmed, ":") {
			continue
		}
		if indentOf(line) != deviceIndent {
			continue
		}
		name := strings.TrimSuffix(trimmed, ":")
		if name == "" || isInternalDevice(name) {
			continue
		}
		external = append(external, name)
	}
	return external
}

func indentOf(line string) int {
	indent := 0
	for _, r := range line {
		switch r {
		case ' ':
			indent++
		case '\t':
			indent += deviceIndent
		default:
			return indent
		}
	}
	return indent
}

func isInternalDevice(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range internalDeviceTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
