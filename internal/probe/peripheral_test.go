package probe

import (
	"context"
	"errors"
	"testing"
)

const usbDumpMixed = `USB:

    USB 3.1 Bus:

        Apple Internal Keyboard / Trackpad:

          Product ID: 0x027e
          Vendor ID: 0x05ac (Apple Inc.)
          Location ID: 0x80100000

        SanDisk USB Drive:

          Product ID: 0x5591
          Vendor ID: 0x0781
          Speed: Up to 5 Gb/s
`

func TestParseExternalPeripheralsMixed(t *testing.T) {
	external := parseExternalPeripherals(usbDumpMixed)
	if len(external) != 1 {
		t.Fatalf("got %d external devices %v, want 1", len(external), external)
	}
	if external[0] != "SanDisk USB Drive" {
		t.Errorf("external[0] = %q, want %q", external[0], "SanDisk USB Drive")
	}
}

func TestParseExternalPeripheralsLastEntryAttributed(t *testing.T) {
	// The final entry has no trailing boundary marker; it must still count.
	dump := `USB:

    USB 3.1 Bus:

        USB3.1 Hub:

          Product ID: 0x2817

        Logitech Webcam External:

          Product ID: 0x085c`

	external := parseExternalPeripherals(dump)
	// "camera" token does not match "Webcam"; the entry is external.
	if len(external) != 1 || external[0] != "Logitech Webcam External" {
		t.Fatalf("got %v, want the trailing Logitech entry", external)
	}
}

func TestParseExternalPeripheralsInternalDenylist(t *testing.T) {
	tests := []struct {
		name     string
		internal bool
	}{
		{"Apple Internal Keyboard / Trackpad", true},
		{"USB3.1 Hub", true},
		{"Bluetooth USB Host Controller", true},
		{"FaceTime HD Camera (Built-in)", true},
		{"Ambient Light Sensor", true},
		{"Internal Memory Card Reader", true},
		{"XHCI Root Hub USB 2.0", true},
		{"Touch Bar Display Controller", true},
		{"SanDisk Cruzer", false},
		{"Generic Flash Disk", false},
		{"WD My Passport 25E1", false},
	}

	for _, tt := range tests {
		if got := isInternalDevice(tt.name); got != tt.internal {
			t.Errorf("isInternalDevice(%q) = %v, want %v", tt.name, got, tt.internal)
		}
	}
}

func TestParseExternalPeripheralsEmpty(t *testing.T) {
	for _, output := range []string{"", "USB:\n", "USB:\n\n    USB 3.1 Bus:\n\n      Host Controller Driver: AppleT8103USBXHCI\n"} {
		if external := parseExternalPeripherals(output); len(external) != 0 {
			t.Errorf("parseExternalPeripherals(%q) = %v, want none", output, external)
		}
	}
}

func TestParseExternalPeripheralsIgnoresSubAttributes(t *testing.T) {
	// Attribute blocks indented deeper than the entry level must not be
	// mistaken for devices, even when they end with a colon.
	dump := `USB:

    USB 3.1 Bus:

        SanDisk USB Drive:

          Media:

            SanDisk USB Drive Media:

              Volumes:
`
	external := parseExternalPeripherals(dump)
	if len(external) != 1 || external[0] != "SanDisk USB Drive" {
		t.Fatalf("got %v, want only the drive entry", external)
	}
}

func TestCheckPeripheralCommandFailure(t *testing.T) {
	p := NewHostProber(testProbeConfig())
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("command not found")
	}

	res := p.checkPeripheral(context.Background())
	if res.Count != 0 {
		t.Errorf("Count = %d after command failure, want 0", res.Count)
	}
}
