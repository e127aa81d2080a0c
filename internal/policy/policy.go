// Package policy turns a probe snapshot into the ordered list of integrity
// violations it implies. Evaluation is pure: the same snapshot always yields
// the same violations and headline.
package policy

import (
	"encoding/json"

	"github.com/exam-sentinel/backend/internal/probe"
)

type ViolationKind int

// Violation kinds in headline priority order. When several conditions hold
// at once the first one in this order is the headline shown to the
// candidate. The ordering is a fixed policy decision.
const (
	MultiDisplay ViolationKind = iota
	ConferenceAppNotRunning
	CameraInactive
	RadioEnabled
	PeripheralAttached
)

var kindNames = map[ViolationKind]string{
	MultiDisplay:            "multi_display",
	ConferenceAppNotRunning: "conference_app_not_running",
	CameraInactive:          "camera_inactive",
	RadioEnabled:            "radio_enabled",
	PeripheralAttached:      "peripheral_attached",
}

var kindFromName = map[string]ViolationKind{
	"multi_display":              MultiDisplay,
	"conference_app_not_running": ConferenceAppNotRunning,
	"camera_inactive":            CameraInactive,
	"radio_enabled":              RadioEnabled,
	"peripheral_attached":        PeripheralAttached,
}

func (k ViolationKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k ViolationKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ViolationKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := kindFromName[s]; ok {
		*k = v
	}
	return nil
}

// Violation is one detected policy breach. Produced fresh each evaluation,
// never mutated.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
}

// Report is the outcome of evaluating one snapshot. Violations are ordered
// by headline priority.
type Report struct {
	Violations []Violation    `json:"violations,omitempty"`
	Snapshot   probe.Snapshot `json:"snapshot"`
}

// Clean reports whether the snapshot satisfied every invariant.
func (r Report) Clean() bool {
	return len(r.Violations) == 0
}

// Headline returns the highest-priority violation message, or "" when clean.
func (r Report) Headline() string {
	if len(r.Violations) == 0 {
		return ""
	}
	return r.Violations[0].Message
}

// Evaluate classifies a probe snapshot against the integrity policy.
func Evaluate(snap probe.Snapshot) Report {
	var violations []Violation

	if snap.Display.Count > 1 {
		violations = append(violations, Violation{
			Kind:    MultiDisplay,
			Message: "Multiple displays detected. Disconnect all external displays to continue.",
		})
	}
	if !snap.Conference.Running {
		violations = append(violations, Violation{
			Kind:    ConferenceAppNotRunning,
			Message: "The video conferencing app is not running. Rejoin the proctoring call.",
		})
	}
	if snap.Conference.Running && !snap.Conference.CameraActive {
		violations = append(violations, Violation{
			Kind:    CameraInactive,
			Message: "Your camera is off. Turn the camera on in the proctoring call.",
		})
	}
	if snap.Radio.Enabled {
		violations = append(violations, Violation{
			Kind:    RadioEnabled,
			Message: "Bluetooth is enabled. Turn Bluetooth off to continue.",
		})
	}
	if snap.Peripheral.Count > 0 {
		violations = append(violations, Violation{
			Kind:    PeripheralAttached,
			Message: "An external USB device is attached. Disconnect all USB devices to continue.",
		})
	}

	return Report{Violations: violations, Snapshot: snap}
}
