// Package pulse contains the edge detection and pulse timing logic for the
// intercom line. Detector is pure: time is always injected through Input.
package pulse

import (
	"time"

	"github.com/sweeney/intercom-monitor/internal/gpio"
)

// ActiveLevel is the level the intercom line is pulled to while a pulse is
// in progress.
const ActiveLevel = gpio.LevelLow

// IdleLevel is the level assumed before the first sample.
const IdleLevel = gpio.LevelHigh

// DefaultInterval is the sampling period. Transitions shorter than this are
// aliased and may not be observed at all.
const DefaultInterval = 10 * time.Millisecond

// EventType identifies what the detector observed.
type EventType string

const (
	EventStateChanged EventType = "STATE_CHANGED"
	EventPulseWidth   EventType = "PULSE_WIDTH"
)

// Event is a single detector output.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Level     gpio.Level
	// WidthMs is set for EventPulseWidth only.
	WidthMs uint64
}

// Input is one sample of the line.
type Input struct {
	Level gpio.Level
	// At is the monotonic microsecond counter at sample time; pulse widths
	// are derived from it.
	At Micros
	// Time is the wall-clock stamp attached to emitted events.
	Time time.Time
}

// Counts tracks detector output since startup.
type Counts struct {
	StateChanges int
	Pulses       int
}
