package pulse

import "github.com/sweeney/intercom-monitor/internal/gpio"

// Detector turns line samples into state change and pulse width events.
// Not safe for concurrent use.
type Detector struct {
	last       gpio.Level
	pulseStart Micros
	inPulse    bool

	counts    Counts
	lastWidth uint64
}

// NewDetector returns a detector in the idle state, whatever the line is
// actually doing.
func NewDetector() *Detector {
	return &Detector{last: IdleLevel}
}

// Process takes a new sample and returns the events it produced, if any.
// A transition always yields STATE_CHANGED; a return to idle after a
// recorded pulse start also yields PULSE_WIDTH.
func (d *Detector) Process(in Input) []Event {
	if in.Level == d.last {
		return nil
	}

	events := []Event{{
		Timestamp: in.Time,
		Type:      EventStateChanged,
		Level:     in.Level,
	}}
	d.counts.StateChanges++

	if in.Level == ActiveLevel {
		d.pulseStart = in.At
		d.inPulse = true
	} else if d.inPulse {
		width := in.At.Since(d.pulseStart).Millis()
		events = append(events, Event{
			Timestamp: in.Time,
			Type:      EventPulseWidth,
			Level:     in.Level,
			WidthMs:   width,
		})
		d.inPulse = false
		d.lastWidth = width
		d.counts.Pulses++
	}

	d.last = in.Level
	return events
}

// Level returns the last recorded line level.
func (d *Detector) Level() gpio.Level {
	return d.last
}

// InPulse reports whether a pulse start has been seen without its end.
func (d *Detector) InPulse() bool {
	return d.inPulse
}

// Counts returns event counts since startup.
func (d *Detector) Counts() Counts {
	return d.counts
}

// LastWidth returns the most recent pulse width in milliseconds, 0 if none.
func (d *Detector) LastWidth() uint64 {
	return d.lastWidth
}
