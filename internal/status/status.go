// Package status provides a thread-safe status tracker for the
// intercom-monitor daemon. It is read by the HTTP handlers and the MQTT
// startup event.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/intercom-monitor/internal/gpio"
	"github.com/sweeney/intercom-monitor/internal/pulse"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip       string
	Pin        int
	SampleMs   int64
	TelnetPort int
	Broker     string
	HTTPAddr   string
}

// Attacher reports whether a remote log viewer is connected.
type Attacher interface {
	Attached() bool
}

// Connector reports whether the MQTT connection is up.
type Connector interface {
	IsConnected() bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Level         gpio.Level
	Sampled       bool
	Counts        pulse.Counts
	LastWidthMs   uint64
	LastPulseAt   time.Time
	StartTime     time.Time
	Now           time.Time
	Client        bool
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	now    func() time.Time
	telnet Attacher
	mqtt   Connector
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		now: time.Now,
		snap: Snapshot{
			Level:     pulse.IdleLevel,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Observe records the detector state after a sample. It satisfies
// pulse.Observer.
func (t *Tracker) Observe(level gpio.Level, counts pulse.Counts, lastWidth uint64) {
	now := t.now()
	t.mu.Lock()
	if counts.Pulses != t.snap.Counts.Pulses {
		t.snap.LastPulseAt = now
	}
	t.snap.Level = level
	t.snap.Sampled = true
	t.snap.Counts = counts
	t.snap.LastWidthMs = lastWidth
	t.mu.Unlock()
}

// SetTelnet sets the source of the remote viewer state.
func (t *Tracker) SetTelnet(a Attacher) {
	t.mu.Lock()
	t.telnet = a
	t.mu.Unlock()
}

// SetMQTT sets the source of the MQTT connection state.
func (t *Tracker) SetMQTT(c Connector) {
	t.mu.Lock()
	t.mqtt = c
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	telnet, mqtt := t.telnet, t.mqtt
	t.mu.RUnlock()

	if telnet != nil {
		s.Client = telnet.Attached()
	}
	if mqtt != nil {
		s.MQTTConnected = mqtt.IsConnected()
	}
	s.Now = t.now()
	return s
}
