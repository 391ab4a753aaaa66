package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/intercom-monitor/internal/pulse"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Line          string     `json:"line"`
	Level         int        `json:"level"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Pulses        PulsesJSON `json:"pulses"`
	Telnet        TelnetJSON `json:"telnet"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// PulsesJSON summarises detector output.
type PulsesJSON struct {
	Count        int    `json:"count"`
	StateChanges int    `json:"state_changes"`
	LastWidthMs  uint64 `json:"last_width_ms"`
	LastAt       string `json:"last_at,omitempty"`
}

// TelnetJSON reports the remote viewer.
type TelnetJSON struct {
	Port   int  `json:"port"`
	Client bool `json:"client"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip     string `json:"chip"`
	Pin      int    `json:"pin"`
	SampleMs int64  `json:"sample_ms"`
	HTTPAddr string `json:"http_addr"`
}

// LineState names the line level for display: ACTIVE, IDLE, or UNKNOWN
// before the first sample.
func LineState(snap Snapshot) string {
	switch {
	case !snap.Sampled:
		return "UNKNOWN"
	case snap.Level == pulse.ActiveLevel:
		return "ACTIVE"
	default:
		return "IDLE"
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Line:          LineState(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Pulses: PulsesJSON{
			Count:        snap.Counts.Pulses,
			StateChanges: snap.Counts.StateChanges,
			LastWidthMs:  snap.LastWidthMs,
		},
		Telnet: TelnetJSON{Port: snap.Config.TelnetPort, Client: snap.Client},
		MQTT:   MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Chip:     snap.Config.Chip,
			Pin:      snap.Config.Pin,
			SampleMs: snap.Config.SampleMs,
			HTTPAddr: snap.Config.HTTPAddr,
		},
	}
	if snap.Level {
		inner.Level = 1
	}
	if !snap.LastPulseAt.IsZero() {
		inner.Pulses.LastAt = snap.LastPulseAt.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
