// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/intercom-monitor/internal/pulse"
)

// Topic is the MQTT topic for line events.
const Topic = "intercom/pulse/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "intercom/pulse/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a line event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event pulse.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (STARTUP, OFFLINE).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the JSON body of a line event.
type Payload struct {
	Intercom IntercomPayload `json:"intercom"`
}

// IntercomPayload contains the line event details.
type IntercomPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Level     int     `json:"level"`
	WidthMs   *uint64 `json:"width_ms,omitempty"`
}

// FormatPayload creates the JSON payload for a line event.
func FormatPayload(event pulse.Event) ([]byte, error) {
	p := IntercomPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(event.Type),
	}
	if event.Level {
		p.Level = 1
	}
	if event.Type == pulse.EventPulseWidth {
		w := event.WidthMs
		p.WidthMs = &w
	}
	return json.Marshal(Payload{Intercom: p})
}

// SystemPayload is the JSON body of simple system events that carry no
// status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{Event: event.Event}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}
