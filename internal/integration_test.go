package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sweeney/intercom-monitor/internal/gpio"
	"github.com/sweeney/intercom-monitor/internal/mqtt"
	"github.com/sweeney/intercom-monitor/internal/pulse"
	"github.com/sweeney/intercom-monitor/internal/status"
)

// signal describes the line as a function of milliseconds since boot.
type signal func(ms int) gpio.Level

// sampleSignal turns a signal into the 10ms samples the monitor would see.
func sampleSignal(s signal, totalMs int) []gpio.Level {
	var out []gpio.Level
	for ms := 0; ms <= totalMs; ms += 10 {
		out = append(out, s(ms))
	}
	return out
}

// runFlow drives a Monitor over samples with a clock that advances exactly
// one tick per sample, starting at startUs.
func runFlow(t *testing.T, samples []gpio.Level, startUs pulse.Micros) (*mqtt.FakePublisher, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	n := 0
	clock := func() pulse.Micros { return startUs + pulse.Micros(n*10_000) }
	now := func() time.Time { return start.Add(time.Duration(n) * 10 * time.Millisecond) }

	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(start, status.Config{Pin: 6, SampleMs: 10})
	m := pulse.NewMonitor(gpio.NewFakeReader(samples), clock, now, pub, tracker)

	for n = 0; n < len(samples); n++ {
		m.Sample()
	}
	return pub, tracker
}

func widths(events []pulse.Event) []uint64 {
	var out []uint64
	for _, e := range events {
		if e.Type == pulse.EventPulseWidth {
			out = append(out, e.WidthMs)
		}
	}
	return out
}

// TestIntegrationDoorbellRing follows a typical ring: a short call pulse,
// a pause, and a long press.
func TestIntegrationDoorbellRing(t *testing.T) {
	ring := func(ms int) gpio.Level {
		switch {
		case ms >= 1000 && ms < 1350:
			return gpio.LevelLow
		case ms >= 2000 && ms < 3200:
			return gpio.LevelLow
		}
		return gpio.LevelHigh
	}

	pub, tracker := runFlow(t, sampleSignal(ring, 4000), 0)

	if len(pub.Events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(pub.Events))
	}
	got := widths(pub.Events)
	if len(got) != 2 || got[0] != 350 || got[1] != 1200 {
		t.Errorf("widths: got %v, want [350 1200]", got)
	}

	var p mqtt.Payload
	if err := json.Unmarshal(pub.Payloads[2], &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Intercom.Event != "PULSE_WIDTH" || p.Intercom.WidthMs == nil || *p.Intercom.WidthMs != 350 {
		t.Errorf("unexpected payload %s", pub.Payloads[2])
	}

	snap := tracker.Snapshot()
	if snap.Counts.Pulses != 2 || snap.Counts.StateChanges != 4 {
		t.Errorf("tracker counts: %+v", snap.Counts)
	}
	if snap.LastWidthMs != 1200 {
		t.Errorf("tracker last width: got %d, want 1200", snap.LastWidthMs)
	}
	if status.LineState(snap) != "IDLE" {
		t.Errorf("tracker line: got %s", status.LineState(snap))
	}
}

// TestIntegrationCounterWrap starts the microsecond counter just before it
// wraps so the pulse straddles zero.
func TestIntegrationCounterWrap(t *testing.T) {
	line := func(ms int) gpio.Level {
		if ms >= 100 && ms < 450 {
			return gpio.LevelLow
		}
		return gpio.LevelHigh
	}

	pub, _ := runFlow(t, sampleSignal(line, 600), ^pulse.Micros(0)-200_000)

	got := widths(pub.Events)
	if len(got) != 1 || got[0] != 350 {
		t.Errorf("widths across wrap: got %v, want [350]", got)
	}
}

// TestIntegrationLineLowAtBoot treats a line that is already active at boot
// as a pulse starting at the first sample.
func TestIntegrationLineLowAtBoot(t *testing.T) {
	line := func(ms int) gpio.Level {
		if ms < 200 {
			return gpio.LevelLow
		}
		return gpio.LevelHigh
	}

	pub, _ := runFlow(t, sampleSignal(line, 300), 0)

	if pub.Events[0].Type != pulse.EventStateChanged || pub.Events[0].Level != gpio.LevelLow {
		t.Errorf("first event: got %+v", pub.Events[0])
	}
	if got := widths(pub.Events); len(got) != 1 || got[0] != 200 {
		t.Errorf("widths: got %v, want [200]", got)
	}
}

// TestIntegrationGlitchBelowResolution shows a 5ms glitch between two
// samples is not seen at all.
func TestIntegrationGlitchBelowResolution(t *testing.T) {
	line := func(ms int) gpio.Level {
		if ms >= 502 && ms < 507 {
			return gpio.LevelLow
		}
		return gpio.LevelHigh
	}

	pub, tracker := runFlow(t, sampleSignal(line, 1000), 0)

	if len(pub.Events) != 0 {
		t.Errorf("expected glitch to be invisible, got %d events", len(pub.Events))
	}
	if tracker.Snapshot().Counts.StateChanges != 0 {
		t.Error("tracker should see no state changes")
	}
}
