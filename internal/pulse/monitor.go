package pulse

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/intercom-monitor/internal/gpio"
)

// Publisher forwards events off the device. Errors are logged, never fatal.
type Publisher interface {
	Publish(event Event) error
}

// Observer receives the detector state after every sample.
type Observer interface {
	Observe(level gpio.Level, counts Counts, lastWidth uint64)
}

// Monitor samples the line on every tick and reports what the Detector sees.
type Monitor struct {
	reader    gpio.Reader
	clock     Clock
	now       func() time.Time
	detector  *Detector
	publisher Publisher
	observer  Observer
}

// NewMonitor creates a Monitor reading from r. publisher and observer may
// be nil.
func NewMonitor(r gpio.Reader, clock Clock, now func() time.Time, publisher Publisher, observer Observer) *Monitor {
	return &Monitor{
		reader:    r,
		clock:     clock,
		now:       now,
		detector:  NewDetector(),
		publisher: publisher,
		observer:  observer,
	}
}

// Detector exposes the underlying state machine.
func (m *Monitor) Detector() *Detector {
	return m.detector
}

// Run samples once per tick until ctx is done. In production ctx is never
// cancelled and Run does not return.
func (m *Monitor) Run(ctx context.Context, tick <-chan time.Time) error {
	log.Printf("started listening to intercom")
	if level, err := m.reader.Read(); err == nil {
		log.Printf("state %s", level)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			m.Sample()
		}
	}
}

// Sample takes one reading and handles the resulting events.
func (m *Monitor) Sample() []Event {
	level, err := m.reader.Read()
	if err != nil {
		log.Printf("gpio read error: %v", err)
		return nil
	}

	events := m.detector.Process(Input{
		Level: level,
		At:    m.clock(),
		Time:  m.now(),
	})

	for _, event := range events {
		switch event.Type {
		case EventStateChanged:
			log.Printf("state changed %s", event.Level)
		case EventPulseWidth:
			log.Printf("pulse width: %d ms", event.WidthMs)
		}
		if m.publisher != nil {
			if err := m.publisher.Publish(event); err != nil {
				log.Printf("publish error: %v", err)
			}
		}
	}

	if m.observer != nil {
		m.observer.Observe(m.detector.Level(), m.detector.Counts(), m.detector.LastWidth())
	}
	return events
}

// RunTicker runs m on a ticker with the given interval.
func RunTicker(ctx context.Context, m *Monitor, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	return m.Run(ctx, ticker.C)
}
