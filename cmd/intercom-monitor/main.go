// Command intercom-monitor times pulses on the intercom signal line and
// streams its diagnostic log to a single telnet client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sweeney/intercom-monitor/internal/config"
	"github.com/sweeney/intercom-monitor/internal/gpio"
	"github.com/sweeney/intercom-monitor/internal/mqtt"
	"github.com/sweeney/intercom-monitor/internal/pulse"
	"github.com/sweeney/intercom-monitor/internal/relay"
	"github.com/sweeney/intercom-monitor/internal/status"
	"github.com/sweeney/intercom-monitor/internal/telnet"
	"github.com/sweeney/intercom-monitor/internal/web"
)

func main() {
	cfg, printState, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// deps are the collaborators serve needs; tests substitute fakes.
type deps struct {
	reader    gpio.Reader
	clock     pulse.Clock
	tick      <-chan time.Time
	console   io.Writer
	publisher mqtt.Publisher // nil disables MQTT
}

func run(cfg config.Config, printState bool) error {
	reader, err := gpio.NewRealReader(cfg.Chip, cfg.Pin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	if printState {
		level, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("%s line %d: %s (%s)\n", cfg.Chip, cfg.Pin, level, lineState(level))
		return nil
	}

	d := deps{
		reader:  reader,
		clock:   pulse.MonotonicClock(),
		console: os.Stderr,
	}
	if cfg.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID)
		defer p.Close()
		d.publisher = p
	}

	ticker := time.NewTicker(cfg.Sample)
	defer ticker.Stop()
	d.tick = ticker.C

	// Never cancelled: the daemon runs until power-off.
	return serve(context.Background(), cfg, d)
}

// serve wires the relay, transport, status outputs and pulse monitor, then
// runs the monitor until ctx is done.
func serve(ctx context.Context, cfg config.Config, d deps) error {
	srv := telnet.New()
	relay.New(d.console, srv).Install(cfg.Tag)

	tracker := newTracker(cfg)
	tracker.SetTelnet(srv)

	go runTransport(ctx, srv, cfg.TelnetAddr())

	var publisher pulse.Publisher
	if d.publisher != nil {
		if cs, ok := d.publisher.(mqtt.ConnectionStatus); ok {
			tracker.SetMQTT(cs)
		}
		publishStartup(d.publisher, tracker)
		publisher = d.publisher
	}

	if cfg.HTTPAddr != "" {
		hs := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer hs.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: chip=%s pin=%d sample=%v port=%d broker=%q",
		cfg.Chip, cfg.Pin, cfg.Sample, cfg.Port, cfg.Broker)

	m := pulse.NewMonitor(d.reader, d.clock, time.Now, publisher, tracker)
	return m.Run(ctx, d.tick)
}

// runTransport binds and serves the telnet port. A bind failure stops the
// transport for good; the rest of the daemon keeps running.
func runTransport(ctx context.Context, srv *telnet.Server, addr string) {
	if err := srv.Listen(addr); err != nil {
		log.Printf("telnet: %v; remote log disabled", err)
		return
	}
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("telnet: %v", err)
	}
}

func newTracker(cfg config.Config) *status.Tracker {
	return status.NewTracker(time.Now(), status.Config{
		Chip:       cfg.Chip,
		Pin:        cfg.Pin,
		SampleMs:   cfg.Sample.Milliseconds(),
		TelnetPort: cfg.Port,
		Broker:     cfg.Broker,
		HTTPAddr:   cfg.HTTPAddr,
	})
}

func publishStartup(p mqtt.Publisher, tracker *status.Tracker) {
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP"),
	}
	if err := p.PublishSystem(event); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}
}

func lineState(l gpio.Level) string {
	if l == pulse.ActiveLevel {
		return "ACTIVE"
	}
	return "IDLE"
}
