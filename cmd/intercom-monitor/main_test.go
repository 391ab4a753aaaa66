package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/intercom-monitor/internal/config"
	"github.com/sweeney/intercom-monitor/internal/gpio"
	"github.com/sweeney/intercom-monitor/internal/mqtt"
	"github.com/sweeney/intercom-monitor/internal/pulse"
	"github.com/sweeney/intercom-monitor/internal/telnet"
)

// syncBuffer collects console output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// restoreLog undoes relay.Install at the end of the test.
func restoreLog(t *testing.T) {
	t.Helper()
	flags, prefix := log.Flags(), log.Prefix()
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
		log.SetPrefix(prefix)
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func dialRetry(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", addr, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// readUntil reads lines from r until one contains want.
func readUntil(t *testing.T, conn net.Conn, r *bufio.Reader, want string) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if strings.Contains(line, want) {
			return line
		}
	}
}

// stepClock advances 10ms per sample, matching the default tick.
func stepClock() pulse.Clock {
	var n pulse.Micros
	return func() pulse.Micros {
		v := n
		n += 10_000
		return v
	}
}

func TestServeStreamsPulsesToTelnetClient(t *testing.T) {
	restoreLog(t)

	// Initial state read, then 35 low samples and back to high: a 350ms pulse.
	samples := []gpio.Level{gpio.LevelHigh}
	for i := 0; i < 35; i++ {
		samples = append(samples, gpio.LevelLow)
	}
	samples = append(samples, gpio.LevelHigh)

	cfg := config.Default()
	cfg.Port = freePort(t)
	tick := make(chan time.Time)
	console := &syncBuffer{}
	pub := mqtt.NewFakePublisher()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, deps{
			reader:    gpio.NewFakeReader(samples),
			clock:     stepClock(),
			tick:      tick,
			console:   console,
			publisher: pub,
		})
	}()

	conn := dialRetry(t, fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	r := bufio.NewReader(conn)
	readUntil(t, conn, r, "client connected")

	for i := 0; i < len(samples)-1; i++ {
		tick <- time.Time{}
	}

	readUntil(t, conn, r, "intercom: state changed 0")
	readUntil(t, conn, r, "intercom: state changed 1")
	readUntil(t, conn, r, "intercom: pulse width: 350 ms")

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("serve: expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	if !strings.Contains(console.String(), "intercom: pulse width: 350 ms") {
		t.Error("console should carry the same log lines as the client")
	}

	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "STARTUP" {
		t.Errorf("expected one STARTUP system event, got %+v", pub.SystemEvents)
	}
	if len(pub.Events) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(pub.Events))
	}
	if pub.Events[2].Type != pulse.EventPulseWidth || pub.Events[2].WidthMs != 350 {
		t.Errorf("unexpected last event: %+v", pub.Events[2])
	}
}

func TestServeWithoutClientStillLogsToConsole(t *testing.T) {
	restoreLog(t)

	cfg := config.Default()
	cfg.Port = freePort(t)
	tick := make(chan time.Time)
	console := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, deps{
			reader:  gpio.NewFakeReader([]gpio.Level{gpio.LevelHigh, gpio.LevelLow}),
			clock:   stepClock(),
			tick:    tick,
			console: console,
		})
	}()

	tick <- time.Time{}
	cancel()
	<-done

	if !strings.Contains(console.String(), "state changed 0") {
		t.Errorf("console missing transition: %q", console.String())
	}
}

func TestTransportBindFailureIsFinal(t *testing.T) {
	restoreLog(t)
	var buf syncBuffer
	log.SetOutput(&buf)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := telnet.New()
	returned := make(chan struct{})
	go func() {
		runTransport(context.Background(), srv, ln.Addr().String())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("runTransport should return after a bind failure")
	}
	if !strings.Contains(buf.String(), "remote log disabled") {
		t.Errorf("expected bind failure to be logged, got %q", buf.String())
	}
	// Sending into a dead transport is still safe.
	srv.Send([]byte("x\n"))
}

func TestPublishStartupFailureIsLogged(t *testing.T) {
	restoreLog(t)
	var buf syncBuffer
	log.SetOutput(&buf)

	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")
	cfg := config.Default()
	tracker := newTracker(cfg)

	publishStartup(pub, tracker)

	if !strings.Contains(buf.String(), "failed to publish startup event: broker down") {
		t.Errorf("unexpected log %q", buf.String())
	}
}

func TestLineState(t *testing.T) {
	if lineState(gpio.LevelLow) != "ACTIVE" {
		t.Error("low should be ACTIVE")
	}
	if lineState(gpio.LevelHigh) != "IDLE" {
		t.Error("high should be IDLE")
	}
}
