// Package relay fans diagnostic output out to the console and to the
// remote viewer.
package relay

import (
	"io"
	"log"
	"strings"
)

// Sender is a best-effort sink. Implementations drop bytes when they have
// nowhere to send them and never report errors.
type Sender interface {
	Send(p []byte)
}

// Relay writes every line to the console, then to each sender in order.
// It never fails, so it can be used as the output of the standard logger.
type Relay struct {
	console io.Writer
	senders []Sender
}

// New creates a Relay. console is always written first.
func New(console io.Writer, senders ...Sender) *Relay {
	return &Relay{console: console, senders: senders}
}

// Write implements io.Writer. Sink errors are swallowed and Write always
// reports the full length.
func (r *Relay) Write(p []byte) (int, error) {
	r.console.Write(p)
	for _, s := range r.senders {
		s.Send(p)
	}
	return len(p), nil
}

// Emit writes a single pre-formatted line, adding the trailing newline if
// missing. It is the entry point for callers that hold a Relay and format
// their own lines; everything else reaches the relay through the standard
// logger after Install.
func (r *Relay) Emit(line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	r.Write([]byte(line))
}

// Install makes r the output of the standard logger, tagging every line.
func (r *Relay) Install(tag string) {
	log.SetOutput(r)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lmsgprefix)
	if tag != "" {
		log.SetPrefix(tag + ": ")
	}
}
