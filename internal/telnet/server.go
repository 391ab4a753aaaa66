// Package telnet serves the diagnostic log stream to a single remote client
// over plain TCP.
package telnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"
)

// DefaultPort is the telnet port.
const DefaultPort = 23

const (
	rxBufferSize        = 128
	defaultWriteTimeout = 250 * time.Millisecond
	maxAcceptDelay      = time.Second
)

// client is the occupant of the connection slot.
type client struct {
	conn net.Conn
}

// Server accepts one client at a time. The connection slot is written only
// by Serve and read by Send, possibly concurrently.
type Server struct {
	ln           net.Listener
	slot         atomic.Pointer[client]
	writeTimeout time.Duration
}

// New creates a Server. Call Listen then Serve.
func New() *Server {
	return &Server{writeTimeout: defaultWriteTimeout}
}

// Listen binds addr. A failure here is final for the transport; nothing
// retries it.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Attached reports whether a client currently occupies the slot.
func (s *Server) Attached() bool {
	return s.slot.Load() != nil
}

// Serve accepts clients until ctx is done. Each client is served to
// completion before the next Accept, so at most one is ever connected.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("telnet: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() {
		s.ln.Close()
		if c := s.slot.Load(); c != nil {
			c.conn.Close()
		}
	})
	defer stop()

	log.Printf("telnet server listening on %s", s.ln.Addr())

	var delay time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("unable to accept connection: %v", err)
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			time.Sleep(delay)
			continue
		}
		delay = 0

		c := &client{conn: conn}
		s.slot.Store(c)
		if ctx.Err() != nil {
			// Cancelled between Accept and Store; the AfterFunc may have
			// missed this conn.
			conn.Close()
		}
		log.Printf("client connected from %s", conn.RemoteAddr())

		s.readLoop(c)

		s.slot.CompareAndSwap(c, nil)
		conn.Close()
	}
}

// readLoop logs whatever the client sends until it goes away. Input is
// never interpreted.
func (s *Server) readLoop(c *client) {
	buf := make([]byte, rxBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			log.Printf("received %d bytes: %s", n, buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("client disconnected")
			} else {
				log.Printf("recv failed: %v", err)
			}
			return
		}
	}
}

// Send writes p to the attached client, if any. Errors are dropped: the
// caller is the log relay, so Send must not log.
func (s *Server) Send(p []byte) {
	c := s.slot.Load()
	if c == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	c.conn.Write(p)
}
