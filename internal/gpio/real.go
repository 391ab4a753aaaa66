//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealReader requests pin on the named chip as an input.
func NewRealReader(chip string, pin int) (*RealReader, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	// The intercom line is active-low, so idle must read high with nothing
	// driving it.
	line, err := c.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp,
		gpiocdev.WithConsumer("intercom-monitor"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}

	return &RealReader{chip: c, line: line}, nil
}

// Read returns the raw line value as a Level.
func (r *RealReader) Read() (Level, error) {
	v, err := r.line.Value()
	if err != nil {
		return LevelHigh, fmt.Errorf("read pin: %w", err)
	}
	return Level(v != 0), nil
}

// Close leaves the line as a pulled-up input and releases it.
func (r *RealReader) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
