// Package gpio provides GPIO input reading with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Level is the logical level of the monitored line.
type Level bool

const (
	LevelLow  Level = false
	LevelHigh Level = true
)

// String returns "0" or "1", matching the raw line value.
func (l Level) String() string {
	if l {
		return "1"
	}
	return "0"
}

// Reader reads the level of a single GPIO input.
type Reader interface {
	// Read returns the current level of the line.
	Read() (Level, error)

	// Close releases GPIO resources.
	Close() error
}

// Defaults for the intercom wiring.
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 6
)
