package pulse

import "time"

// Micros is a free-running microsecond counter.
type Micros uint64

// Since returns the microseconds elapsed from start to m. The subtraction is
// modular, so the result is never negative and is exact across a wrap.
func (m Micros) Since(start Micros) Micros {
	return m - start
}

// Millis truncates to whole milliseconds.
func (m Micros) Millis() uint64 {
	return uint64(m) / 1000
}

// Clock returns the current counter value.
type Clock func() Micros

// MonotonicClock returns a Clock counting microseconds since the call,
// backed by the runtime's monotonic clock.
func MonotonicClock() Clock {
	base := time.Now()
	return func() Micros {
		return Micros(time.Since(base).Microseconds())
	}
}
