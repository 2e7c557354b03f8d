// Package clock provides the monotonic timestamps and duration arithmetic
// the capture engine measures stalls with (spec.md §3, "Clock" component).
//
// Real timestamps come from CLOCK_MONOTONIC via golang.org/x/sys/unix, the
// same low-level POSIX clock access the teacher performs itself in
// config/times.go rather than relying solely on the standard library's
// opaque time.Now() monotonic reading.
package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// Timestamp is a monotonic instant, expressed as nanoseconds since an
// arbitrary, process-local epoch. Timestamps are only meaningful relative
// to one another; they carry no wall-clock meaning.
type Timestamp int64

// Sub returns the duration elapsed between other and t (t - other).
func (t Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(t-other) * time.Nanosecond
}

// Seconds reports t as a floating point offset in seconds from the epoch
// the underlying Clock uses. This is only useful for computing an "offset
// from interval start" figure (spec.md §4.4's "T+" / "offset" fields); it
// is not a wall-clock time.
func (t Timestamp) Seconds() float64 {
	return float64(t) / float64(time.Second)
}

// Clock produces monotonic Timestamps. The capture engine depends on this
// interface, not a concrete clock, so tests can inject deterministic time
// (spec.md §8's "Determinism" law requires reproducible timestamps).
type Clock interface {
	Now() Timestamp
}

// Monotonic is the production Clock, backed by CLOCK_MONOTONIC.
type Monotonic struct{}

// New returns the production monotonic Clock.
func New() Monotonic { return Monotonic{} }

// Now returns the current monotonic timestamp.
func (Monotonic) Now() Timestamp {
	var ts unix.Timespec
	// CLOCK_MONOTONIC never fails for a valid clock id on any platform this
	// module targets; the teacher's own StartMonotonicSync makes the same
	// assumption about unix.ClockGettime.
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return Timestamp(ts.Nano())
}
