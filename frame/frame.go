package frame

import (
	"time"

	"github.com/fiberprofiler/fiberprofiler/clock"
	"github.com/fiberprofiler/fiberprofiler/eventkind"
)

// Frame is a Call Record: one element of the Frame Arena, per spec.md §3.
type Frame struct {
	EnterTime clock.Timestamp
	Duration  time.Duration

	// Nesting is the relative depth at the time this frame was recorded;
	// it may be negative if returns outnumbered calls earlier in the
	// interval. Absolute depth is only computed at render time (spec.md
	// §4.3).
	Nesting int

	// Children counts direct child frames still present after filtering.
	Children int
	// Filtered counts direct children elided by the filter rule.
	Filtered int

	Kind eventkind.Kind

	MethodID  string
	ClassName string
	Path      string
	Line      int

	Parent Handle
}

// reset zeroes a frame in place, releasing any owned string data it held.
// Called on push (clearing a page's reused slot) and on pop/truncate
// (freeing the path/method/class strings per spec.md §4.1's "element
// hooks").
func (f *Frame) reset() {
	*f = Frame{Parent: Nil}
}
