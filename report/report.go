// Package report implements the Report Renderer: it walks a finished
// interval's Frame Arena once and produces either a human-readable (TTY) or
// single-line machine (JSON-like) report, per spec.md §4.4.
//
// Both forms share the same traversal (Build below); only the two encoders
// in machine.go and tty.go differ.
package report

import (
	"time"

	"github.com/fiberprofiler/fiberprofiler/clock"
	"github.com/fiberprofiler/fiberprofiler/frame"
)

// SkipThreshold is the default fraction of a parent's duration a sole child
// must exceed to be collapsed into it (spec.md §4.4, "default 0.98").
const SkipThreshold = 0.98

// ExpensiveThreshold is the fraction of the interval's total duration a
// frame must exceed to be flagged expensive (cosmetic only), spec.md §4.4.
const ExpensiveThreshold = 0.2

// Call is one rendered call record: either a real frame or the trailing
// frame left after a skip-collapse run, annotated with everything both
// renderers need.
type Call struct {
	Path      string
	Line      int
	Kind      string
	Class     string
	Method    string
	Duration  time.Duration
	Offset    time.Duration
	Nesting   int
	Skipped   uint
	Filtered  uint
	Expensive bool
}

// Interval is everything a renderer needs to produce one stall report.
type Interval struct {
	StartTime clock.Timestamp // the interval's switch_time
	Duration  time.Duration
	Calls     []Call
	Skipped   uint // total frames elided by single-child collapse across the whole interval
	Switches  uint64
	Samples   uint64
	Stalls    uint64
}

// Build walks a in push order and assembles the rendered Interval, applying
// the single-child collapse and skip/filtered trailer bookkeeping described
// in spec.md §4.4. nestingMinimum is the engine's tracked minimum relative
// depth for the interval (spec.md §4.3, absolute-depth reconstruction).
// startTime is the interval's switch_time, used as the zero point for each
// call's "offset" field.
func Build(a *frame.Arena, nestingMinimum int, startTime clock.Timestamp, duration time.Duration, switches, samples, stalls uint64) Interval {
	iv := Interval{
		StartTime: startTime,
		Duration:  duration,
		Switches:  switches,
		Samples:   samples,
		Stalls:    stalls,
	}

	reportedDepth := make(map[frame.Handle]int, a.Len())
	var skipRun uint

	a.Iter(func(h frame.Handle, f *frame.Frame) {
		var parent *frame.Frame
		var parentDepth int
		hasParent := f.Parent.Valid()
		if hasParent {
			parent = a.Get(f.Parent)
			parentDepth = reportedDepth[f.Parent]
		}

		if hasParent && parent.Children == 1 && float64(f.Duration) > float64(parent.Duration)*SkipThreshold {
			reportedDepth[h] = parentDepth
			skipRun++
			iv.Skipped++
			return
		}

		var depth int
		if hasParent {
			depth = parentDepth + 1
		} else {
			depth = f.Nesting - nestingMinimum
		}
		reportedDepth[h] = depth

		iv.Calls = append(iv.Calls, Call{
			Path:      f.Path,
			Line:      f.Line,
			Kind:      f.Kind.String(),
			Class:     f.ClassName,
			Method:    f.MethodID,
			Duration:  f.Duration,
			Offset:    f.EnterTime.Sub(startTime),
			Nesting:   depth,
			Skipped:   skipRun,
			Filtered:  uint(f.Filtered),
			Expensive: duration > 0 && float64(f.Duration) > float64(duration)*ExpensiveThreshold,
		})
		skipRun = 0
	})

	return iv
}
