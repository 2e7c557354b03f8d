package main

import (
	"math/rand/v2"
	"time"

	"github.com/fiberprofiler/fiberprofiler/capture"
	"github.com/fiberprofiler/fiberprofiler/eventkind"
)

// fakeTask is the only capture.Task this demo ever reports: a single
// cooperative task that never blocks.
type fakeTask struct{}

func (fakeTask) IsBlocking() bool { return false }

type subscription struct {
	mask capture.EventMask
	cb   capture.EventCallback
}

// fakeHost is a synthetic capture.Host standing in for the real tracing
// backend spec.md §1 places out of scope: it has no tracer of its own, only
// a set of subscriptions a driver goroutine feeds events into, exactly the
// boundary capture.Host is meant to abstract over.
type fakeHost struct {
	subs []*subscription
	rng  *rand.Rand
}

func newFakeHost(seed uint64) *fakeHost {
	return &fakeHost{rng: rand.New(rand.NewPCG(seed, seed|1))}
}

func (h *fakeHost) Subscribe(mask capture.EventMask, cb capture.EventCallback) func() {
	sub := &subscription{mask: mask, cb: cb}
	h.subs = append(h.subs, sub)
	return func() {
		for i, s := range h.subs {
			if s == sub {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

func (h *fakeHost) dispatch(kind eventkind.Kind, ev capture.Event) {
	var mask capture.EventMask
	switch kind {
	case eventkind.Call:
		mask = capture.MaskCall
	case eventkind.Return:
		mask = capture.MaskReturn
	case eventkind.GcStart:
		mask = capture.MaskGCStart
	case eventkind.GcEndSweep:
		mask = capture.MaskGCEndSweep
	case eventkind.TaskSwitch:
		mask = capture.MaskTaskSwitch
	}
	for _, s := range h.subs {
		if s.mask&mask != 0 {
			s.cb(ev)
		}
	}
}

var demoMethods = []struct {
	path, class, method string
	line                int
}{
	{"app/models/user.go", "User", "Save", 42},
	{"app/controllers/orders.go", "Orders", "Create", 17},
	{"lib/db/pool.go", "Pool", "Acquire", 88},
	{"lib/http/client.go", "Client", "Do", 134},
}

// Run drives n synthetic task-switch cycles through host's subscribers,
// sleeping real wall-clock time between events so a clock.Monotonic-backed
// Capture observes genuine elapsed durations. Call/return nesting depth and
// per-call duration are chosen at random from h.rng, occasionally wide
// enough to exceed a demo-sized stall threshold.
func (h *fakeHost) Run(n int) {
	for i := 0; i < n; i++ {
		h.dispatch(eventkind.TaskSwitch, capture.Event{Kind: eventkind.TaskSwitch, Task: fakeTask{}})

		depth := 1 + h.rng.IntN(3)
		for d := 0; d < depth; d++ {
			m := demoMethods[h.rng.IntN(len(demoMethods))]
			h.dispatch(eventkind.Call, capture.Event{
				Kind: eventkind.Call, Path: m.path, ClassName: m.class, MethodID: m.method, Line: m.line,
			})
			time.Sleep(time.Duration(h.rng.IntN(4000)) * time.Microsecond)
		}
		for d := 0; d < depth; d++ {
			h.dispatch(eventkind.Return, capture.Event{Kind: eventkind.Return})
		}
	}

	// Final task-switch closes out whatever interval is still open so it
	// gets a chance to render before the demo exits.
	h.dispatch(eventkind.TaskSwitch, capture.Event{Kind: eventkind.TaskSwitch, Task: fakeTask{}})
}
