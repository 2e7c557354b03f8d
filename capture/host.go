package capture

import "github.com/fiberprofiler/fiberprofiler/eventkind"

// EventMask selects which event families a Host subscription delivers,
// per spec.md §6's "masks requested: call, c-call, block-call, return,
// c-return, block-return, gc-start, gc-end-sweep, task-switch".
type EventMask uint32

const (
	MaskCall EventMask = 1 << iota
	MaskCCall
	MaskBlockCall
	MaskReturn
	MaskCReturn
	MaskBlockReturn
	MaskGCStart
	MaskGCEndSweep
	MaskTaskSwitch

	// MaskCallReturn groups every call-like/return-like mask the Engine
	// installs together in its "user-space call/return hooks" subscription.
	MaskCallReturn = MaskCall | MaskCCall | MaskBlockCall | MaskReturn | MaskCReturn | MaskBlockReturn
	// MaskGC groups the GC-phase masks the Engine installs as its separate
	// subscription (spec.md §4.3, "why two hook-install strategies").
	MaskGC = MaskGCStart | MaskGCEndSweep
)

// Task is the current cooperative task a host reports alongside an event.
type Task interface {
	// IsBlocking reports whether the host has flagged this task as allowed
	// to block indefinitely; such tasks are excluded from stall accounting
	// (spec.md §6, glossary "Blocking task").
	IsBlocking() bool
}

// Event is one host-reported occurrence, carrying the per-event fields
// spec.md §6 names as available from the runtime interface.
type Event struct {
	Kind      eventkind.Kind
	MethodID  string
	ClassName string
	Path      string
	Line      int
	Task      Task
}

// EventCallback receives one Event at a time, synchronously, on the thread
// that observed it (spec.md §5: "all event callbacks ... execute on the one
// OS thread that called start").
type EventCallback func(Event)

// Host is the abstract runtime interface the Capture Engine consumes events
// from (spec.md §6's "Runtime interface consumed from the host"). A
// concrete implementation adapts a real host's hook mechanism (a VM's
// TracePoint API, a debugger hook, a scheduler callback) to this interface;
// the Engine never imports a concrete tracing backend.
type Host interface {
	// Subscribe installs cb for every event whose kind is set in mask and
	// returns a function that removes exactly that subscription. The Engine
	// calls Subscribe more than once with disjoint masks sharing the same
	// callback, because some hosts disallow registering GC-phase hooks in
	// the same call as user-space call/return hooks (spec.md §4.3).
	Subscribe(mask EventMask, cb EventCallback) (unsubscribe func())
}
