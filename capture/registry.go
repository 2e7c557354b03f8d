package capture

import (
	"sync"

	"golang.org/x/sys/unix"
)

// activeByThread models spec.md §9's "Thread-local active capture": exactly
// one Capture may be active per OS thread. Go offers no user-visible thread
// local storage (goroutines migrate between OS threads unless pinned with
// runtime.LockOSThread), so this is keyed by unix.Gettid() instead, the same
// workaround the teacher uses in config/times.go for a thread-sensitive
// measurement.
var activeByThread sync.Map // map[int]*Capture

func registerActive(c *Capture) {
	activeByThread.Store(unix.Gettid(), c)
}

func unregisterActive(c *Capture) {
	if v, ok := activeByThread.Load(unix.Gettid()); ok && v.(*Capture) == c {
		activeByThread.Delete(unix.Gettid())
	}
}

// ActiveOnThisThread returns the Capture currently running on the calling
// OS thread, if any.
func ActiveOnThisThread() (*Capture, bool) {
	v, ok := activeByThread.Load(unix.Gettid())
	if !ok {
		return nil, false
	}
	return v.(*Capture), true
}

// StopAfterFork forcibly clears the Capture active on the calling thread
// without attempting to uninstall its hooks through the host, since a
// freshly forked child inherits a Capture whose bookkeeping points at the
// parent's hook registrations (spec.md §5, "Process fork"). A process's
// fork observer (e.g. a pthread_atfork child handler, or the equivalent the
// host runtime exposes) must call this before any further event reaches the
// child's copy of the Capture.
func StopAfterFork() {
	c, ok := ActiveOnThisThread()
	if !ok {
		return
	}
	c.clearAfterFork()
	unregisterActive(c)
}
