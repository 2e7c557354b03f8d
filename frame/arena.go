// Package frame implements the Frame Arena: a paged, append-mostly store
// of Call Records with stable addresses and O(1) amortized push, per
// spec.md §4.1.
//
// capture.c, the C extension this system was distilled from, stores calls
// in a single realloc'd flat array (original_source/ext/fiber/profiler/array.h);
// spec.md §4.1/§9 explicitly call that design unsafe here, because a
// relocating vector invalidates the raw "parent" pointer a live frame holds
// across a sibling push. The same original author already solved this
// precisely in original_source/ext/fiber/profiler/deque.h's
// Fiber_Profiler_Deque: a chain of fixed-capacity, non-relocating pages
// with push/pop/last/truncate/each operations, sized to a ~32 KiB
// per-page target (capture.c just never happens to #include it). This
// Arena follows deque.h's page-chain shape: the backing array of any
// individual page never moves, so a Handle into it stays valid until the
// arena is truncated, even while the slice of pages itself grows; pages
// emptied by Pop are walked back over rather than freed, and Truncate
// retains every allocated page for the next interval to reuse, the same as
// Fiber_Profiler_Deque_truncate resetting each page's size to 0 in place.
package frame

import "unsafe"

// pageCapacity is chosen so one page's backing array comfortably fits
// within the ~32 KiB target spec.md §4.1 names.
const pageCapacity = 32 * 1024 / int(unsafe.Sizeof(Frame{}))

// Handle is a stable, arena-relative reference to a pushed Frame: a
// (page, slot) pair, the alternative spec.md §9 offers to a raw pointer for
// languages — like safe Go — that cannot stash a self-reference into a
// container across its own reallocation.
type Handle struct {
	page int32
	slot int32
}

// Nil is the handle value used for "no parent" / "no frame".
var Nil = Handle{page: -1, slot: -1}

// Valid reports whether h refers to a real frame.
func (h Handle) Valid() bool { return h.page >= 0 }

type page struct {
	records [pageCapacity]Frame
	count   int
}

// Arena is a growable slice of fixed-capacity pages holding Call Records, supporting
// push / pop / peek-last / truncate / forward iteration, per spec.md §4.1.
// The zero value is a ready-to-use, empty Arena.
type Arena struct {
	pages []*page
	// active is the number of pages currently participating in the arena
	// (1-indexed count, not index); pages beyond this index are retained,
	// truncated allocations kept around for reuse rather than freed.
	active int
	length int
}

// Push allocates a zero-initialized frame and returns a handle to it along
// with a pointer for immediate mutation. The returned address is valid
// until the next Pop that removes it or the next Truncate.
func (a *Arena) Push() (Handle, *Frame) {
	if a.active == 0 || a.pages[a.active-1].count == pageCapacity {
		a.attachPage()
	}

	p := a.pages[a.active-1]
	slot := p.count
	p.count++
	a.length++

	f := &p.records[slot]
	f.reset()

	return Handle{page: int32(a.active - 1), slot: int32(slot)}, f
}

// attachPage makes the next page in a.pages the active tail, allocating a
// new one only if no already-allocated (and since-truncated) page is
// available for reuse.
func (a *Arena) attachPage() {
	if a.active < len(a.pages) {
		a.active++
		return
	}
	a.pages = append(a.pages, &page{})
	a.active++
}

// Pop removes and destroys the last pushed, not-yet-popped frame. The
// handle returned by its Push is no longer valid afterward.
func (a *Arena) Pop() {
	if a.length == 0 {
		return
	}

	p := a.pages[a.active-1]
	p.count--
	p.records[p.count].reset()
	a.length--

	if p.count == 0 && a.active > 1 {
		a.active--
	}
}

// Last returns a handle and pointer to the most recently pushed frame not
// yet popped, or ok=false if the arena is empty.
func (a *Arena) Last() (Handle, *Frame, bool) {
	if a.length == 0 {
		return Nil, nil, false
	}
	p := a.pages[a.active-1]
	slot := p.count - 1
	return Handle{page: int32(a.active - 1), slot: int32(slot)}, &p.records[slot], true
}

// Get resolves a handle to its frame. The handle must still be valid (not
// popped or truncated away).
func (a *Arena) Get(h Handle) *Frame {
	return &a.pages[h.page].records[h.slot]
}

// Len reports the number of live frames currently in the arena.
func (a *Arena) Len() int { return a.length }

// Truncate destroys all frames, releasing any owned string data they held,
// but retains the allocated pages for reuse by subsequent intervals.
func (a *Arena) Truncate() {
	for i := 0; i < a.active; i++ {
		p := a.pages[i]
		for s := 0; s < p.count; s++ {
			p.records[s].reset()
		}
		p.count = 0
	}
	a.active = 0
	a.length = 0
}

// Iter calls fn for each live frame in push order (oldest to newest). fn
// may read but must not retain the *Frame beyond the call: a later Pop or
// Truncate can reuse its storage.
func (a *Arena) Iter(fn func(Handle, *Frame)) {
	for i := 0; i < a.active; i++ {
		p := a.pages[i]
		for s := 0; s < p.count; s++ {
			fn(Handle{page: int32(i), slot: int32(s)}, &p.records[s])
		}
	}
}

// MemorySize reports the approximate number of bytes allocated across all
// pages, including pages retained for reuse after a Truncate, for a host's
// memory accounting (spec.md §4.1).
func (a *Arena) MemorySize() uintptr {
	return uintptr(len(a.pages)) * unsafe.Sizeof(page{})
}
