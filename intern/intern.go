// Package intern deduplicates the small set of method/class/path strings a
// single stall interval tends to repeat (the same hot method entered
// hundreds of times before it is elided by the filter rule, spec.md §4.3).
//
// It wraps github.com/elastic/go-freelru the same way the teacher wraps it
// in libpf/freelru: a thin, statistics-free adapter fixing the key type and
// hash function (github.com/zeebo/xxh3, matching the teacher's own choice
// of hasher for string-keyed hot paths in libpf/frameid.go).
package intern

import (
	freelru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"
)

// defaultCapacity must be a power of two; go-freelru sizes its bucket table
// from it directly.
const defaultCapacity = 4096

// Table interns strings so that repeated identical values (a method name
// seen on every iteration of a hot loop, a source path shared by thousands
// of call frames) are stored once.
type Table struct {
	cache *freelru.LRU[string, string]
}

// New returns an empty interning table.
func New() *Table {
	cache, err := freelru.New[string, string](defaultCapacity, hashString)
	if err != nil {
		// Only returns an error for a non-power-of-two capacity or a nil
		// hash function, both programmer errors fixed at compile time here.
		panic("intern: " + err.Error())
	}
	return &Table{cache: cache}
}

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// String returns a canonical copy of s: the first time a given value is
// seen it is retained and returned as-is; subsequent calls with an equal
// value return the retained copy instead of allocating a new one.
func (t *Table) String(s string) string {
	if s == "" {
		return ""
	}
	if v, ok := t.cache.Get(s); ok {
		return v
	}
	t.cache.Add(s, s)
	return s
}

// Reset discards all interned strings, releasing their backing memory. The
// capture engine calls this when a capture is stopped (spec.md's Lifecycle:
// "Call Records live only for the interval that produced them" extends
// naturally to interned copies once profiling itself has stopped).
func (t *Table) Reset() {
	t.cache.Purge()
}
