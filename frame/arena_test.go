package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopBasic(t *testing.T) {
	var a Arena
	require.Equal(t, 0, a.Len())

	_, f := a.Push()
	f.MethodID = "a"
	_, g := a.Push()
	g.MethodID = "b"

	assert.Equal(t, 2, a.Len())

	_, last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.MethodID)

	a.Pop()
	assert.Equal(t, 1, a.Len())
	_, last, ok = a.Last()
	require.True(t, ok)
	assert.Equal(t, "a", last.MethodID)

	a.Pop()
	assert.Equal(t, 0, a.Len())
	_, _, ok = a.Last()
	assert.False(t, ok)
}

func TestHandleStableAcrossSiblingPush(t *testing.T) {
	var a Arena

	h1, f1 := a.Push()
	f1.MethodID = "first"

	// Pushing more siblings must not invalidate the earlier handle or the
	// data reachable through it (spec.md §4.1, §8's address-stability law).
	for i := 0; i < 5000; i++ {
		_, f := a.Push()
		f.MethodID = "filler"
	}

	assert.Equal(t, "first", a.Get(h1).MethodID)
}

func TestTruncateRetainsCapacityForReuse(t *testing.T) {
	var a Arena

	for i := 0; i < pageCapacity*3; i++ {
		a.Push()
	}
	pagesAfterFill := len(a.pages)
	require.Greater(t, pagesAfterFill, 1)

	a.Truncate()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, pagesAfterFill, len(a.pages), "truncate must not free pages")

	for i := 0; i < pageCapacity*3; i++ {
		a.Push()
	}
	assert.Equal(t, pagesAfterFill, len(a.pages), "reuse must not allocate new pages")
}

func TestIterVisitsInPushOrder(t *testing.T) {
	var a Arena
	for i := 0; i < pageCapacity*2+5; i++ {
		_, f := a.Push()
		f.Line = i
	}

	var seen []int
	a.Iter(func(_ Handle, f *Frame) {
		seen = append(seen, f.Line)
	})

	require.Len(t, seen, pageCapacity*2+5)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestPopFreesOwnedStringData(t *testing.T) {
	var a Arena
	h, f := a.Push()
	f.Path = "/app/models/user.rb"
	a.Pop()

	// The slot is reused by the next push; its previous owned data must be
	// gone rather than leaking into the new frame.
	_, f2 := a.Push()
	assert.Empty(t, f2.Path)
	_ = h
}

func TestMemorySizeGrowsWithPages(t *testing.T) {
	var a Arena
	before := a.MemorySize()
	for i := 0; i < pageCapacity+1; i++ {
		a.Push()
	}
	assert.Greater(t, a.MemorySize(), before)
}
