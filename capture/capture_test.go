package capture

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberprofiler/fiberprofiler/clock"
	"github.com/fiberprofiler/fiberprofiler/config"
	"github.com/fiberprofiler/fiberprofiler/eventkind"
)

// fakeHost is a Host test double: it records subscriptions and lets tests
// inject events directly into whichever callback matches the event's mask.
type fakeHost struct {
	subs []fakeSub
}

type fakeSub struct {
	mask EventMask
	cb   EventCallback
	live bool
}

func (h *fakeHost) Subscribe(mask EventMask, cb EventCallback) func() {
	h.subs = append(h.subs, fakeSub{mask: mask, cb: cb, live: true})
	idx := len(h.subs) - 1
	return func() { h.subs[idx].live = false }
}

func (h *fakeHost) emit(kind eventkind.Kind, ev Event) {
	ev.Kind = kind
	mask := maskFor(kind)
	for i := range h.subs {
		s := h.subs[i]
		if s.live && s.mask&mask != 0 {
			s.cb(ev)
		}
	}
}

func maskFor(k eventkind.Kind) EventMask {
	switch k {
	case eventkind.Call:
		return MaskCall
	case eventkind.CCall:
		return MaskCCall
	case eventkind.BlockCall:
		return MaskBlockCall
	case eventkind.Return:
		return MaskReturn
	case eventkind.CReturn:
		return MaskCReturn
	case eventkind.BlockReturn:
		return MaskBlockReturn
	case eventkind.GcStart:
		return MaskGCStart
	case eventkind.GcEndSweep:
		return MaskGCEndSweep
	case eventkind.TaskSwitch:
		return MaskTaskSwitch
	default:
		return 0
	}
}

// recordingOutput is an Output test double capturing every write.
type recordingOutput struct {
	tty    bool
	writes []string
}

func (o *recordingOutput) Write(p []byte) (int, error) {
	o.writes = append(o.writes, string(p))
	return len(p), nil
}

func (o *recordingOutput) IsTTY() bool { return o.tty }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func testConfig() config.Config {
	return config.Config{
		Enabled:         true,
		StallThreshold:  0.0001,
		FilterThreshold: 0.00001,
		TrackCalls:      true,
		SampleRate:      1.0,
	}
}

// Scenario 1 (spec.md §8): minimal stall.
func TestMinimalStallScenario(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{tty: false}
	c := New(testConfig(), host, clk, out)

	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{})
	host.emit(eventkind.Call, Event{MethodID: "sleep"})
	clk.Advance(seconds(0.0002))
	host.emit(eventkind.Return, Event{MethodID: "sleep"})
	host.emit(eventkind.TaskSwitch, Event{})

	assert.Equal(t, uint64(2), c.Switches())
	// The closing switch also accepts the next interval, so the accessor has
	// counted a second sample; the report itself was built before that.
	assert.Equal(t, uint64(2), c.Samples())
	assert.Equal(t, uint64(1), c.Stalls())
	require.Len(t, out.writes, 1)
	assert.Contains(t, out.writes[0], `"method":"sleep"`)
	assert.Contains(t, out.writes[0], `"switches":2,"samples":1,"stalls":1`)
}

func TestStopDiscardsWithoutRendering(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	c := New(testConfig(), host, clk, out)
	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{})
	host.emit(eventkind.Call, Event{MethodID: "slow"})
	clk.Advance(seconds(1))

	require.True(t, c.Stop())
	assert.Empty(t, out.writes)
	assert.False(t, c.Running())
}

func TestStopIsIdempotent(t *testing.T) {
	host := &fakeHost{}
	c := New(testConfig(), host, clock.NewFake(0), &recordingOutput{})
	require.True(t, c.Start())

	assert.True(t, c.Stop())
	assert.False(t, c.Stop())
}

func TestStartWhileRunningReturnsFalse(t *testing.T) {
	host := &fakeHost{}
	c := New(testConfig(), host, clock.NewFake(0), &recordingOutput{})
	require.True(t, c.Start())
	assert.False(t, c.Start())
}

func TestFilterElidesShortCallsAndCountsFilteredTrailer(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	cfg := testConfig()
	cfg.FilterThreshold = 0.001 // 1ms: the 1us nested calls below are elided.
	c := New(cfg, host, clk, out)
	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{})
	host.emit(eventkind.Call, Event{MethodID: "outer"})
	for i := 0; i < 5; i++ {
		host.emit(eventkind.Call, Event{MethodID: "inner"})
		clk.Advance(seconds(0.000001))
		host.emit(eventkind.Return, Event{MethodID: "inner"})
	}
	host.emit(eventkind.Call, Event{MethodID: "sleep"})
	clk.Advance(seconds(0.01))
	host.emit(eventkind.Return, Event{MethodID: "sleep"})
	// A second, unequal-duration sibling keeps outer.Children at 2 so the
	// renderer's single-child collapse (spec.md §4.4) does not also fold
	// "sleep" into "outer".
	host.emit(eventkind.Call, Event{MethodID: "other"})
	clk.Advance(seconds(0.02))
	host.emit(eventkind.Return, Event{MethodID: "other"})
	host.emit(eventkind.Return, Event{MethodID: "outer"})
	host.emit(eventkind.TaskSwitch, Event{})

	require.Len(t, out.writes, 1)
	assert.Equal(t, uint64(1), c.Stalls())
	assert.Contains(t, out.writes[0], `"method":"sleep"`)
	assert.Contains(t, out.writes[0], `"method":"outer"`)
	assert.Contains(t, out.writes[0], `"method":"other"`)
	assert.Contains(t, out.writes[0], `"filtered":5`)
	assert.NotContains(t, out.writes[0], `"method":"inner"`)
}

func TestGCDuringStall(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	c := New(testConfig(), host, clk, out)
	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{})
	host.emit(eventkind.GcStart, Event{Path: "<gc>"})
	clk.Advance(seconds(0.001))
	host.emit(eventkind.GcEndSweep, Event{Path: "<gc>"})
	host.emit(eventkind.TaskSwitch, Event{})

	assert.Equal(t, uint64(1), c.Stalls())
	require.Len(t, out.writes, 1)
	assert.Contains(t, out.writes[0], `"path":"<gc>"`)
}

func TestSamplingReducesCaptures(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	cfg := testConfig()
	cfg.SampleRate = 0.1
	c := New(cfg, host, clk, out, WithSeed(1, 1))
	require.True(t, c.Start())

	for i := 0; i < 100; i++ {
		host.emit(eventkind.TaskSwitch, Event{})
		host.emit(eventkind.Call, Event{MethodID: "sleep"})
		clk.Advance(seconds(0.001))
		host.emit(eventkind.Return, Event{MethodID: "sleep"})
	}
	host.emit(eventkind.TaskSwitch, Event{})

	assert.LessOrEqual(t, c.Samples(), uint64(50))
	assert.GreaterOrEqual(t, c.Stalls(), uint64(1))
	assert.LessOrEqual(t, c.Stalls(), c.Samples())
}

func TestBlockingTaskIsNeverSampled(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	c := New(testConfig(), host, clk, &recordingOutput{})
	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{Task: blockingTask{}})
	host.emit(eventkind.Call, Event{MethodID: "ignored"})

	assert.Equal(t, uint64(0), c.Samples())
	assert.False(t, c.Capturing())
}

type blockingTask struct{}

func (blockingTask) IsBlocking() bool { return true }

func TestMultipleStallsNoOutputCorruption(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	c := New(testConfig(), host, clk, out)
	require.True(t, c.Start())

	for i := 0; i < 2; i++ {
		host.emit(eventkind.TaskSwitch, Event{})
		host.emit(eventkind.Call, Event{MethodID: "sleep"})
		clk.Advance(seconds(0.01))
		host.emit(eventkind.Return, Event{MethodID: "sleep"})
	}
	host.emit(eventkind.TaskSwitch, Event{})

	assert.Equal(t, uint64(2), c.Stalls())
	require.Len(t, out.writes, 2)
	for _, w := range out.writes {
		assert.True(t, strings.HasSuffix(w, "\n"))
		assert.Equal(t, 1, strings.Count(w, "\n"))
	}
}

func TestReturnWithEmptyArenaSynthesizesFrame(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	c := New(testConfig(), host, clk, out)
	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{})
	clk.Advance(seconds(0.001))
	host.emit(eventkind.Return, Event{MethodID: "mystery"}) // no matching call: profiling began mid-frame.
	host.emit(eventkind.TaskSwitch, Event{})

	require.Len(t, out.writes, 1)
	assert.Contains(t, out.writes[0], `"method":"mystery"`)
	assert.NotContains(t, out.writes[0], `"nesting":-`)
}

func TestNegativeNestingNormalizedToZeroInOutput(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	c := New(testConfig(), host, clk, out)
	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{})
	clk.Advance(seconds(0.001))
	// Two unmatched returns: nesting dips to -2 before any call is seen.
	host.emit(eventkind.Return, Event{MethodID: "a"})
	host.emit(eventkind.Return, Event{MethodID: "b"})
	host.emit(eventkind.TaskSwitch, Event{})

	require.Len(t, out.writes, 1)
	assert.NotContains(t, out.writes[0], `"nesting":-`)
}

func TestTrackCallsFalseNeverPopulatesArena(t *testing.T) {
	host := &fakeHost{}
	clk := clock.NewFake(0)
	out := &recordingOutput{}
	cfg := testConfig()
	cfg.TrackCalls = false
	c := New(cfg, host, clk, out)
	require.True(t, c.Start())

	host.emit(eventkind.TaskSwitch, Event{})
	// No call/return hooks are installed at all when TrackCalls is false;
	// emitting one anyway (simulating a misbehaving host) must be a no-op
	// since the Engine never subscribed to it.
	host.emit(eventkind.Call, Event{MethodID: "x"})
	clk.Advance(seconds(0.01))
	host.emit(eventkind.TaskSwitch, Event{})

	require.Len(t, out.writes, 1)
	assert.Contains(t, out.writes[0], `"calls":[]`)
	assert.Equal(t, uint64(1), c.Stalls())
}

func TestForkStopClearsActiveCaptureWithoutTouchingHost(t *testing.T) {
	// The active-capture registry is keyed by OS thread id (spec.md §5,
	// §9's "Thread-local active capture"); pin this goroutine so the
	// runtime doesn't migrate it between the Start and the lookup below.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	host := &fakeHost{}
	c := New(testConfig(), host, clock.NewFake(0), &recordingOutput{})
	require.True(t, c.Start())

	active, ok := ActiveOnThisThread()
	require.True(t, ok)
	require.Same(t, c, active)

	StopAfterFork()

	assert.False(t, c.Running())
	assert.False(t, c.Stop()) // tolerates being called again after the hooks are already gone
	_, ok = ActiveOnThisThread()
	assert.False(t, ok)
}

func TestAccessorsReflectConfig(t *testing.T) {
	host := &fakeHost{}
	cfg := testConfig()
	c := New(cfg, host, clock.NewFake(0), &recordingOutput{})

	assert.Equal(t, cfg.StallThreshold, c.StallThreshold())
	assert.Equal(t, cfg.FilterThreshold, c.FilterThreshold())
	assert.Equal(t, cfg.TrackCalls, c.TrackCalls())
	assert.Equal(t, cfg.SampleRate, c.SampleRate())
}

func TestDeterminismUnderFullSampleNoTracking(t *testing.T) {
	run := func() (switches, samples, stalls uint64) {
		host := &fakeHost{}
		clk := clock.NewFake(0)
		cfg := testConfig()
		cfg.TrackCalls = false
		cfg.SampleRate = 1
		c := New(cfg, host, clk, &recordingOutput{})
		require.True(t, c.Start())
		for i := 0; i < 10; i++ {
			host.emit(eventkind.TaskSwitch, Event{})
			clk.Advance(seconds(0.0002))
		}
		return c.Switches(), c.Samples(), c.Stalls()
	}

	s1, a1, t1 := run()
	s2, a2, t2 := run()
	assert.Equal(t, s1, s2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, t1, t2)
}
