// Package capture implements the Capture Engine: the per-thread state
// machine that observes task-switch and call/return events, maintains a
// Frame Arena for the current interval, decides whether the interval was a
// stall, and hands finished intervals to the Report Renderer, per spec.md
// §4.3.
package capture

import (
	"bytes"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/fiberprofiler/fiberprofiler/clock"
	"github.com/fiberprofiler/fiberprofiler/config"
	"github.com/fiberprofiler/fiberprofiler/frame"
	"github.com/fiberprofiler/fiberprofiler/intern"
	"github.com/fiberprofiler/fiberprofiler/report"
	"github.com/fiberprofiler/fiberprofiler/successfailurecounter"
)

// Output is the byte sink a Capture renders finished reports to, plus the
// is-tty flag spec.md §3's configuration table pairs with it (spec.md §4.5:
// "If the sink's underlying descriptor is a TTY, the engine uses the TTY
// renderer; otherwise the machine renderer").
type Output interface {
	io.Writer
	IsTTY() bool
}

// Option customizes a Capture at construction time.
type Option func(*Capture)

// WithSeed fixes the sampler's PRNG seed, for reproducible tests of
// spec.md §8's sampling scenario ("test with seeded RNG to obtain a fixed
// value").
func WithSeed(seed1, seed2 uint64) Option {
	return func(c *Capture) { c.rng = rand.New(rand.NewPCG(seed1, seed2)) }
}

// Capture is the per-thread profiling state machine of spec.md §3/§4.3. A
// Capture must only be driven (Start, Stop, and the events delivered to the
// callback it registers with a Host) from the single OS thread that called
// Start; see spec.md §5.
type Capture struct {
	cfg    config.Config
	host   Host
	clk    clock.Clock
	output Output
	intern *intern.Table
	id     uuid.UUID
	rng    *rand.Rand

	unsubSwitch     func()
	unsubCallReturn func()
	unsubGC         func()

	running   bool
	capturing bool

	startTime  clock.Timestamp
	switchTime clock.Timestamp

	nesting        int
	nestingMinimum int
	current        frame.Handle
	frames         frame.Arena

	switches uint64
	samples  uint64
	stalls   uint64
	dropped  uint64 // AllocationFailure drop counter; never reported in the machine form (spec.md §7).

	// outcome/renderOutcome give each interval a "seal once" accounting of
	// how it ended, adapting the teacher's successfailurecounter from a
	// binary success/failure pair to the engine's three interval outcomes
	// (rendered, elided, allocation-failure aborted).
	outcome            successfailurecounter.SuccessFailureCounter
	renderOutcome      successfailurecounter.SuccessFailureCounter
	completedIntervals atomic.Uint64
	abortedIntervals   atomic.Uint64
	renderedIntervals  atomic.Uint64
	elidedIntervals    atomic.Uint64

	sinkWarnOnce sync.Once
}

// New allocates an idle Capture. cfg is typically config.Defaults(),
// optionally overridden by the facade; host is the concrete adapter to the
// runtime's event hooks; clk is almost always clock.New() in production and
// a clock.Fake in tests; output is where finished reports are written.
func New(cfg config.Config, host Host, clk clock.Clock, output Output, opts ...Option) *Capture {
	c := &Capture{
		cfg:     cfg,
		host:    host,
		clk:     clk,
		output:  output,
		intern:  intern.New(),
		id:      uuid.New(),
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano())|1)),
		current: frame.Nil,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the session identifier attached to this Capture's log lines
// (SPEC_FULL.md §3, telling concurrently running Captures apart). Rendered
// reports, TTY or machine, do not include it.
func (c *Capture) ID() uuid.UUID { return c.id }

// Running reports whether hooks are currently installed.
func (c *Capture) Running() bool { return c.running }

// Capturing reports whether the engine is currently accumulating frames for
// an interval.
func (c *Capture) Capturing() bool { return c.capturing }

// Switches returns the number of task-switch events observed since Start.
func (c *Capture) Switches() uint64 { return c.switches }

// Samples returns the number of intervals accepted for capture since Start.
func (c *Capture) Samples() uint64 { return c.samples }

// Stalls returns the number of intervals whose duration exceeded
// StallThreshold since Start.
func (c *Capture) Stalls() uint64 { return c.stalls }

// StallThreshold returns the configured stall budget, in seconds.
func (c *Capture) StallThreshold() float64 { return c.cfg.StallThreshold }

// FilterThreshold returns the configured call-elision cutoff, in seconds.
func (c *Capture) FilterThreshold() float64 { return c.cfg.FilterThreshold }

// TrackCalls returns whether call/return tracking is enabled.
func (c *Capture) TrackCalls() bool { return c.cfg.TrackCalls }

// SampleRate returns the configured per-interval capture probability.
func (c *Capture) SampleRate() float64 { return c.cfg.SampleRate }

// Start installs hooks on the calling OS thread and marks the Capture
// running (Idle → Running-Paused, spec.md §4.3's state machine). Returns
// false without effect if already running.
func (c *Capture) Start() bool {
	if c.running {
		return false
	}

	c.running = true
	c.startTime = c.clk.Now()
	// Seeds switch_time to start_time so a return-like event observed
	// before the first task-switch still synthesizes a sensible frame
	// instead of a zero timestamp (supplemented from
	// original_source/ext/fiber/profiler/capture.c; see SPEC_FULL.md §9).
	c.switchTime = c.startTime
	c.current = frame.Nil
	c.nesting = 0
	c.nestingMinimum = 0

	c.unsubSwitch = c.host.Subscribe(MaskTaskSwitch, c.onEvent)
	registerActive(c)

	log.WithField("capture_id", c.id).Info("fiberprofiler: capture started")
	return true
}

// Stop uninstalls hooks, discards any in-flight interval without rendering
// it, and marks the Capture idle. Returns false without effect if not
// running. Idempotent: a second call returns false.
func (c *Capture) Stop() bool {
	if !c.running {
		return false
	}

	c.uninstallCallReturnHooks()
	if c.unsubSwitch != nil {
		c.unsubSwitch()
		c.unsubSwitch = nil
	}
	unregisterActive(c)

	c.running = false
	c.capturing = false
	c.frames.Truncate()
	c.current = frame.Nil
	c.intern.Reset()

	log.WithField("capture_id", c.id).Info("fiberprofiler: capture stopped")
	return true
}

// clearAfterFork discards all hook bookkeeping without calling into the
// host, since those subscriptions belong to the parent process (spec.md
// §5). A subsequent explicit Stop then correctly reports false (already
// idle), satisfying "stop after fork must tolerate being called when the
// hooks are already gone".
func (c *Capture) clearAfterFork() {
	c.unsubSwitch = nil
	c.unsubCallReturn = nil
	c.unsubGC = nil
	c.running = false
	c.capturing = false
	c.frames.Truncate()
	c.current = frame.Nil
}

func (c *Capture) onEvent(ev Event) {
	if !c.running {
		return
	}

	switch {
	case ev.Kind.IsTaskSwitch():
		c.handleTaskSwitch(ev)
	case ev.Kind.IsCallLike():
		if c.capturing {
			c.handleCall(ev)
		}
	case ev.Kind.IsReturnLike():
		if c.capturing {
			c.handleReturn(ev)
		}
	default:
		if c.capturing && c.cfg.TrackCalls {
			c.handlePseudoFrame(ev)
		}
	}
}

func (c *Capture) handleTaskSwitch(ev Event) {
	c.switches++
	now := c.clk.Now()

	if c.capturing {
		duration := now.Sub(c.switchTime)

		c.uninstallCallReturnHooks()
		c.capturing = false
		c.finalizeOpenFrames(now)
		c.outcome.ReportSuccess()

		if duration > c.stallThresholdDuration() {
			c.stalls++
			c.renderOutcome.ReportSuccess()
			iv := report.Build(&c.frames, c.nestingMinimum, c.switchTime, duration, c.switches, c.samples, c.stalls)
			log.WithField("capture_id", c.id).WithField("duration", duration).Info("fiberprofiler: stall detected")
			c.emit(iv)
		} else {
			c.renderOutcome.ReportFailure()
		}

		c.frames.Truncate()
		c.nesting = 0
		c.nestingMinimum = 0
		c.current = frame.Nil
	}

	if c.shouldSample(ev) {
		c.switchTime = now
		c.capturing = true
		c.samples++
		c.outcome = successfailurecounter.New(&c.completedIntervals, &c.abortedIntervals)
		c.renderOutcome = successfailurecounter.New(&c.renderedIntervals, &c.elidedIntervals)
		c.installCallReturnHooks()
	}
}

func (c *Capture) shouldSample(ev Event) bool {
	if ev.Task != nil && ev.Task.IsBlocking() {
		return false
	}
	if c.cfg.SampleRate >= 1 {
		return true
	}
	return c.rng.Float64() < c.cfg.SampleRate
}

func (c *Capture) handleCall(ev Event) {
	parent := c.current
	h, f, ok := c.pushFrame()
	if !ok {
		c.abortInterval()
		return
	}

	f.Parent = parent
	if parent.Valid() {
		c.frames.Get(parent).Children++
	}
	f.EnterTime = c.clk.Now()
	f.Nesting = c.nesting
	f.Kind = ev.Kind
	f.MethodID = c.intern.String(ev.MethodID)
	f.ClassName = c.intern.String(ev.ClassName)
	f.Path = c.intern.String(ev.Path)
	f.Line = ev.Line

	c.current = h
	c.nesting++
}

func (c *Capture) handleReturn(ev Event) {
	now := c.clk.Now()

	if c.current.Valid() {
		h := c.current
		f := c.frames.Get(h)
		f.Duration = now.Sub(f.EnterTime)
		c.current = f.Parent
		c.nesting--
		if c.nesting < c.nestingMinimum {
			c.nestingMinimum = c.nesting
		}
		c.applyFilter(h)
		return
	}

	// Imbalance: a return with no open frame. Synthesize one anchored to
	// the previous frame's enter_time, or switch_time if the arena is
	// empty.
	//
	// Each unmatched return reveals a frame that was already open before
	// this interval (or before capture began) started observing it, one
	// level further out than the last one we revealed; we decrement
	// nesting here too, diverging from a literal "do not adjust nesting"
	// reading, because that is the only way nesting_minimum (and hence
	// absolute-depth reconstruction, spec.md §4.3) is ever driven negative
	// -- the behavior spec.md §8's boundary test exercises directly.
	enter := c.switchTime
	if _, last, ok := c.frames.Last(); ok {
		enter = last.EnterTime
	}

	_, f, ok := c.pushFrame()
	if !ok {
		c.abortInterval()
		return
	}
	f.Parent = frame.Nil
	f.EnterTime = enter
	f.Duration = now.Sub(enter)
	f.Nesting = c.nesting
	f.Kind = ev.Kind
	f.MethodID = c.intern.String(ev.MethodID)
	f.ClassName = c.intern.String(ev.ClassName)
	f.Path = c.intern.String(ev.Path)
	f.Line = ev.Line

	c.nesting--
	if c.nesting < c.nestingMinimum {
		c.nestingMinimum = c.nesting
	}
}

func (c *Capture) handlePseudoFrame(ev Event) {
	parent := c.current
	enter := c.switchTime
	if parent.Valid() {
		enter = c.frames.Get(parent).EnterTime
	}

	_, f, ok := c.pushFrame()
	if !ok {
		c.abortInterval()
		return
	}
	if parent.Valid() {
		c.frames.Get(parent).Children++
	}

	f.Parent = parent
	f.EnterTime = enter
	f.Duration = 0
	f.Nesting = c.nesting
	f.Kind = ev.Kind
	f.MethodID = c.intern.String(ev.MethodID)
	f.ClassName = c.intern.String(ev.ClassName)
	f.Path = c.intern.String(ev.Path)
	f.Line = ev.Line
}

// finalizeOpenFrames walks the open chain from current up through its
// parents, finalizing each frame's duration and running the filter rule on
// it, per spec.md §4.3's task-switch handling.
func (c *Capture) finalizeOpenFrames(now clock.Timestamp) {
	h := c.current
	for h.Valid() {
		f := c.frames.Get(h)
		f.Duration = now.Sub(f.EnterTime)
		parent := f.Parent
		c.applyFilter(h)
		h = parent
	}
}

// applyFilter removes h from the arena if it is still the tail, call-like,
// and shorter than FilterThreshold, per spec.md §4.3's filter rule.
// Return-like frames are never filtered.
func (c *Capture) applyFilter(h frame.Handle) {
	lastH, last, ok := c.frames.Last()
	if !ok || lastH != h {
		return
	}
	if !last.Kind.IsCallLike() {
		return
	}
	if last.Duration >= c.filterThresholdDuration() {
		return
	}

	parent := last.Parent
	c.frames.Pop()
	if parent.Valid() {
		p := c.frames.Get(parent)
		p.Children--
		p.Filtered++
	}
}

// pushFrame wraps frame.Arena.Push with a recover guard. Go's slice-backed
// arena has no catchable allocation-failure error the way a malloc-based
// arena would (an out-of-memory append is a fatal, unrecoverable runtime
// error); this keeps the AllocationFailure control flow spec.md §7
// describes in place and exercised defensively, even though in practice the
// recover branch is not reachable short of the process being out of
// memory.
func (c *Capture) pushFrame() (h frame.Handle, f *frame.Frame, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h, f, ok = frame.Nil, nil, false
		}
	}()
	h, f = c.frames.Push()
	ok = true
	return
}

func (c *Capture) abortInterval() {
	c.dropped++
	c.outcome.ReportFailure()
	log.WithField("capture_id", c.id).Warn("fiberprofiler: frame arena allocation failed, interval aborted")

	c.uninstallCallReturnHooks()
	c.capturing = false
	c.frames.Truncate()
	c.nesting = 0
	c.nestingMinimum = 0
	c.current = frame.Nil
}

func (c *Capture) emit(iv report.Interval) {
	var out []byte
	if c.output.IsTTY() {
		var buf bytes.Buffer
		if err := report.RenderTTY(&buf, iv); err != nil {
			c.warnSinkFailure(err)
			return
		}
		out = buf.Bytes()
	} else {
		out = report.RenderMachine(iv)
	}

	if _, err := c.output.Write(out); err != nil {
		c.warnSinkFailure(err)
	}
}

// warnSinkFailure logs a SinkWriteFailure at most once per Capture
// lifetime; the report is lost and the engine continues (spec.md §7).
func (c *Capture) warnSinkFailure(err error) {
	c.sinkWarnOnce.Do(func() {
		log.WithField("capture_id", c.id).WithError(err).Warn("fiberprofiler: output sink write failed, report dropped")
	})
}

func (c *Capture) installCallReturnHooks() {
	if !c.cfg.TrackCalls {
		return
	}
	c.unsubCallReturn = c.host.Subscribe(MaskCallReturn, c.onEvent)
	c.unsubGC = c.host.Subscribe(MaskGC, c.onEvent)
}

func (c *Capture) uninstallCallReturnHooks() {
	if c.unsubCallReturn != nil {
		c.unsubCallReturn()
		c.unsubCallReturn = nil
	}
	if c.unsubGC != nil {
		c.unsubGC()
		c.unsubGC = nil
	}
}

func (c *Capture) filterThresholdDuration() time.Duration {
	return time.Duration(c.cfg.FilterThreshold * float64(time.Second))
}

func (c *Capture) stallThresholdDuration() time.Duration {
	return time.Duration(c.cfg.StallThreshold * float64(time.Second))
}
