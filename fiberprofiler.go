// Package fiberprofiler is the public facade: it wires config.Defaults, a
// capture.Host supplied by the caller, and an output sink together into a
// ready-to-start capture.Capture, the same way the teacher's main.go wires
// config.Config, a tracer.Tracer, and a reporter.TraceReporter together --
// collapsed here into a library entry point instead of a process main loop.
package fiberprofiler

import (
	"github.com/fiberprofiler/fiberprofiler/capture"
	"github.com/fiberprofiler/fiberprofiler/clock"
	"github.com/fiberprofiler/fiberprofiler/config"
	"github.com/fiberprofiler/fiberprofiler/sink"
)

// Profiler is the handle returned to callers: the started/stopped
// capture.Capture, plus whether the config.Config it was built from has
// Enabled set.
type Profiler struct {
	capture *capture.Capture
	enabled bool
}

// Option customizes a Profiler at construction time, layered on top of
// config.Defaults() (or an explicitly supplied config.Config).
type Option func(*options)

type options struct {
	cfg        config.Config
	cfgSet     bool
	output     capture.Output
	clk        clock.Clock
	captureOpt []capture.Option
}

// WithConfig overrides config.Defaults() with an explicit configuration,
// for callers that don't want the FIBER_PROFILER_* environment variables
// consulted.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg, o.cfgSet = cfg, true }
}

// WithOutput overrides the default stdout sink (see New) with an
// explicit capture.Output, e.g. a file or an in-memory buffer in tests.
func WithOutput(out capture.Output) Option {
	return func(o *options) { o.output = out }
}

// WithClock overrides the production monotonic clock, for deterministic
// tests (spec.md §8's "Determinism" law).
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clk = clk }
}

// WithCaptureOptions passes additional capture.Option values through to
// capture.New, e.g. capture.WithSeed for a reproducible sampler.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(o *options) { o.captureOpt = append(o.captureOpt, opts...) }
}

// New constructs a Profiler around host, applying opts on top of
// config.Defaults(). It does not start capturing; call Start.
func New(host capture.Host, opts ...Option) *Profiler {
	o := options{
		output: sink.Stdout(),
		clk:    clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.cfgSet {
		o.cfg = config.Defaults()
	}

	c := capture.New(o.cfg, host, o.clk, o.output, o.captureOpt...)
	return &Profiler{capture: c, enabled: o.cfg.Enabled}
}

// Default constructs a Profiler around host using config.Defaults() and a
// stdout sink, the zero-configuration entry point most callers want.
func Default(host capture.Host) *Profiler {
	return New(host)
}

// Start installs hooks and begins the Idle -> Running-Paused transition
// (spec.md §4.3). Returns false without effect if the underlying
// config.Config has Enabled == false, or if already running.
func (p *Profiler) Start() bool {
	if !p.enabled {
		return false
	}
	return p.capture.Start()
}

// Stop uninstalls hooks and discards any in-flight interval. Returns false
// without effect if not running.
func (p *Profiler) Stop() bool {
	return p.capture.Stop()
}

// Running reports whether the underlying capture.Capture currently has
// hooks installed.
func (p *Profiler) Running() bool { return p.capture.Running() }

// Capture exposes the underlying engine for callers that need its fuller
// accessor surface (Switches, Samples, Stalls, ID, ...).
func (p *Profiler) Capture() *capture.Capture { return p.capture }
