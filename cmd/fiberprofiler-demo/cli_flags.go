package main

import (
	"flag"
	"os"

	"github.com/peterbourgon/ff/v3"
)

// arguments are the demo binary's command-line flags, parsed with the same
// flag.FlagSet + ff.Parse(..., ff.WithEnvVarPrefix(...)) idiom the teacher's
// cli_flags.go uses, so every flag is also settable through the
// FIBER_PROFILER_* environment prefix.
type arguments struct {
	verboseMode bool

	stallThreshold  float64
	filterThreshold float64
	trackCalls      bool
	sampleRate      float64

	switches int
	seed     uint64
}

func parseArgs() (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("fiberprofiler-demo", flag.ExitOnError)

	fs.BoolVar(&args.verboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verboseMode, "verbose", false, "Enable verbose logging.")

	fs.Float64Var(&args.stallThreshold, "stall-threshold", 0.01,
		"Minimum interval duration, in seconds, rendered as a stall report.")
	fs.Float64Var(&args.filterThreshold, "filter-threshold", 0.001,
		"Tail call-like frames shorter than this, in seconds, are elided.")
	fs.BoolVar(&args.trackCalls, "track-calls", true,
		"Install call/return hooks and build per-interval call trees.")
	fs.Float64Var(&args.sampleRate, "sample-rate", 1.0,
		"Probability in (0,1] that a given interval is captured.")

	fs.IntVar(&args.switches, "switches", 20,
		"Number of synthetic task-switch events the fake host generates before exiting.")
	fs.Uint64Var(&args.seed, "seed", 1,
		"PRNG seed for the sampler and the fake host's synthetic event stream.")

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	return &args, ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("FIBER_PROFILER"))
}
