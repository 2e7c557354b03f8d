// Command fiberprofiler-demo wires the fiberprofiler facade to an
// in-process fake event generator and prints stall reports to stdout, for
// manual smoke testing of the capture engine without a real tracing
// backend. Not a production daemon.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/fiberprofiler/fiberprofiler"
	"github.com/fiberprofiler/fiberprofiler/capture"
	"github.com/fiberprofiler/fiberprofiler/config"
)

func main() {
	os.Exit(int(run()))
}

func run() exitCode {
	args, err := parseArgs()
	if err != nil {
		log.Errorf("failed to parse arguments: %v", err)
		return exitParseError
	}

	if args.verboseMode {
		log.SetLevel(log.DebugLevel)
	}

	cfg := config.Config{
		Enabled:         true,
		StallThreshold:  args.stallThreshold,
		FilterThreshold: args.filterThreshold,
		TrackCalls:      args.trackCalls,
		SampleRate:      args.sampleRate,
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return exitFailure
	}

	host := newFakeHost(args.seed)
	p := fiberprofiler.New(host, fiberprofiler.WithConfig(cfg),
		fiberprofiler.WithCaptureOptions(capture.WithSeed(args.seed, args.seed|1)))

	log.WithField("capture_id", p.Capture().ID()).Info("fiberprofiler-demo: starting capture")
	if !p.Start() {
		log.Error("fiberprofiler-demo: capture did not start (disabled?)")
		return exitFailure
	}
	defer p.Stop()

	host.Run(args.switches)

	log.WithField("switches", p.Capture().Switches()).
		WithField("samples", p.Capture().Samples()).
		WithField("stalls", p.Capture().Stalls()).
		Info("fiberprofiler-demo: done")
	return exitSuccess
}

type exitCode int

const (
	exitSuccess    exitCode = 0
	exitFailure    exitCode = 1
	exitParseError exitCode = 2
)
