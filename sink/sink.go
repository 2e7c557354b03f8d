// Package sink implements the output sink the capture engine renders
// finished reports to: a thin wrapper over an io.Writer plus the is-tty
// classification spec.md §4.5 uses to pick a renderer.
//
// TTY detection goes through golang.org/x/sys/unix directly, the same
// low-level POSIX access the teacher reaches for itself (see rlimit/ and
// clock/) rather than a higher-level terminal library.
package sink

import (
	"io"
	"os"
)

// Sink adapts an io.Writer plus a fixed is-tty flag to the capture.Output
// interface.
type Sink struct {
	w     io.Writer
	isTTY bool
}

// Wrap builds a Sink around w, with isTTY fixed at construction time. Use
// this when the destination isn't an *os.File (a bytes.Buffer in tests, a
// network connection, a pipe) and the tty-ness is known some other way.
func Wrap(w io.Writer, isTTY bool) Sink {
	return Sink{w: w, isTTY: isTTY}
}

// File builds a Sink around f, auto-detecting tty-ness via an ioctl on its
// file descriptor (spec.md §4.5: "If the sink's underlying descriptor is a
// TTY, the engine uses the TTY renderer; otherwise the machine renderer").
func File(f *os.File) Sink {
	return Sink{w: f, isTTY: isTerminal(f.Fd())}
}

// Stdout builds a Sink around os.Stdout.
func Stdout() Sink { return File(os.Stdout) }

// Stderr builds a Sink around os.Stderr.
func Stderr() Sink { return File(os.Stderr) }

// Write implements io.Writer.
func (s Sink) Write(p []byte) (int, error) { return s.w.Write(p) }

// IsTTY reports whether this sink was constructed against a terminal
// descriptor.
func (s Sink) IsTTY() bool { return s.isTTY }
