package report

import (
	"fmt"
	"io"
	"strings"
)

// dim wraps s in the ANSI "faint" attribute used for skip/filter markers.
func dim(s string) string { return "\x1b[2m" + s + "\x1b[0m" }

// bold wraps s in the ANSI "bold" attribute used to highlight expensive frames.
func bold(s string) string { return "\x1b[1m" + s + "\x1b[0m" }

// RenderTTY writes iv as human-readable text: one line per surviving call,
// tab-indented to its reported depth, with skip/filter markers dimmed and
// expensive frames bolded, per spec.md §4.4.
func RenderTTY(w io.Writer, iv Interval) error {
	if _, err := fmt.Fprintf(w, "stall: duration=%s start=%.3fs switches=%d samples=%d stalls=%d\n",
		iv.Duration, iv.StartTime.Seconds(), iv.Switches, iv.Samples, iv.Stalls); err != nil {
		return err
	}

	for _, c := range iv.Calls {
		if c.Skipped > 0 {
			indent := strings.Repeat("\t", max(c.Nesting-1, 0))
			if _, err := fmt.Fprintf(w, "%s%s\n", indent, dim(fmt.Sprintf("... skipped %d nested calls ...", c.Skipped))); err != nil {
				return err
			}
		}

		line := fmt.Sprintf("%s%s:%d\t%s\t%s#%s\t%.6fs\tT+%.3fs",
			strings.Repeat("\t", c.Nesting), c.Path, c.Line, c.Kind, c.Class, c.Method,
			c.Duration.Seconds(), c.Offset.Seconds())
		if c.Expensive {
			line = bold(line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}

		if c.Filtered > 0 {
			indent := strings.Repeat("\t", c.Nesting+1)
			if _, err := fmt.Fprintf(w, "%s%s\n", indent, dim(fmt.Sprintf("... filtered %d direct calls ...", c.Filtered))); err != nil {
				return err
			}
		}
	}

	return nil
}
