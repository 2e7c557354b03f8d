package report

import (
	"strconv"
	"strings"
)

// RenderMachine writes iv as the single-line, bit-exact machine format
// described in spec.md §4.4. The encoder is hand-rolled rather than built on
// encoding/json because the grammar fixes both field order and the exact
// number of fractional digits in every numeric field, neither of which
// encoding/json guarantees.
func RenderMachine(iv Interval) []byte {
	var b strings.Builder
	b.Grow(256 + 128*len(iv.Calls))

	b.WriteString(`{"start_time":`)
	b.WriteString(fixed(iv.StartTime.Seconds(), 3))
	b.WriteString(`,"duration":`)
	b.WriteString(fixed(iv.Duration.Seconds(), 6))
	b.WriteString(`,"calls":[`)
	for i, c := range iv.Calls {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCall(&b, c)
	}
	b.WriteByte(']')
	if iv.Skipped > 0 {
		b.WriteString(`,"skipped":`)
		b.WriteString(strconv.FormatUint(uint64(iv.Skipped), 10))
	}
	b.WriteString(`,"switches":`)
	b.WriteString(strconv.FormatUint(iv.Switches, 10))
	b.WriteString(`,"samples":`)
	b.WriteString(strconv.FormatUint(iv.Samples, 10))
	b.WriteString(`,"stalls":`)
	b.WriteString(strconv.FormatUint(iv.Stalls, 10))
	b.WriteString("}\n")

	return []byte(b.String())
}

func writeCall(b *strings.Builder, c Call) {
	b.WriteString(`{"path":`)
	b.WriteString(strconv.Quote(c.Path))
	b.WriteString(`,"line":`)
	b.WriteString(strconv.Itoa(c.Line))
	b.WriteString(`,"class":`)
	b.WriteString(strconv.Quote(c.Class))
	b.WriteString(`,"method":`)
	b.WriteString(strconv.Quote(c.Method))
	b.WriteString(`,"duration":`)
	b.WriteString(fixed(c.Duration.Seconds(), 6))
	b.WriteString(`,"offset":`)
	b.WriteString(fixed(c.Offset.Seconds(), 3))
	b.WriteString(`,"nesting":`)
	b.WriteString(strconv.Itoa(c.Nesting))
	b.WriteString(`,"skipped":`)
	b.WriteString(strconv.FormatUint(uint64(c.Skipped), 10))
	b.WriteString(`,"filtered":`)
	b.WriteString(strconv.FormatUint(uint64(c.Filtered), 10))
	b.WriteByte('}')
}

func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
