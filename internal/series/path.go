package series

import (
	"fmt"
	"strconv"
	"strings"
)

// Path renders series as an SVG path fitted into a w by h box with a 2px
// vertical margin. Fewer than two points render as "".
func Path(series []float64, w, h float64) string {
	if len(series) < 2 {
		return ""
	}

	lo, hi := series[0], series[0]
	for _, v := range series[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	var b strings.Builder
	last := float64(len(series) - 1)
	for i, v := range series {
		x := float64(i) / last * w
		y := h - ((v-lo)/span)*(h-4) - 2
		if i == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(formatCoord(x))
		b.WriteByte(' ')
		b.WriteString(formatCoord(y))
	}
	return b.String()
}

// AreaPath closes Path down to the baseline so it can be filled.
func AreaPath(series []float64, w, h float64) string {
	line := Path(series, w, h)
	if line == "" {
		return ""
	}
	return fmt.Sprintf("%s L %s %s L 0 %s Z", line, formatCoord(w), formatCoord(h), formatCoord(h))
}

// SVG renders a standalone sparkline document. Green for advancing, red otherwise.
func SVG(series []float64, w, h float64, positive bool) string {
	stroke := "#ef4444"
	if positive {
		stroke = "#22c55e"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%[1]s" height="%[2]s" viewBox="0 0 %[1]s %[2]s">`, formatCoord(w), formatCoord(h))
	if area := AreaPath(series, w, h); area != "" {
		fmt.Fprintf(&b, `<path d="%s" fill="%s" fill-opacity="0.15" stroke="none"/>`, area, stroke)
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="1.5"/>`, Path(series, w, h), stroke)
	}
	b.WriteString(`</svg>`)
	return b.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
