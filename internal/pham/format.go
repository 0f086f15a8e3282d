package pham

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// formatCount renders a counter compactly: 950, 1.2k, 50k, 1.5m. Trailing
// ".0" is trimmed so round thousands read as "1k", not "1.0k".
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1e6)) + "m"
	case n >= 1000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1e3)) + "k"
	default:
		return strconv.Itoa(n)
	}
}

// formatAge buckets an age in weeks into a human phrase: whole years from
// five years up, fractional years from two, months from eight weeks, and
// weeks below that.
func formatAge(weeks float64) string {
	years := weeks / 52
	switch {
	case years >= 5:
		return fmt.Sprintf("%d years", int(math.Round(years)))
	case years >= 2:
		return trimZero(fmt.Sprintf("%.1f", years)) + " years"
	case weeks >= 8:
		months := int(math.Round(weeks / 52 * 12))
		return fmt.Sprintf("%d %s", months, plural(months, "month"))
	default:
		w := int(math.Round(weeks))
		return fmt.Sprintf("%d %s", w, plural(w, "week"))
	}
}

// formatRatio renders a pace multiplier with one decimal, trimmed.
func formatRatio(r float64) string {
	return trimZero(fmt.Sprintf("%.1f", r))
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
