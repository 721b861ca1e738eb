// Package report renders the final rolled-up human-readable summary of a
// harness run: per-phase request stats, per-phase and full-protocol
// execution stats, and an optional worker-health section. Grounded on
// output.py's OutputHelpers/Table/ColumnGroup, reborn with Go's
// text/tabwriter in place of the original's hand-rolled box-drawing layout
// (see DESIGN.md).
package report

import "fmt"

// FormatDuration renders seconds using the same unit-scaling ladder as
// output.py's OutputHelpers.format_duration: ns below 1µs, µs below 1ms, ms
// below 1s, then s/m/h with one decimal place.
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 0.000001:
		return fmt.Sprintf("%dns", round(seconds*1_000_000_000))
	case seconds < 0.001:
		return fmt.Sprintf("%dµs", round(seconds*1_000_000))
	case seconds < 1:
		return fmt.Sprintf("%dms", round(seconds*1_000))
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fh", seconds/3600)
	}
}

func round(f float64) int64 {
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// FormatCount pluralizes a count the way output.py's OutputHelpers.format_count
// does: singular form for exactly 1, plural otherwise.
func FormatCount(n int64, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// formatOptionalDuration renders "--" for an absent sample, matching
// Table.times's handling of None cells.
func formatOptionalDuration(seconds float64, present bool) string {
	if !present {
		return "--"
	}
	return FormatDuration(seconds)
}

// formatOptionalPercent renders "--" for an absent sample, matching
// Table.percents's handling of None cells.
func formatOptionalPercent(ratio float64, present bool) string {
	if !present {
		return "--"
	}
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// formatOptionalRate renders "--" for a zero-denominator rate.
func formatOptionalRate(rate float64, present bool) string {
	if !present {
		return "--"
	}
	return fmt.Sprintf("%.1f", rate)
}
