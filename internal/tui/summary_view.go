package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Sourjya261-BB/Jira-Router/internal/format"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
)

// maxBarChars is the maximum character width for bar segments.
const maxBarChars = 40

// sparklineWidth is the width of the run history sparklines.
const sparklineWidth = 24

// sparkline characters from lowest to highest.
var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Partial block characters for sub-character resolution (1/8 to 8/8).
var partialBlocks = []string{"▏", "▎", "▍", "▌", "▋", "▊", "▉", "█"}

// barEntry represents a single row of a horizontal bar chart.
type barEntry struct {
	Label string
	Count int
	Style lipgloss.Style
}

// RenderRunSummary renders the outcome of one export run with a per-type bar
// chart, followed by trends over history when more than one run is known.
// history is ordered oldest first.
func RenderRunSummary(run stats.Snapshot, history []stats.Snapshot) string {
	var lines []string

	title := fmt.Sprintf("Run %s", run.RunID)
	lines = append(lines, "  "+summaryTitleStyle.Render(title)+"  "+
		summaryDimStyle.Render(format.Elapsed(time.Duration(run.DurationSecs*float64(time.Second)))))
	lines = append(lines, fmt.Sprintf("    %d of %d issues written across %d pages", run.Written, run.Total, run.Pages))

	types := slices.Sorted(maps.Keys(run.ByType))
	entries := make([]barEntry, 0, len(types))
	for i, t := range types {
		entries = append(entries, barEntry{Label: t, Count: run.ByType[t], Style: barStyles[i%len(barStyles)]})
	}
	lines = append(lines, "")
	lines = append(lines, renderBars(entries, maxBarChars)...)

	if run.Partial() {
		offsets := make([]string, len(run.FailedOffsets))
		for i, o := range run.FailedOffsets {
			offsets[i] = fmt.Sprint(o)
		}
		lines = append(lines, "", warnStyle.Render("    missing offsets: "+strings.Join(offsets, ", ")))
	}

	if len(history) > 1 {
		lines = append(lines, "", renderTrends(history))
	}

	return strings.Join(lines, "\n") + "\n"
}

func renderBars(entries []barEntry, barWidth int) []string {
	maxCount := 0
	maxLabel := 0
	for _, e := range entries {
		maxCount = max(maxCount, e.Count)
		maxLabel = max(maxLabel, format.DisplayWidth(e.Label))
	}
	if maxCount == 0 {
		return []string{summaryDimStyle.Render("    no issues")}
	}

	bw := min(barWidth, maxBarChars)
	bw = max(bw, 4)

	var lines []string
	for _, e := range entries {
		fracWidth := float64(e.Count) / float64(maxCount) * float64(bw)
		fullBlocks := int(fracWidth)
		remainder := fracWidth - float64(fullBlocks)

		bar := strings.Repeat("█", fullBlocks)
		if remainder >= 0.125 {
			bar += partialBlocks[min(int(remainder*8), 7)]
		}
		if bar == "" {
			bar = partialBlocks[0]
		}

		label := format.PadRight(e.Label, format.DisplayWidth(e.Label), maxLabel)
		lines = append(lines, fmt.Sprintf("    %s  %s  %d", label, e.Style.Render(bar), e.Count))
	}
	return lines
}

func renderTrends(history []stats.Snapshot) string {
	const labelCol = 10

	lines := []string{"  " + summaryTitleStyle.Render("Trends") + "  " +
		summaryDimStyle.Render(fmt.Sprintf("(%d runs)", len(history)))}

	latest := history[len(history)-1]
	series := []struct {
		label  string
		value  func(stats.Snapshot) float64
		latest string
	}{
		{"Written", func(s stats.Snapshot) float64 { return float64(s.Written) }, fmt.Sprint(latest.Written)},
		{"Missing", func(s stats.Snapshot) float64 { return float64(len(s.FailedOffsets)) }, fmt.Sprint(len(latest.FailedOffsets))},
		{"Duration", func(s stats.Snapshot) float64 { return s.DurationSecs },
			format.Elapsed(time.Duration(latest.DurationSecs * float64(time.Second)))},
	}

	for _, sr := range series {
		values := make([]float64, len(history))
		for i, s := range history {
			values[i] = sr.value(s)
		}
		lines = append(lines, fmt.Sprintf("    %-*s%s  %s",
			labelCol, sr.label,
			sparkStyle.Render(renderSparkline(values, sparklineWidth)),
			summaryDimStyle.Render(sr.latest)))
	}
	return strings.Join(lines, "\n")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	minVal, maxVal := slices.Min(values), slices.Max(values)
	resampled := resampleValues(values, width)

	valRange := maxVal - minVal
	if valRange == 0 {
		return strings.Repeat(string(sparkBlocks[3]), len(resampled))
	}

	var b strings.Builder
	for _, v := range resampled {
		idx := int((v - minVal) / valRange * float64(len(sparkBlocks)-1))
		b.WriteRune(sparkBlocks[min(idx, len(sparkBlocks)-1)])
	}
	return b.String()
}

// resampleValues averages values into width buckets.
func resampleValues(values []float64, width int) []float64 {
	if len(values) <= width {
		return values
	}

	result := make([]float64, width)
	step := float64(len(values)) / float64(width)
	for i := range width {
		start := int(float64(i) * step)
		end := min(int(float64(i+1)*step), len(values))
		if start >= end {
			if start < len(values) {
				result[i] = values[start]
			}
			continue
		}
		sum := 0.0
		for j := start; j < end; j++ {
			sum += values[j]
		}
		result[i] = sum / float64(end-start)
	}
	return result
}
