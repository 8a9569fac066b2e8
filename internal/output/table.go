package output

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/Sourjya261-BB/Jira-Router/internal/evaluate"
	"github.com/Sourjya261-BB/Jira-Router/internal/format"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
)

// Column widths for the evaluation table.
const (
	colKey       = 12
	colSummary   = 44
	colPredicted = 18
	colActual    = 18
)

// Column widths for the runs table.
const (
	colWhen    = 5
	colRun     = 8
	colCount   = 7
	colTypes   = 32
	colElapsed = 7
)

// TableFormatter formats output as a terminal table
type TableFormatter struct {
	Server string
	Now    func() time.Time
}

// hyperlink creates a clickable terminal hyperlink using OSC 8
// Format: \033]8;;URL\033\\TEXT\033]8;;\033\\
func hyperlink(text, url string) string {
	if url == "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		return text
	}
	return fmt.Sprintf("\033]8;;%s\033\\%s\033]8;;\033\\", url, text)
}

func colorOutcome(o format.Outcome) string {
	switch o {
	case format.OutcomeCorrect:
		return color.GreenString(o.Icon())
	case format.OutcomeIncorrect:
		return color.RedString(o.Icon())
	}
	return color.YellowString(o.Icon())
}

// FormatReport outputs an evaluation report as a table
func (f *TableFormatter) FormatReport(r *evaluate.Report, w io.Writer) error {
	if r.Total() == 0 {
		fmt.Fprintln(w, "No samples evaluated.")
		return nil
	}

	bold := color.New(color.Bold)
	header := fmt.Sprintf("   %s  %s  %s  %s",
		format.Cell("KEY", colKey),
		format.Cell("SUMMARY", colSummary),
		format.Cell("PREDICTED", colPredicted),
		"ACTUAL",
	)
	_, _ = bold.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("─", colKey+colSummary+colPredicted+colActual+9))

	for _, res := range r.Results {
		outcome := format.OutcomeOf(res.Correct, res.Err)

		predicted := res.Predicted
		if res.Err != nil {
			predicted = "error"
		}
		predictedCell := format.Cell(predicted, colPredicted)
		switch outcome {
		case format.OutcomeIncorrect:
			predictedCell = color.RedString(predictedCell)
		case format.OutcomeError:
			predictedCell = color.YellowString(predictedCell)
		}

		key := format.Cell(res.Key, colKey)
		fmt.Fprintf(w, " %s %s  %s  %s  %s\n",
			colorOutcome(outcome),
			hyperlink(key, browseURL(f.Server, res.Key)),
			format.Cell(res.Summary, colSummary),
			predictedCell,
			format.Cell(res.Actual, colActual),
		)
	}

	for _, res := range r.Results {
		if res.Err != nil {
			label := res.Key
			if label == "" {
				label, _ = format.Truncate(format.SingleLine(res.Summary), 30)
			}
			fmt.Fprintf(w, "%s %s: %v\n", color.YellowString(format.ErrorIcon), label, res.Err)
		}
	}

	printAccuracy(r, w)
	return nil
}

func printAccuracy(r *evaluate.Report, w io.Writer) {
	fmt.Fprintln(w)
	pct := fmt.Sprintf("%.1f%%", r.Accuracy()*100)
	switch {
	case r.Accuracy() >= 0.8:
		pct = color.GreenString(pct)
	case r.Accuracy() >= 0.5:
		pct = color.YellowString(pct)
	default:
		pct = color.RedString(pct)
	}
	line := fmt.Sprintf("Accuracy: %s (%d/%d correct)", pct, r.Correct, r.Total())
	if r.Failed > 0 {
		line += fmt.Sprintf(", %d failed", r.Failed)
	}
	fmt.Fprintln(w, line)
}

// FormatRuns outputs export run history as a table, newest first.
func (f *TableFormatter) FormatRuns(runs []stats.Snapshot, w io.Writer) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No export runs recorded.")
		return nil
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	bold := color.New(color.Bold)
	header := fmt.Sprintf("%s  %s  %s  %s  %s  %s  %s",
		format.Cell("AGE", colWhen),
		format.Cell("RUN", colRun),
		format.Cell("TOTAL", colCount),
		format.Cell("WRITTEN", colCount),
		format.Cell("TYPES", colTypes),
		format.Cell("TIME", colElapsed),
		"STATUS",
	)
	_, _ = bold.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("─", colWhen+colRun+2*colCount+colTypes+colElapsed+18))

	for i := len(runs) - 1; i >= 0; i-- {
		s := runs[i]
		status := color.GreenString("complete")
		if s.Partial() {
			status = color.YellowString("partial (%d pages missing)", len(s.FailedOffsets))
		}
		fmt.Fprintf(w, "%s  %s  %s  %s  %s  %s  %s\n",
			format.Cell(format.Ago(s.Timestamp, now()), colWhen),
			format.Cell(s.RunID, colRun),
			format.Cell(fmt.Sprint(s.Total), colCount),
			format.Cell(fmt.Sprint(s.Written), colCount),
			format.Cell(typeCounts(s.ByType), colTypes),
			format.Cell(format.Elapsed(time.Duration(s.DurationSecs*float64(time.Second))), colElapsed),
			status,
		)
	}
	return nil
}

// typeCounts renders per-type counts in a stable order: "Bug 90, Transient Bug 30".
func typeCounts(byType map[string]int) string {
	parts := make([]string, 0, len(byType))
	for _, t := range slices.Sorted(maps.Keys(byType)) {
		parts = append(parts, fmt.Sprintf("%s %d", t, byType[t]))
	}
	return strings.Join(parts, ", ")
}
