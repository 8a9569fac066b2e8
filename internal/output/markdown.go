package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sourjya261-BB/Jira-Router/internal/evaluate"
	"github.com/Sourjya261-BB/Jira-Router/internal/format"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
)

// MarkdownFormatter formats output as Markdown
type MarkdownFormatter struct {
	Server string
}

// FormatReport outputs an evaluation report as Markdown
func (f *MarkdownFormatter) FormatReport(r *evaluate.Report, w io.Writer) error {
	fmt.Fprintln(w, "# Evaluation Report")
	fmt.Fprintf(w, "\n*Accuracy: %.1f%% (%d/%d correct", r.Accuracy()*100, r.Correct, r.Total())
	if r.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", r.Failed)
	}
	fmt.Fprintln(w, ")*")
	fmt.Fprintln(w)

	if r.Total() == 0 {
		return nil
	}

	fmt.Fprintln(w, "| | Key | Summary | Predicted Team | Actual Team |")
	fmt.Fprintln(w, "|---|-----|---------|----------------|-------------|")
	for _, res := range r.Results {
		predicted := res.Predicted
		if res.Err != nil {
			predicted = "_" + escapeCell(res.Err.Error()) + "_"
		} else {
			predicted = escapeCell(predicted)
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			format.OutcomeOf(res.Correct, res.Err).Icon(),
			f.issueLink(res.Key),
			escapeCell(res.Summary),
			predicted,
			escapeCell(res.Actual),
		)
	}
	return nil
}

func (f *MarkdownFormatter) issueLink(key string) string {
	if url := browseURL(f.Server, key); url != "" {
		return fmt.Sprintf("[%s](%s)", key, url)
	}
	return key
}

// FormatRuns outputs export run history as Markdown, newest first.
func (f *MarkdownFormatter) FormatRuns(runs []stats.Snapshot, w io.Writer) error {
	fmt.Fprintln(w, "# Export Runs")
	fmt.Fprintf(w, "\n*%d runs recorded*\n\n", len(runs))
	if len(runs) == 0 {
		return nil
	}

	fmt.Fprintln(w, "| Started | Run | Total | Written | Types | Duration | Missing Pages |")
	fmt.Fprintln(w, "|---------|-----|-------|---------|-------|----------|---------------|")
	for i := len(runs) - 1; i >= 0; i-- {
		s := runs[i]
		missing := "-"
		if s.Partial() {
			offsets := make([]string, len(s.FailedOffsets))
			for j, o := range s.FailedOffsets {
				offsets[j] = fmt.Sprint(o)
			}
			missing = strings.Join(offsets, ", ")
		}
		fmt.Fprintf(w, "| %s | `%s` | %d | %d | %s | %s | %s |\n",
			s.Timestamp.UTC().Format(time.RFC3339),
			s.RunID,
			s.Total,
			s.Written,
			escapeCell(typeCounts(s.ByType)),
			format.Elapsed(time.Duration(s.DurationSecs*float64(time.Second))),
			missing,
		)
	}
	return nil
}

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	return strings.ReplaceAll(format.SingleLine(s), "|", `\|`)
}
