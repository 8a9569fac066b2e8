package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Sourjya261-BB/Jira-Router/internal/evaluate"
	"github.com/Sourjya261-BB/Jira-Router/internal/format"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

// JSONResult is the wire form of a single evaluated sample.
type JSONResult struct {
	Key       string `json:"key,omitempty"`
	Summary   string `json:"summary"`
	Predicted string `json:"predicted,omitempty"`
	Actual    string `json:"actual"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

// JSONReport wraps the results with their totals.
type JSONReport struct {
	Total    int          `json:"total"`
	Correct  int          `json:"correct"`
	Failed   int          `json:"failed"`
	Accuracy float64      `json:"accuracy"`
	Results  []JSONResult `json:"results"`
}

// FormatReport outputs an evaluation report as JSON
func (f *JSONFormatter) FormatReport(r *evaluate.Report, w io.Writer) error {
	out := JSONReport{
		Total:    r.Total(),
		Correct:  r.Correct,
		Failed:   r.Failed,
		Accuracy: r.Accuracy(),
		Results:  make([]JSONResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		jr := JSONResult{
			Key:       res.Key,
			Summary:   res.Summary,
			Predicted: res.Predicted,
			Actual:    res.Actual,
			Outcome:   format.OutcomeOf(res.Correct, res.Err).String(),
		}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		out.Results = append(out.Results, jr)
	}
	return f.encode(w, out)
}

// JSONRun is the wire form of an export run.
type JSONRun struct {
	RunID         string         `json:"run"`
	Timestamp     time.Time      `json:"timestamp"`
	Total         int            `json:"total"`
	Pages         int            `json:"pages"`
	Written       int            `json:"written"`
	ByType        map[string]int `json:"byType,omitempty"`
	FailedOffsets []int          `json:"failedOffsets,omitempty"`
	Partial       bool           `json:"partial"`
	Duration      string         `json:"duration"`
}

// FormatRuns outputs export run history as JSON
func (f *JSONFormatter) FormatRuns(runs []stats.Snapshot, w io.Writer) error {
	out := make([]JSONRun, 0, len(runs))
	for _, s := range runs {
		out = append(out, JSONRun{
			RunID:         s.RunID,
			Timestamp:     s.Timestamp,
			Total:         s.Total,
			Pages:         s.Pages,
			Written:       s.Written,
			ByType:        s.ByType,
			FailedOffsets: s.FailedOffsets,
			Partial:       s.Partial(),
			Duration:      format.Elapsed(time.Duration(s.DurationSecs * float64(time.Second))),
		})
	}
	return f.encode(w, out)
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}
