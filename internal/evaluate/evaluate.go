// Package evaluate scores the classifier against exported issues whose
// resolving team is already known.
package evaluate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/spf13/afero"

	"github.com/Sourjya261-BB/Jira-Router/internal/classify"
	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
)

// Required columns of an evaluation file.
const (
	ColumnSummary     = "Summary"
	ColumnDescription = "Description"
	ColumnFixedBy     = "Fixed By"
	ColumnKey         = "Issue Key"
)

var (
	// ErrMissingColumns is returned when the file lacks a required column.
	ErrMissingColumns = errors.New("CSV must contain 'Summary', 'Description', and 'Fixed By' columns")

	// ErrSampleSize is returned for a sample size outside 1..MaxSamples.
	ErrSampleSize = fmt.Errorf("number of samples must be between 1 and %d", constants.MaxSamples)
)

// Sample is one labelled ticket.
type Sample struct {
	Key         string
	Summary     string
	Description string
	Actual      string
}

// Result is the prediction made for a sample.
type Result struct {
	Sample
	Predicted string
	Correct   bool
	Err       error
}

// Report aggregates the results of an evaluation.
type Report struct {
	Results []Result
	Correct int
	Failed  int
}

// Total returns the number of evaluated samples.
func (r *Report) Total() int {
	return len(r.Results)
}

// Accuracy returns the share of correct predictions, or 0 for an empty report.
func (r *Report) Accuracy() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Correct) / float64(len(r.Results))
}

// Load reads labelled samples from a CSV export.
func Load(fs afero.Fs, path string) ([]Sample, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range []string{ColumnSummary, ColumnDescription, ColumnFixedBy} {
		if _, ok := cols[name]; !ok {
			return nil, ErrMissingColumns
		}
	}
	keyCol, hasKey := cols[ColumnKey]

	var samples []Sample
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		s := Sample{
			Summary:     rec[cols[ColumnSummary]],
			Description: rec[cols[ColumnDescription]],
			Actual:      rec[cols[ColumnFixedBy]],
		}
		if hasKey {
			s.Key = rec[keyCol]
		}
		samples = append(samples, s)
	}

	log.Debug("loaded samples", "path", path, "count", len(samples))
	return samples, nil
}

// Draw picks n distinct samples at random. When fewer than n are available
// all of them are returned in random order.
func Draw(samples []Sample, n int, rng *rand.Rand) ([]Sample, error) {
	if n < 1 || n > constants.MaxSamples {
		return nil, ErrSampleSize
	}
	n = min(n, len(samples))

	out := make([]Sample, 0, n)
	for _, i := range rng.Perm(len(samples))[:n] {
		out = append(out, samples[i])
	}
	return out, nil
}

// NewRand returns a random source seeded with seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Evaluate classifies every sample and compares the prediction with the
// recorded team. Samples with a blank description are still classified. A
// failed prediction counts as incorrect.
func Evaluate(ctx context.Context, c classify.Classifier, samples []Sample) *Report {
	report := &Report{Results: make([]Result, 0, len(samples))}
	for _, s := range samples {
		res := Result{Sample: s}
		res.Predicted, res.Err = c.Classify(ctx, s.Summary, s.Description)
		if res.Err != nil {
			log.Warn("prediction failed", "key", s.Key, "error", res.Err)
			report.Failed++
		} else if res.Predicted == s.Actual {
			res.Correct = true
			report.Correct++
		}
		report.Results = append(report.Results, res)
	}
	return report
}
