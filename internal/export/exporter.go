// Package export runs the paginated bulk export of issues to CSV.
package export

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/jira"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/retry"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
)

// PageFetcher retrieves one page of search results.
type PageFetcher interface {
	FetchPage(ctx context.Context, offset, pageSize int) (*jira.SearchResult, error)
}

// Recorder stores a snapshot of a finished run.
type Recorder interface {
	Append(snap stats.Snapshot) error
}

// Stage identifies a phase of the export.
type Stage int

const (
	StageFirstPage Stage = iota // fetching offset 0 and learning the total
	StageFetch                  // fetching remaining offsets chunk by chunk
	StageRetry                  // serial retry passes over failed offsets
	StageTally                  // re-reading the persisted file
)

// Progress describes the state of a stage.
type Progress struct {
	Stage    Stage
	Done     int
	Total    int
	Issues   int // matching issues, known once the first page is in
	Written  int
	Failed   int
	Finished bool
	Err      error
}

// ProgressFunc receives progress updates. It may be called from worker
// goroutines.
type ProgressFunc func(Progress)

// Options configures an Exporter.
type Options struct {
	PageSize    int
	MaxWorkers  int
	ChunkSize   int
	RetryPasses int
	RetryDelay  time.Duration

	// Sleep waits before each retry attempt. Nil uses retry.Sleep.
	Sleep retry.SleepFunc

	OnProgress ProgressFunc
	Recorder   Recorder
	Now        func() time.Time
}

// DefaultOptions returns the standard pacing and concurrency settings.
func DefaultOptions() Options {
	return Options{
		PageSize:    constants.DefaultBatchSize,
		MaxWorkers:  constants.DefaultMaxWorkers,
		ChunkSize:   constants.ChunkSize,
		RetryPasses: constants.RetryPasses,
		RetryDelay:  constants.BaseRetryDelay,
	}
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID         string
	Started       time.Time
	Total         int
	Pages         int
	Written       int
	Tally         Tally
	FailedOffsets []int
	Duration      time.Duration

	// Errors joins the last error seen for each permanently failed offset.
	Errors error
}

// Partial reports whether some offsets were never fetched.
func (s *Summary) Partial() bool {
	return len(s.FailedOffsets) > 0
}

// Snapshot converts the summary into a run history record.
func (s *Summary) Snapshot() stats.Snapshot {
	return stats.Snapshot{
		RunID:         s.RunID,
		Timestamp:     s.Started,
		Total:         s.Total,
		Pages:         s.Pages,
		Written:       s.Tally.Total,
		ByType:        s.Tally.ByType,
		FailedOffsets: s.FailedOffsets,
		DurationSecs:  s.Duration.Seconds(),
	}
}

// Exporter orchestrates fetching, checkpointing and retrying.
type Exporter struct {
	fetcher   PageFetcher
	persister *Persister
	opts      Options
}

// New creates an Exporter. Zero-valued options fall back to the defaults. A
// negative RetryPasses disables the retry phase.
func New(fetcher PageFetcher, persister *Persister, opts Options) *Exporter {
	d := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = d.PageSize
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = d.MaxWorkers
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = d.ChunkSize
	}
	if opts.RetryPasses == 0 {
		opts.RetryPasses = d.RetryPasses
	}
	if opts.RetryPasses < 0 {
		opts.RetryPasses = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = d.RetryDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Exporter{fetcher: fetcher, persister: persister, opts: opts}
}

func (e *Exporter) report(p Progress) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(p)
	}
}

// Run performs a full export.
//
// A failure to fetch the first page or to write a checkpoint aborts the run.
// Pages that still fail after the retry passes are listed in the summary and
// do not fail the run.
func (e *Exporter) Run(ctx context.Context) (*Summary, error) {
	start := e.opts.Now()
	sum := &Summary{RunID: uuid.NewString(), Started: start}
	state := NewState()

	e.report(Progress{Stage: StageFirstPage})
	first, err := e.fetcher.FetchPage(ctx, 0, e.opts.PageSize)
	if err != nil {
		e.report(Progress{Stage: StageFirstPage, Finished: true, Err: err})
		return nil, fmt.Errorf("fetching first page: %w", err)
	}
	state.Append(Page{Offset: 0, Issues: first.Issues, Total: first.Total})
	sum.Total = first.Total

	written, err := e.persister.Persist(state)
	if err != nil {
		log.Error("checkpoint failed", "path", e.persister.Path(), "error", err)
		e.report(Progress{Stage: StageFirstPage, Finished: true, Err: err})
		return nil, err
	}
	sum.Written = written
	log.Info("first page fetched", "run", sum.RunID, "total", first.Total, "written", written)
	e.report(Progress{Stage: StageFirstPage, Done: 1, Total: 1, Issues: first.Total, Written: written, Finished: true})

	offsets := Offsets(first.Total, e.opts.PageSize)
	failures, err := e.fetchChunks(ctx, state, offsets, sum)
	if err != nil {
		return nil, err
	}

	failures, err = e.retryFailed(ctx, state, failures, sum)
	if err != nil {
		return nil, err
	}

	e.report(Progress{Stage: StageTally})
	tally, err := e.persister.Tally()
	if err != nil {
		e.report(Progress{Stage: StageTally, Finished: true, Err: err})
		return nil, &PersistenceError{Op: "tally", Path: e.persister.Path(), Err: err}
	}
	e.report(Progress{Stage: StageTally, Done: tally.Total, Total: tally.Total, Finished: true})

	sum.Pages = state.Len()
	sum.Tally = tally
	sum.Duration = e.opts.Now().Sub(start)

	var errs []error
	for _, off := range slices.Sorted(maps.Keys(failures)) {
		sum.FailedOffsets = append(sum.FailedOffsets, off)
		errs = append(errs, failures[off])
	}
	sum.Errors = errors.Join(errs...)

	e.logSummary(sum)
	e.record(sum)

	if ctx.Err() != nil {
		return sum, fmt.Errorf("export interrupted: %w", ctx.Err())
	}
	return sum, nil
}

// fetchChunks fetches offsets in chunks, persisting after each chunk. It
// returns the offsets that failed with their errors.
func (e *Exporter) fetchChunks(ctx context.Context, state *State, offsets []int, sum *Summary) (map[int]error, error) {
	failures := make(map[int]error)
	total := len(offsets)
	if total == 0 {
		e.report(Progress{Stage: StageFetch, Finished: true})
		return failures, nil
	}

	var done atomic.Int32
	e.report(Progress{Stage: StageFetch, Total: total})

	for lo := 0; lo < total; lo += e.opts.ChunkSize {
		chunk := offsets[lo:min(lo+e.opts.ChunkSize, total)]

		var mu sync.Mutex
		chunkFailures := make(map[int]error)

		// A plain group: one failed page must not cancel its siblings.
		var g errgroup.Group
		g.SetLimit(e.opts.MaxWorkers)

		for _, off := range chunk {
			g.Go(func() error {
				res, err := e.fetcher.FetchPage(ctx, off, e.opts.PageSize)
				if err != nil {
					log.Warn("page failed", "offset", off, "error", err)
					mu.Lock()
					chunkFailures[off] = err
					mu.Unlock()
				} else {
					state.Append(Page{Offset: off, Issues: res.Issues, Total: res.Total})
				}
				e.report(Progress{Stage: StageFetch, Done: int(done.Add(1)), Total: total})
				return nil
			})
		}
		// Workers record failures in chunkFailures and never return an error.
		_ = g.Wait()

		for off, err := range chunkFailures {
			failures[off] = err
		}

		written, err := e.persister.Persist(state)
		if err != nil {
			log.Error("checkpoint failed", "path", e.persister.Path(), "error", err)
			e.report(Progress{Stage: StageFetch, Finished: true, Err: err})
			return nil, err
		}
		sum.Written = written
		log.Info("checkpoint", "fetched", int(done.Load()), "of", total, "written", written, "failed", len(failures))
		e.report(Progress{Stage: StageFetch, Done: int(done.Load()), Total: total, Written: written, Failed: len(failures)})
	}

	e.report(Progress{Stage: StageFetch, Done: total, Total: total, Written: sum.Written, Failed: len(failures), Finished: true})
	return failures, nil
}

// retryFailed makes up to RetryPasses serial passes over the failed offsets,
// waiting RetryDelay before each attempt and persisting after each pass.
func (e *Exporter) retryFailed(ctx context.Context, state *State, failures map[int]error, sum *Summary) (map[int]error, error) {
	if len(failures) == 0 || e.opts.RetryPasses == 0 {
		e.report(Progress{Stage: StageRetry, Finished: true, Failed: len(failures)})
		return failures, nil
	}

	policy := retry.Policy{
		Backoff: retry.Constant(e.opts.RetryDelay),
		Sleep:   e.opts.Sleep,
	}

	for pass := 1; pass <= e.opts.RetryPasses && len(failures) > 0; pass++ {
		pending := slices.Sorted(maps.Keys(failures))
		log.Info("retrying failed pages", "pass", pass, "offsets", len(pending))
		e.report(Progress{Stage: StageRetry, Total: len(pending), Failed: len(failures)})

		for i, off := range pending {
			if err := policy.Wait(ctx, pass-1, failures[off]); err != nil {
				break
			}
			res, err := e.fetcher.FetchPage(ctx, off, e.opts.PageSize)
			if err != nil {
				log.Warn("retry failed", "pass", pass, "offset", off, "error", err)
				failures[off] = err
			} else {
				state.Append(Page{Offset: off, Issues: res.Issues, Total: res.Total})
				delete(failures, off)
			}
			e.report(Progress{Stage: StageRetry, Done: i + 1, Total: len(pending), Failed: len(failures)})
		}

		written, err := e.persister.Persist(state)
		if err != nil {
			log.Error("checkpoint failed", "path", e.persister.Path(), "error", err)
			e.report(Progress{Stage: StageRetry, Finished: true, Err: err})
			return nil, err
		}
		sum.Written = written

		if ctx.Err() != nil {
			break
		}
	}

	e.report(Progress{Stage: StageRetry, Finished: true, Written: sum.Written, Failed: len(failures)})
	return failures, nil
}

func (e *Exporter) logSummary(sum *Summary) {
	log.Info("export complete",
		"run", sum.RunID,
		"total", sum.Total,
		"pages", sum.Pages,
		"written", sum.Tally.Total,
		"duration", sum.Duration.Round(time.Millisecond))
	types := slices.Sorted(maps.Keys(sum.Tally.ByType))
	if len(types) == 0 {
		types = constants.DefaultIssueTypes
	}
	for _, t := range types {
		log.Info("issues by type", "type", t, "count", sum.Tally.Count(t))
	}
	if sum.Partial() {
		log.Warn("some pages could not be fetched", "offsets", sum.FailedOffsets)
	}
}

func (e *Exporter) record(sum *Summary) {
	if e.opts.Recorder == nil {
		return
	}
	if err := e.opts.Recorder.Append(sum.Snapshot()); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}
