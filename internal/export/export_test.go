package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/jira"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/normalize"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
)

const (
	teamField = "customfield_14600"
	outPath   = "/data/issues.csv"
)

func bug(i int) jira.Issue {
	issueType := "Bug"
	if i%4 == 0 {
		issueType = "Transient Bug"
	}
	return jira.Issue{
		Key: fmt.Sprintf("BUG-%d", i),
		Fields: jira.Fields{
			Summary:   fmt.Sprintf("issue %d", i),
			IssueType: &jira.IssueType{Name: issueType},
			Custom:    map[string]json.RawMessage{teamField: json.RawMessage(`{"value":"Core"}`)},
		},
	}
}

// fakeFetcher serves total synthetic issues. failures maps an offset to the
// number of times it fails before succeeding; a negative count fails forever.
type fakeFetcher struct {
	mu       sync.Mutex
	total    int
	failures map[int]int
	calls    map[int]int

	inFlight    int
	maxInFlight int
}

func newFakeFetcher(total int, failures map[int]int) *fakeFetcher {
	if failures == nil {
		failures = map[int]int{}
	}
	return &fakeFetcher{total: total, failures: failures, calls: map[int]int{}}
}

func (f *fakeFetcher) FetchPage(_ context.Context, offset, pageSize int) (*jira.SearchResult, error) {
	f.mu.Lock()
	f.calls[offset]++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	n, failing := f.failures[offset]
	if failing && n > 0 {
		f.failures[offset] = n - 1
	}
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if failing && n != 0 {
		return nil, &jira.FetchExhaustedError{Offset: offset, Attempts: 5, Err: errors.New("503")}
	}

	res := &jira.SearchResult{StartAt: offset, MaxResults: pageSize, Total: f.total}
	for i := offset; i < min(offset+pageSize, f.total); i++ {
		res.Issues = append(res.Issues, bug(i))
	}
	return res, nil
}

func (f *fakeFetcher) offsetsCalled() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for off := range f.calls {
		out = append(out, off)
	}
	slices.Sort(out)
	return out
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

type memRecorder struct {
	snaps []stats.Snapshot
}

func (m *memRecorder) Append(s stats.Snapshot) error {
	m.snaps = append(m.snaps, s)
	return nil
}

func newPersister(fs afero.Fs, dedupe bool) *Persister {
	return NewPersister(fs, outPath, normalize.New(teamField, nil), dedupe)
}

func TestOffsets(t *testing.T) {
	tests := []struct {
		total, pageSize int
		want            []int
	}{
		{120, 50, []int{50, 100}},
		{100, 50, []int{50}},
		{50, 50, nil},
		{0, 50, nil},
		{10, 0, nil},
	}
	for _, tt := range tests {
		if got := Offsets(tt.total, tt.pageSize); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Offsets(%d, %d) = %v, want %v", tt.total, tt.pageSize, got, tt.want)
		}
	}
}

func TestRun_FetchesEveryOffset(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := newFakeFetcher(120, nil)
	rec := &memRecorder{}

	e := New(fetcher, newPersister(fs, true), Options{PageSize: 50, Sleep: (&sleepRecorder{}).sleep, Recorder: rec})
	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got := fetcher.offsetsCalled(); !reflect.DeepEqual(got, []int{0, 50, 100}) {
		t.Errorf("offsets fetched = %v, want [0 50 100]", got)
	}
	if sum.Total != 120 || sum.Pages != 3 || sum.Tally.Total != 120 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.Partial() {
		t.Errorf("expected a complete run, failed offsets %v", sum.FailedOffsets)
	}
	if got := sum.Tally.Count("Transient Bug"); got != 30 {
		t.Errorf("transient bugs = %d, want 30", got)
	}
	if got := sum.Tally.Count("Bug"); got != 90 {
		t.Errorf("bugs = %d, want 90", got)
	}
	if sum.RunID == "" {
		t.Error("expected a run id")
	}
	if len(rec.snaps) != 1 || rec.snaps[0].RunID != sum.RunID || rec.snaps[0].Written != 120 {
		t.Errorf("unexpected recorded snapshots %+v", rec.snaps)
	}
}

func TestRun_RetriesFailedOffsets(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := newFakeFetcher(120, map[int]int{50: 1})
	sl := &sleepRecorder{}

	e := New(fetcher, newPersister(fs, true), Options{PageSize: 50, RetryDelay: 10 * time.Second, Sleep: sl.sleep})
	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Partial() || sum.Tally.Total != 120 {
		t.Errorf("expected offset 50 to be recovered, got %+v", sum)
	}
	if fetcher.calls[50] != 2 {
		t.Errorf("offset 50 fetched %d times, want 2", fetcher.calls[50])
	}
	if !reflect.DeepEqual(sl.waits, []time.Duration{10 * time.Second}) {
		t.Errorf("retry waits = %v, want one 10s wait", sl.waits)
	}
}

func TestRun_PermanentFailureIsPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := newFakeFetcher(120, map[int]int{100: -1})
	sl := &sleepRecorder{}

	e := New(fetcher, newPersister(fs, true), Options{PageSize: 50, Sleep: sl.sleep})
	sum, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("a failed page must not fail the run: %v", err)
	}
	if !reflect.DeepEqual(sum.FailedOffsets, []int{100}) {
		t.Errorf("FailedOffsets = %v, want [100]", sum.FailedOffsets)
	}
	if !errors.Is(sum.Errors, jira.ErrFetchExhausted) {
		t.Errorf("Errors = %v, want fetch exhausted", sum.Errors)
	}
	if fetcher.calls[100] != 4 {
		t.Errorf("offset 100 fetched %d times, want 1 + 3 retry passes", fetcher.calls[100])
	}
	if len(sl.waits) != 3 {
		t.Errorf("expected 3 retry waits, got %d", len(sl.waits))
	}
	if sum.Tally.Total != 100 {
		t.Errorf("written = %d, want 100", sum.Tally.Total)
	}
}

func TestNew_RetryOptions(t *testing.T) {
	tests := []struct {
		name       string
		passes     int
		wantPasses int
		wantCalls  int
	}{
		{name: "zero uses defaults", passes: 0, wantPasses: constants.RetryPasses, wantCalls: 1 + constants.RetryPasses},
		{name: "negative disables retries", passes: -1, wantPasses: 0, wantCalls: 1},
		{name: "explicit", passes: 1, wantPasses: 1, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newFakeFetcher(120, map[int]int{100: -1})
			sl := &sleepRecorder{}
			e := New(fetcher, newPersister(afero.NewMemMapFs(), true), Options{PageSize: 50, RetryPasses: tt.passes, Sleep: sl.sleep})

			if e.opts.RetryPasses != tt.wantPasses {
				t.Errorf("RetryPasses = %d, want %d", e.opts.RetryPasses, tt.wantPasses)
			}
			if e.opts.RetryDelay != constants.BaseRetryDelay {
				t.Errorf("RetryDelay = %v, want %v", e.opts.RetryDelay, constants.BaseRetryDelay)
			}
			if _, err := e.Run(context.Background()); err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if fetcher.calls[100] != tt.wantCalls {
				t.Errorf("offset 100 fetched %d times, want %d", fetcher.calls[100], tt.wantCalls)
			}
			for _, w := range sl.waits {
				if w != constants.BaseRetryDelay {
					t.Errorf("retry wait = %v, want %v", w, constants.BaseRetryDelay)
				}
			}
		})
	}
}

func TestRun_FirstPageFailureIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := newFakeFetcher(120, map[int]int{0: -1})

	e := New(fetcher, newPersister(fs, true), Options{PageSize: 50, Sleep: (&sleepRecorder{}).sleep})
	_, err := e.Run(context.Background())
	if !errors.Is(err, jira.ErrFetchExhausted) {
		t.Fatalf("expected fatal fetch error, got %v", err)
	}
	if got := fetcher.offsetsCalled(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("no further pages should be fetched, got %v", got)
	}
	if ok, _ := afero.Exists(fs, outPath); ok {
		t.Error("no output should be written")
	}
}

func TestRun_PersistenceFailureIsFatal(t *testing.T) {
	var buf bytes.Buffer
	log.Initialize(log.LevelQuiet, &buf)
	t.Cleanup(func() { log.Initialize(log.LevelQuiet, os.Stderr) })

	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	e := New(newFakeFetcher(10, nil), newPersister(fs, true), Options{PageSize: 50})

	_, err := e.Run(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !strings.Contains(buf.String(), "checkpoint failed") {
		t.Errorf("expected the failure to be logged at quiet level, got %q", buf.String())
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	fetcher := newFakeFetcher(500, nil)
	e := New(fetcher, newPersister(afero.NewMemMapFs(), true), Options{PageSize: 10, MaxWorkers: 2, ChunkSize: 7})

	var mu sync.Mutex
	var checkpoints int
	e.opts.OnProgress = func(p Progress) {
		if p.Stage == StageFetch && !p.Finished && p.Written > 0 {
			mu.Lock()
			checkpoints++
			mu.Unlock()
		}
	}

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if fetcher.maxInFlight > 2 {
		t.Errorf("max concurrent fetches = %d, want <= 2", fetcher.maxInFlight)
	}
	// 49 remaining offsets in chunks of 7.
	if checkpoints != 7 {
		t.Errorf("checkpoints = %d, want 7", checkpoints)
	}
}

func stateWith(pages ...[]jira.Issue) *State {
	s := NewState()
	for i, issues := range pages {
		s.Append(Page{Offset: i * 50, Issues: issues})
	}
	return s
}

func TestPersist_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := newPersister(fs, true)
	state := stateWith([]jira.Issue{bug(1), bug(2)}, []jira.Issue{bug(3)})

	if _, err := p.Persist(state); err != nil {
		t.Fatal(err)
	}
	first, _ := afero.ReadFile(fs, outPath)

	if _, err := p.Persist(state); err != nil {
		t.Fatal(err)
	}
	second, _ := afero.ReadFile(fs, outPath)

	if string(first) != string(second) {
		t.Errorf("persisting the same state twice differs:\n%s\n---\n%s", first, second)
	}
}

func TestPersist_Format(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := newPersister(fs, true)

	issue := bug(1)
	issue.Fields.Summary = "He said \"hi\"\nbye"
	n, err := p.Persist(stateWith([]jira.Issue{issue}))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("written = %d, want 1", n)
	}

	data, _ := afero.ReadFile(fs, outPath)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if lines[0] != "Issue Key,Summary,Reporter,Assignee,Status,Created,Updated,Fixed By,Description,Issue Type" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if len(lines) != 2 {
		t.Fatalf("expected one data row on one line, got %d lines", len(lines)-1)
	}
	if !strings.HasPrefix(lines[1], `BUG-1,"He said """"hi"""" bye",Unknown,Unassigned,`) {
		t.Errorf("unexpected row %q", lines[1])
	}
}

type renameFailFs struct {
	afero.Fs
}

func (renameFailFs) Rename(string, string) error {
	return errors.New("disk yanked")
}

func TestPersist_AtomicOnFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := newPersister(fs, true).Persist(stateWith([]jira.Issue{bug(1)})); err != nil {
		t.Fatal(err)
	}
	before, _ := afero.ReadFile(fs, outPath)

	broken := newPersister(renameFailFs{fs}, true)
	_, err := broken.Persist(stateWith([]jira.Issue{bug(1), bug(2), bug(3)}))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	after, _ := afero.ReadFile(fs, outPath)
	if string(before) != string(after) {
		t.Errorf("destination changed after a failed persist:\n%s\n---\n%s", before, after)
	}
}

func TestPersist_Dedupe(t *testing.T) {
	state := stateWith([]jira.Issue{bug(1), bug(2)}, []jira.Issue{bug(2), bug(3)})

	tests := []struct {
		dedupe bool
		want   int
	}{
		{true, 3},
		{false, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("dedupe=%v", tt.dedupe), func(t *testing.T) {
			n, err := newPersister(afero.NewMemMapFs(), tt.dedupe).Persist(state)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("written = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestPersist_SkipsUnroutable(t *testing.T) {
	noTeam := bug(9)
	noTeam.Fields.Custom = nil

	n, err := newPersister(afero.NewMemMapFs(), true).Persist(stateWith([]jira.Issue{bug(1), noTeam}))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("written = %d, want 1", n)
	}
}

func TestState_ConcurrentAppend(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(Page{Offset: i})
		}()
	}
	wg.Wait()
	if s.Len() != 100 {
		t.Errorf("Len() = %d, want 100", s.Len())
	}
}
