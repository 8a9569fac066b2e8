package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/normalize"
)

// ErrPersistence is matched by every PersistenceError.
var ErrPersistence = errors.New("persistence failed")

// PersistenceError reports a checkpoint that could not be written. The
// previous checkpoint, if any, is left in place.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persister writes the accumulated state to a CSV file. Each write goes to a
// temporary file that then replaces the destination.
type Persister struct {
	fs         afero.Fs
	path       string
	normalizer *normalize.Normalizer
	dedupe     bool
}

// NewPersister creates a Persister writing to path on fs.
func NewPersister(fs afero.Fs, path string, n *normalize.Normalizer, dedupe bool) *Persister {
	return &Persister{
		fs:         fs,
		path:       path,
		normalizer: n,
		dedupe:     dedupe,
	}
}

// Path returns the destination file.
func (p *Persister) Path() string {
	return p.path
}

// Persist writes every retained issue in state and returns how many rows
// were written. Pages are flattened in append order; when deduplication is
// enabled only the first record seen for each key is kept.
func (p *Persister) Persist(state *State) (int, error) {
	tmp := p.path + constants.TempSuffix

	if dir := filepath.Dir(p.path); dir != "." {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return 0, &PersistenceError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	f, err := p.fs.Create(tmp)
	if err != nil {
		return 0, &PersistenceError{Op: "create", Path: tmp, Err: err}
	}

	written, err := p.write(f, state.Pages())
	if err != nil {
		_ = f.Close()
		return 0, &PersistenceError{Op: "write", Path: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		return 0, &PersistenceError{Op: "close", Path: tmp, Err: err}
	}

	// Rename replaces the destination in one step, so a failure at any
	// earlier point leaves the previous checkpoint untouched.
	if err := p.fs.Rename(tmp, p.path); err != nil {
		return 0, &PersistenceError{Op: "rename", Path: p.path, Err: err}
	}

	log.Debug("checkpoint written", "path", p.path, "rows", written)
	return written, nil
}

func (p *Persister) write(w io.Writer, pages []Page) (int, error) {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if err := cw.Write(constants.CSVHeader); err != nil {
		return 0, err
	}

	var seen map[string]bool
	if p.dedupe {
		seen = make(map[string]bool)
	}

	written := 0
	for _, page := range pages {
		for _, raw := range page.Issues {
			issue, ok := p.normalizer.Normalize(raw)
			if !ok {
				continue
			}
			if seen != nil {
				if seen[issue.Key] {
					log.Trace("dropping duplicate issue", "key", issue.Key, "offset", page.Offset)
					continue
				}
				seen[issue.Key] = true
			}
			if err := cw.Write(issue.Row()); err != nil {
				return 0, err
			}
			written++
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return written, bw.Flush()
}

// Tally counts the rows of a persisted export.
type Tally struct {
	Total  int
	ByType map[string]int
}

// Count returns the number of rows of the given issue type.
func (t Tally) Count(issueType string) int {
	return t.ByType[issueType]
}

// Tally re-reads the destination file and counts its rows by issue type.
func (p *Persister) Tally() (Tally, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		return Tally{}, fmt.Errorf("opening export: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = len(constants.CSVHeader)

	if _, err := r.Read(); err != nil {
		return Tally{}, fmt.Errorf("reading header: %w", err)
	}

	t := Tally{ByType: make(map[string]int)}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Tally{}, fmt.Errorf("reading export: %w", err)
		}
		t.Total++
		t.ByType[rec[constants.ColIssueType]]++
	}
	return t, nil
}
