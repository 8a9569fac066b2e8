package export

import (
	"sync"

	"github.com/Sourjya261-BB/Jira-Router/internal/jira"
)

// Page is one successfully fetched page of raw records.
type Page struct {
	Offset int
	Issues []jira.Issue
	// Total is the record count reported with this page. Only the first
	// page's value is used.
	Total int
}

// State accumulates fetched pages for a single run. It is append-only and
// safe for concurrent use.
type State struct {
	mu    sync.Mutex
	pages []Page
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Append adds a page.
func (s *State) Append(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, p)
}

// Pages returns a snapshot of the pages in append order.
func (s *State) Pages() []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Page(nil), s.pages...)
}

// Len returns the number of pages appended so far.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Offsets returns the page offsets that follow the first page:
// pageSize, 2*pageSize, ... while below total.
func Offsets(total, pageSize int) []int {
	if pageSize <= 0 {
		return nil
	}
	var offsets []int
	for off := pageSize; off < total; off += pageSize {
		offsets = append(offsets, off)
	}
	return offsets
}
