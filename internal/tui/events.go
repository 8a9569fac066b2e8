package tui

// TaskID identifies a task in the TUI progress display.
type TaskID int

const (
	TaskFirstPage TaskID = iota // Fetching offset 0 and learning the total
	TaskFetch                   // Fetching the remaining pages in chunks
	TaskRetry                   // Retrying pages that failed
	TaskTally                   // Counting the rows on disk
)

// TaskStatus represents the current status of a task.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusRunning
	StatusComplete
	StatusError
	StatusSkipped
)

// Event is the interface for all TUI events.
type Event interface {
	isEvent()
}

// TaskEvent represents an update to a task's status.
type TaskEvent struct {
	Task     TaskID
	Status   TaskStatus
	Message  string  // Optional message (e.g., "12/30 pages")
	Count    int     // Count of items (e.g., rows written)
	Progress float64 // Progress from 0.0 to 1.0
	Error    error   // Error if status is StatusError
}

func (TaskEvent) isEvent() {}

// FailedPagesEvent reports how many pages are currently missing.
type FailedPagesEvent struct {
	Count int
}

func (FailedPagesEvent) isEvent() {}

// DoneEvent signals that the run has finished and the display should exit.
type DoneEvent struct{}

func (DoneEvent) isEvent() {}
