// Package constants provides a centralized location for the tuning values
// and magic numbers used by the exporter and the prediction commands.
package constants

import "time"

// Jira search constants
const (
	// SearchPath is the Jira REST endpoint used for paginated issue search.
	SearchPath = "/rest/api/2/search"

	// DefaultTeamField is the custom field holding the resolving team ("Fixed By").
	DefaultTeamField = "customfield_14600"

	// CutoffDateLayout is the date layout Jira accepts in JQL comparisons.
	CutoffDateLayout = "2006-01-02"
)

// DefaultIssueTypes are the issue types exported when none are configured.
var DefaultIssueTypes = []string{"Bug", "Transient Bug"}

// Pagination and concurrency defaults
const (
	// DefaultBatchSize is the number of issues requested per page.
	DefaultBatchSize = 50

	// DefaultMaxWorkers caps concurrent page fetches within a chunk.
	DefaultMaxWorkers = 5

	// ChunkSize is the number of page offsets processed between checkpoints.
	ChunkSize = 50

	// DefaultLookbackDays is how far back the JQL created filter reaches.
	DefaultLookbackDays = 60
)

// Retry and rate limiting constants
const (
	// MaxFetchAttempts bounds the number of requests made for a single page.
	MaxFetchAttempts = 5

	// BaseRetryDelay is the base of the exponential backoff between attempts,
	// and the fixed delay before each retry of a failed offset.
	BaseRetryDelay = 10 * time.Second

	// RetryPasses is the number of serial passes over failed offsets.
	RetryPasses = 3

	// JitterMin and JitterMax bound the pause taken after a successful fetch.
	JitterMin = 500 * time.Millisecond
	JitterMax = 1500 * time.Millisecond

	// RequestTimeout is the per-request timeout of the HTTP client.
	RequestTimeout = 60 * time.Second
)

// Output constants
const (
	// DefaultOutputPath is where the exported CSV is written.
	DefaultOutputPath = "data/issues.csv"

	// TempSuffix is appended to the output path while a checkpoint is written.
	TempSuffix = ".temp"

	// UnknownUser is written when an issue has no reporter.
	UnknownUser = "Unknown"

	// UnassignedUser is written when an issue has no assignee.
	UnassignedUser = "Unassigned"

	// UnknownIssueType is written when an issue has no type.
	UnknownIssueType = "Unknown"

	// UnassignedTeam is the team value that marks a record as unroutable.
	UnassignedTeam = "unassigned"
)

// CSVHeader is the header row of the exported file.
var CSVHeader = []string{
	"Issue Key", "Summary", "Reporter", "Assignee", "Status",
	"Created", "Updated", "Fixed By", "Description", "Issue Type",
}

// Column indexes into CSVHeader.
const (
	ColKey = iota
	ColSummary
	ColReporter
	ColAssignee
	ColStatus
	ColCreated
	ColUpdated
	ColFixedBy
	ColDescription
	ColIssueType
)

// Evaluation constants
const (
	// DefaultSamples is the number of rows drawn by the evaluate command.
	DefaultSamples = 5

	// MaxSamples is the upper bound on rows drawn by the evaluate command.
	MaxSamples = 10
)

// TUI and logging constants
const (
	// TUIUpdateInterval is the minimum time between TUI progress updates.
	TUIUpdateInterval = 50 * time.Millisecond

	// StatsMaxRecords is the number of export run snapshots retained.
	StatsMaxRecords = 1000
)
