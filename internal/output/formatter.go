// Package output renders evaluation reports and export run history.
package output

import (
	"fmt"
	"io"

	"github.com/Sourjya261-BB/Jira-Router/internal/evaluate"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
)

// Format represents the output format
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatMarkdown:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json or markdown)", s)
}

// Formatter defines the interface for output formatters
type Formatter interface {
	FormatReport(r *evaluate.Report, w io.Writer) error
	FormatRuns(runs []stats.Snapshot, w io.Writer) error
}

// NewFormatter creates a formatter for the specified format. server is the
// Jira base URL used to link issue keys; it may be empty.
func NewFormatter(format Format, server string) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	case FormatMarkdown:
		return &MarkdownFormatter{Server: server}
	default:
		return &TableFormatter{Server: server}
	}
}

// browseURL returns the Jira page of an issue, or "" when unknown.
func browseURL(server, key string) string {
	if server == "" || key == "" {
		return ""
	}
	return server + "/browse/" + key
}
