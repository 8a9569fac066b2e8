// Package normalize turns raw Jira search records into flat export rows.
package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/jira"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/richtext"
)

// Issue is a normalized, export-ready issue.
type Issue struct {
	Key         string
	Summary     string
	Description string
	Reporter    string
	Assignee    string
	Status      string
	Created     string
	Updated     string
	FixedBy     string
	IssueType   string
}

// Row returns the issue as a CSV record in header order.
func (i Issue) Row() []string {
	row := make([]string, len(constants.CSVHeader))
	row[constants.ColKey] = i.Key
	row[constants.ColSummary] = i.Summary
	row[constants.ColReporter] = i.Reporter
	row[constants.ColAssignee] = i.Assignee
	row[constants.ColStatus] = i.Status
	row[constants.ColCreated] = i.Created
	row[constants.ColUpdated] = i.Updated
	row[constants.ColFixedBy] = i.FixedBy
	row[constants.ColDescription] = i.Description
	row[constants.ColIssueType] = i.IssueType
	return row
}

// Normalizer filters and flattens raw records.
type Normalizer struct {
	teamField string
	whitelist map[string]bool
}

// New creates a Normalizer reading the team from teamField. Whitelisted team
// names must already be lowercase; an empty whitelist admits every team.
func New(teamField string, whitelist []string) *Normalizer {
	n := &Normalizer{teamField: teamField}
	if len(whitelist) > 0 {
		n.whitelist = make(map[string]bool, len(whitelist))
		for _, t := range whitelist {
			n.whitelist[t] = true
		}
	}
	return n
}

// Normalize converts a raw record. It reports false when the record has no
// routable team or its team is not whitelisted.
func (n *Normalizer) Normalize(raw jira.Issue) (Issue, bool) {
	team := TeamName(raw.Fields.CustomField(n.teamField))
	if team == "" || strings.EqualFold(team, constants.UnassignedTeam) {
		log.Trace("skipping issue without team", "key", raw.Key)
		return Issue{}, false
	}
	if n.whitelist != nil && !n.whitelist[strings.ToLower(team)] {
		log.Trace("skipping issue outside whitelist", "key", raw.Key, "team", team)
		return Issue{}, false
	}

	f := raw.Fields
	issue := Issue{
		Key:         raw.Key,
		Summary:     Sanitize(f.Summary),
		Description: Sanitize(richtext.Extract(f.Description)),
		Reporter:    constants.UnknownUser,
		Assignee:    constants.UnassignedUser,
		Created:     f.Created,
		Updated:     f.Updated,
		FixedBy:     team,
		IssueType:   constants.UnknownIssueType,
	}
	if f.Reporter != nil && f.Reporter.DisplayName != "" {
		issue.Reporter = f.Reporter.DisplayName
	}
	if f.Assignee != nil && f.Assignee.DisplayName != "" {
		issue.Assignee = f.Assignee.DisplayName
	}
	if f.Status != nil {
		issue.Status = f.Status.Name
	}
	if f.IssueType != nil && f.IssueType.Name != "" {
		issue.IssueType = f.IssueType.Name
	}
	return issue, true
}

// TeamName reads a team custom field. Single-select fields arrive as an
// option object, text fields as a bare string. Anything else has no team.
func TeamName(raw json.RawMessage) string {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return ""
	}

	switch data[0] {
	case '{':
		var opt jira.OptionValue
		if err := json.Unmarshal(data, &opt); err != nil {
			return ""
		}
		return strings.TrimSpace(opt.Value)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return ""
}

var sanitizer = strings.NewReplacer(`"`, `""`, "\n", " ", "\r", "")

// Sanitize doubles quotes, turns newlines into spaces and drops carriage
// returns.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}
