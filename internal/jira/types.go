package jira

import (
	"encoding/json"
	"strings"
)

// SearchResult is one page of the search API response.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue is a raw issue record as returned by the search API.
type Issue struct {
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
}

// Fields contains the requested issue fields. Description and custom fields
// stay raw because their shape differs between API versions and field types.
type Fields struct {
	Summary     string          `json:"summary"`
	Reporter    *User           `json:"reporter,omitempty"`
	Assignee    *User           `json:"assignee,omitempty"`
	Status      *Status         `json:"status,omitempty"`
	Created     string          `json:"created,omitempty"`
	Updated     string          `json:"updated,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	IssueType   *IssueType      `json:"issuetype,omitempty"`

	// Custom holds every customfield_* value keyed by field id.
	Custom map[string]json.RawMessage `json:"-"`
}

type fieldsAlias Fields

// UnmarshalJSON decodes the known fields and collects custom fields.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var known fieldsAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	*f = Fields(known)
	for k, v := range all {
		if !strings.HasPrefix(k, "customfield_") {
			continue
		}
		if f.Custom == nil {
			f.Custom = make(map[string]json.RawMessage)
		}
		f.Custom[k] = v
	}
	return nil
}

// MarshalJSON writes custom fields back alongside the known fields.
func (f Fields) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(fieldsAlias(f))
	if err != nil || len(f.Custom) == 0 {
		return data, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range f.Custom {
		all[k] = v
	}
	return json.Marshal(all)
}

// CustomField returns the raw value of a custom field, or nil when absent.
func (f Fields) CustomField(id string) json.RawMessage {
	return f.Custom[id]
}

// User represents a Jira user.
type User struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// Status represents a Jira status.
type Status struct {
	Name string `json:"name"`
}

// IssueType represents a Jira issue type.
type IssueType struct {
	Name string `json:"name"`
}

// OptionValue is the shape of a single-select custom field value.
type OptionValue struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
}
