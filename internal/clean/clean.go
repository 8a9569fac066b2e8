// Package clean normalizes ticket descriptions before classification.
package clean

import (
	"regexp"
	"strings"
)

// Placeholders substituted for markup the model should not see verbatim.
const (
	LinkPlaceholder       = "[LINK]"
	AttachmentPlaceholder = "[FILE ATTACHMENT]"
)

var (
	urlLink    = regexp.MustCompile(`\[https://.*?\|.*?\]`)
	markupLink = regexp.MustCompile(`\[.*?\|.*?\]`)
	attachment = regexp.MustCompile(`!.*?!`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Description replaces wiki-markup links and attachments with placeholders,
// collapses whitespace runs into single spaces and trims the result.
func Description(text string) string {
	if text == "" {
		return ""
	}
	text = urlLink.ReplaceAllLiteralString(text, LinkPlaceholder)
	text = markupLink.ReplaceAllLiteralString(text, LinkPlaceholder)
	text = attachment.ReplaceAllLiteralString(text, AttachmentPlaceholder)
	text = whitespace.ReplaceAllLiteralString(text, " ")
	return strings.TrimSpace(text)
}
