// Package richtext converts Jira rich-text descriptions (Atlassian Document
// Format trees or plain strings) into plain text.
package richtext

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sourjya261-BB/Jira-Router/internal/log"
)

// ErrMalformed is returned when a description is neither a string nor a
// document tree.
var ErrMalformed = errors.New("malformed rich text")

// TextType is the node type whose literal text is extracted.
const TextType = "text"

// Kind distinguishes text leaves from containers.
type Kind int

const (
	KindContainer Kind = iota
	KindText
)

// Node is a rich-text document node. A KindText node carries Text and never
// has children; a KindContainer node carries its Type tag and ordered
// Children.
type Node struct {
	Kind     Kind
	Type     string
	Text     string
	Children []Node
}

// rawNode mirrors the wire shape of an ADF node. Content stays raw so that
// unexpected element shapes can be skipped instead of failing the decode.
type rawNode struct {
	Type    string            `json:"type"`
	Text    string            `json:"text"`
	Content []json.RawMessage `json:"content"`
}

// Parse decodes a JSON document node.
func Parse(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Node{}, fmt.Errorf("%w: expected object", ErrMalformed)
	}
	n, ok, err := parseValue(data)
	if err != nil {
		return Node{}, err
	}
	if !ok {
		return Node{}, fmt.Errorf("%w: expected object", ErrMalformed)
	}
	return n, nil
}

// parseValue converts an object or array into a Node. Other JSON values are
// reported as not-a-node and skipped by the caller.
func parseValue(data []byte) (Node, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Node{}, false, nil
	}

	switch data[0] {
	case '{':
		var rn rawNode
		if err := json.Unmarshal(data, &rn); err != nil {
			return Node{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if rn.Type == TextType {
			return Node{Kind: KindText, Type: TextType, Text: rn.Text}, true, nil
		}
		children, err := parseChildren(rn.Content)
		if err != nil {
			return Node{}, false, err
		}
		return Node{Kind: KindContainer, Type: rn.Type, Children: children}, true, nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return Node{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		children, err := parseChildren(items)
		if err != nil {
			return Node{}, false, err
		}
		return Node{Kind: KindContainer, Children: children}, true, nil
	}

	return Node{}, false, nil
}

func parseChildren(items []json.RawMessage) ([]Node, error) {
	var children []Node
	for _, item := range items {
		child, ok, err := parseValue(item)
		if err != nil {
			return nil, err
		}
		if ok {
			children = append(children, child)
		}
	}
	return children, nil
}

// Text returns the text of every text leaf under n (n included), in
// document order, joined by newlines and trimmed.
func Text(n Node) string {
	var pieces []string

	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.Kind == KindText {
			pieces = append(pieces, cur.Text)
			continue
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}

	return strings.TrimSpace(strings.Join(pieces, "\n"))
}

// Extract converts a raw description field into plain text.
//
// Absent, null and empty values yield "". A JSON string is returned trimmed.
// A document object yields the text of its content; the root's own type is
// not considered. Any other shape logs a warning and yields "".
func Extract(raw json.RawMessage) string {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			log.Warn("unexpected description format", "error", err)
			return ""
		}
		return strings.TrimSpace(s)

	case '{':
		doc, err := Parse(data)
		if err != nil {
			log.Warn("unexpected description format", "error", err)
			return ""
		}
		return Text(Node{Kind: KindContainer, Children: doc.Children})
	}

	log.Warn("unexpected description format", "error", fmt.Errorf("%w: %s", ErrMalformed, kindOf(data)))
	return ""
}

func kindOf(data []byte) string {
	switch data[0] {
	case '[':
		return "array"
	case 't', 'f':
		return "bool"
	default:
		return "number"
	}
}
