package tracker

import (
	"encoding/json"
	"strings"
)

// Jira Cloud v3 takes descriptions and comments as Atlassian Document
// Format, a JSON tree of typed nodes. The assistant only ever writes
// plain paragraphs, and when reading it flattens whatever node types a
// document contains back to text.

type adfNode struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Content []adfNode       `json:"content,omitempty"`
	Version int             `json:"version,omitempty"`
	Attrs   json.RawMessage `json:"attrs,omitempty"`
}

// textToADF wraps plain text in a minimal ADF document, one paragraph
// per blank-line-separated block.
func textToADF(text string) adfNode {
	doc := adfNode{Type: "doc", Version: 1}
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		doc.Content = append(doc.Content, adfNode{
			Type:    "paragraph",
			Content: []adfNode{{Type: "text", Text: block}},
		})
	}
	if len(doc.Content) == 0 {
		doc.Content = []adfNode{{Type: "paragraph"}}
	}
	return doc
}

// adfToText flattens an ADF document to plain text, joining block
// nodes with newlines. Unknown node types contribute only their
// children, so new Jira node types degrade to their text.
func adfToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	// Some endpoints return descriptions as a bare string.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	flattenADF(doc, &b)
	return strings.TrimSpace(b.String())
}

func flattenADF(n adfNode, b *strings.Builder) {
	if n.Text != "" {
		b.WriteString(n.Text)
	}
	for _, child := range n.Content {
		flattenADF(child, b)
	}
	switch n.Type {
	case "paragraph", "heading", "codeBlock", "blockquote", "listItem":
		b.WriteString("\n")
	case "hardBreak":
		b.WriteString("\n")
	}
}
