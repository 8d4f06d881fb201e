package action

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	openTag  = "<discord-action>"
	closeTag = "</discord-action>"
)

var blockRe = regexp.MustCompile(`(?s)<discord-action>(.*?)</discord-action>`)

// Action is one parsed action block: its raw type plus the decoded
// payload fields.
type Action struct {
	Type    string
	Payload map[string]any
}

// ParseResult is the parser's output shape per spec §4.4.
type ParseResult struct {
	CleanText               string
	Actions                 []Action
	StrippedUnrecognizedTypes []string
}

// Parse extracts every <discord-action>{...}</discord-action> block from
// text. clean_text is the original text with every block (recognized or
// not) removed. Unrecognized types (not in catalog) are recorded in
// StrippedUnrecognizedTypes and dropped from Actions.
func Parse(text string, catalog *Catalog) ParseResult {
	result := ParseResult{}
	clean := blockRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := strings.TrimSuffix(strings.TrimPrefix(match, openTag), closeTag)
		var payload map[string]any
		if err := json.Unmarshal([]byte(inner), &payload); err != nil {
			return ""
		}
		typeName, _ := payload["type"].(string)
		if typeName == "" {
			return ""
		}
		if catalog != nil {
			if _, ok := catalog.Lookup(typeName); !ok {
				result.StrippedUnrecognizedTypes = append(result.StrippedUnrecognizedTypes, typeName)
				return ""
			}
		}
		result.Actions = append(result.Actions, Action{Type: typeName, Payload: payload})
		return ""
	})
	result.CleanText = clean
	return result
}

// IsWhitespaceOnly reports whether clean text (outside any action blocks)
// carries no prose, per spec §6 "whitespace-only content outside blocks
// is considered no prose."
func IsWhitespaceOnly(cleanText string) bool {
	return strings.TrimSpace(cleanText) == ""
}

// Render renders an Action back to its wire-format block, used by the
// round-trip test and by any code that reconstructs model text.
func (a Action) Render() (string, error) {
	data, err := json.Marshal(a.Payload)
	if err != nil {
		return "", err
	}
	return openTag + string(data) + closeTag, nil
}
