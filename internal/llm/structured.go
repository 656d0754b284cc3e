package llm

import (
	"encoding/json"
	"strings"
)

// ParseStructured extracts a JSON object from a model's textual content.
// It recognizes a fenced ```json ... ``` (or bare ``` ... ```) code block,
// or content that begins with '{' once trimmed. Anything else is returned
// as the raw string, unparsed.
func ParseStructured(content string) (obj map[string]any, raw string, ok bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, content, false
	}
	if body, found := extractFence(trimmed); found {
		trimmed = strings.TrimSpace(body)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return nil, content, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return nil, content, false
	}
	return m, content, true
}

// HasAnswerField reports whether a parsed structured object carries a
// non-empty "answer" field, the gate used by the single-shot retry policy.
func HasAnswerField(obj map[string]any) bool {
	if obj == nil {
		return false
	}
	v, ok := obj["answer"]
	if !ok {
		return false
	}
	s, ok := v.(string)
	if !ok {
		return true // non-string answer values still count as present
	}
	return strings.TrimSpace(s) != ""
}

func extractFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return "", false
	}
	rest := s[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Skip an optional language tag on the opening fence line (e.g. "json").
		rest = rest[nl+1:]
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return rest, true
	}
	return rest[:end], true
}
