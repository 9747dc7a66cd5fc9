package analysis

import (
	"strings"

	"github.com/tidwall/gjson"
)

var (
	textKeys    = []string{"analysis", "analysisText", "analysis_text", "text"}
	matchedKeys = []string{"matched", "criteriaMatched", "criteria_matched"}
)

// ParseResult reads the model output leniently. Bare JSON, JSON inside a
// markdown fence and JSON embedded in prose are accepted. Anything else
// degrades to the raw text with no verdict.
func ParseResult(raw string) *Result {
	trimmed := strings.TrimSpace(raw)
	degraded := &Result{Text: trimmed, Raw: raw}

	doc, ok := extractObject(trimmed)
	if !ok {
		return degraded
	}

	var matched *bool
	for _, key := range matchedKeys {
		v := gjson.Get(doc, key)
		if v.Type == gjson.True || v.Type == gjson.False {
			b := v.Bool()
			matched = &b
			break
		}
		if v.Type == gjson.String {
			switch strings.ToLower(strings.TrimSpace(v.Str)) {
			case "true", "yes":
				b := true
				matched = &b
			case "false", "no":
				b := false
				matched = &b
			}
			if matched != nil {
				break
			}
		}
	}
	if matched == nil {
		return degraded
	}

	text := ""
	for _, key := range textKeys {
		if v := gjson.Get(doc, key); v.Exists() && v.Type == gjson.String {
			text = strings.TrimSpace(v.Str)
			break
		}
	}
	if text == "" {
		text = trimmed
	}
	return &Result{Text: text, Matched: matched, Raw: raw}
}

func extractObject(s string) (string, bool) {
	if gjson.Valid(s) && strings.HasPrefix(s, "{") {
		return s, true
	}

	if i := strings.Index(s, "```"); i >= 0 {
		body := s[i+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if j := strings.Index(body, "```"); j >= 0 {
			body = strings.TrimSpace(body[:j])
			if gjson.Valid(body) && strings.HasPrefix(body, "{") {
				return body, true
			}
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		candidate := s[start : end+1]
		if gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}
