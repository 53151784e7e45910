// Package batcher amortizes completion cost by grouping compatible task
// contexts into single prompts and parsing structured array responses, with
// an individual-call fallback whenever a batch response cannot be trusted.
package batcher

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseArrayResponse extracts a list of JSON objects from model output. It
// tolerates, in preference order: a clean array, a markdown-fenced array, an
// array embedded in surrounding prose, and newline-delimited bare objects.
// Unparseable text yields an empty list; the caller decides whether the
// element count is acceptable.
func ParseArrayResponse(content string) []map[string]any {
	content = strings.TrimSpace(content)
	if content == "" {
		return []map[string]any{}
	}

	if items, ok := tryParseArray(content); ok {
		return items
	}

	if m := fencePattern.FindStringSubmatch(content); m != nil {
		if items, ok := tryParseArray(strings.TrimSpace(m[1])); ok {
			return items
		}
	}

	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start >= 0 && end > start {
		if items, ok := tryParseArray(content[start : end+1]); ok {
			return items
		}
	}

	return parseLineObjects(content)
}

func tryParseArray(text string) ([]map[string]any, bool) {
	var items []map[string]any
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, false
	}
	return items, true
}

// parseLineObjects collects newline-delimited JSON objects with no enclosing
// array.
func parseLineObjects(content string) []map[string]any {
	items := []map[string]any{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			items = append(items, obj)
		}
	}
	return items
}

// ParseObjectResponse extracts a single JSON object from model output, with
// the same tolerance ladder as ParseArrayResponse. The second return is
// false when no object can be recovered.
func ParseObjectResponse(content string) (map[string]any, bool) {
	content = strings.TrimSpace(content)

	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj, true
	}

	if m := fencePattern.FindStringSubmatch(content); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &obj); err == nil {
			return obj, true
		}
	}

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &obj); err == nil {
			return obj, true
		}
	}

	return nil, false
}
