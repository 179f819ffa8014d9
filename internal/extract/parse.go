package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeContent parses model output into a JSON object. Markdown code
// fences and any prose around the outermost braces are discarded first.
func decodeContent(content string) (map[string]any, error) {
	body := stripFences(strings.TrimSpace(content))
	if lo, hi := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); lo >= 0 && hi > lo {
		body = body[lo : hi+1]
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, fmt.Errorf("decode model output: %v: %w", err, ErrMalformedResponse)
	}
	if _, ok := obj["topics"].([]any); !ok {
		return nil, fmt.Errorf("model output has no topics array: %w", ErrMalformedResponse)
	}
	return obj, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string, e.g. "json".
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, "```")
}
