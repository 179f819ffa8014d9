package extract

import (
	"encoding/json"
	"strings"
)

const defaultConversationSummary = "Conversation analysis completed."

// Normalize turns an arbitrary decoded payload into a valid Result for
// transcript. Candidates missing a title, summary or numeric positions are
// dropped; the rest are truncated and clamped to the transcript, in input
// order. If nothing survives, the heuristic topics are used instead.
//
// raw is usually the map produced by decoding model output, but any value
// that marshals to the same shape is accepted, including a Result.
func Normalize(raw any, transcript string) Result {
	res, _ := normalize(raw, transcript)
	return res
}

// normalize also reports how many candidates were kept before any
// substitution.
func normalize(raw any, transcript string) (Result, int) {
	obj := asObject(raw)
	limit := runeLen(transcript)

	var topics []Topic
	if list, ok := obj["topics"].([]any); ok {
		for _, item := range list {
			if t, ok := candidate(item, limit); ok {
				topics = append(topics, t)
			}
		}
	}
	kept := len(topics)
	if kept == 0 {
		topics = Fallback(transcript).Topics
	}

	summary, _ := obj["conversation_summary"].(string)
	if strings.TrimSpace(summary) == "" {
		summary = defaultConversationSummary
	}

	return Result{Topics: topics, ConversationSummary: summary}, kept
}

func candidate(item any, limit int) (Topic, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return Topic{}, false
	}
	title, _ := m["title"].(string)
	summary, _ := m["summary"].(string)
	// Trimmed on both sides of the cut so a second pass sees the same text.
	title = trimTo(title, MaxTitleChars)
	summary = trimTo(summary, MaxSummaryChars)
	if title == "" || summary == "" {
		return Topic{}, false
	}
	start, ok := m["position_start"].(float64)
	if !ok {
		return Topic{}, false
	}
	end, ok := m["position_end"].(float64)
	if !ok {
		return Topic{}, false
	}

	s := clamp(start, 0, float64(limit))
	e := clamp(end, float64(s), float64(limit))
	return Topic{
		Title:         title,
		Summary:       summary,
		PositionStart: s,
		PositionEnd:   e,
	}, true
}

func clamp(v, lo, hi float64) int {
	switch {
	case v < lo:
		return int(lo)
	case v > hi:
		return int(hi)
	}
	return int(v)
}

// asObject coerces raw into a JSON object. Values that are not already a
// decoded object go through a JSON round trip; anything that still is not
// an object yields an empty map.
func asObject(raw any) map[string]any {
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func trimTo(s string, n int) string {
	return strings.TrimSpace(truncate(strings.TrimSpace(s), n))
}
