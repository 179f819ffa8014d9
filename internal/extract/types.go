// Package extract derives topics from a transcript, either through a
// chat-completion model or a deterministic heuristic.
package extract

import "unicode/utf8"

// MaxTopics is the most topics the heuristic extractor emits.
const MaxTopics = 8

// Length limits for topic fields, in characters.
const (
	MaxTitleChars   = 50
	MaxSummaryChars = 150
)

// Topic is one titled span of a transcript. Positions are character offsets.
type Topic struct {
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	PositionStart int    `json:"position_start"`
	PositionEnd   int    `json:"position_end"`
}

// Result is the full output of one extraction.
type Result struct {
	Topics              []Topic `json:"topics"`
	ConversationSummary string  `json:"conversation_summary"`
}

// Source tells which path produced a Result.
type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// Outcome is a Result tagged with its provenance.
// Reason is set whenever Source is SourceHeuristic.
type Outcome struct {
	Result Result `json:"result"`
	Source Source `json:"source"`
	Reason error  `json:"-"`
}

// Degraded reports whether the model call was skipped or failed.
func (o Outcome) Degraded() bool {
	return o.Source == SourceHeuristic
}

// ReasonText returns Reason as a string, or "" for model outcomes.
func (o Outcome) ReasonText() string {
	if o.Reason == nil {
		return ""
	}
	return o.Reason.Error()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
