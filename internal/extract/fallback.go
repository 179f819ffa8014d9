package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	fallbackConversationSummary = "Conversation covering multiple topics with detailed discussion and insights."
	defaultTopicTitle           = "General Discussion"
	defaultTopicSummary         = "Main conversation topics and key points discussed"
	defaultSectionSummary       = "Key discussion points and insights from this section."
	untitledSection             = "Discussion Topic"

	// Sections this short or shorter are not treated as topics.
	minSectionChars = 100
	// The single default topic never spans more than this.
	defaultTopicSpan = 500
	titleScanWords   = 20
	summaryChars     = 120
)

var (
	roleToken     = regexp.MustCompile(`(?i)(?:User:|AI Assistant:|AI:)`)
	sentenceBreak = regexp.MustCompile(`[.!?]+`)

	// Checked in order; the first hit names the topic.
	titleKeywords = []string{"business", "planning", "market", "research", "technical", "development", "strategy", "analysis"}
)

// Fallback extracts topics without a model. It is deterministic and always
// returns between 1 and MaxTopics topics within the transcript's bounds.
func Fallback(transcript string) Result {
	var topics []Topic

	// cursor is a byte offset; matching only moves forward.
	cursor := 0
	for _, section := range roleToken.Split(transcript, -1) {
		section = strings.TrimSpace(section)
		if runeLen(section) <= minSectionChars {
			continue
		}

		idx := strings.Index(transcript[cursor:], section)
		if idx < 0 {
			continue
		}
		startByte := cursor + idx
		endByte := startByte + len(section)
		cursor = endByte

		start := utf8.RuneCountInString(transcript[:startByte])
		topics = append(topics, Topic{
			Title:         sectionTitle(section),
			Summary:       sectionSummary(section),
			PositionStart: start,
			PositionEnd:   start + runeLen(section),
		})
	}

	if len(topics) == 0 {
		topics = append(topics, Topic{
			Title:         defaultTopicTitle,
			Summary:       defaultTopicSummary,
			PositionStart: 0,
			PositionEnd:   min(defaultTopicSpan, runeLen(transcript)),
		})
	}
	if len(topics) > MaxTopics {
		topics = topics[:MaxTopics]
	}

	return Result{
		Topics:              topics,
		ConversationSummary: fallbackConversationSummary,
	}
}

func sectionTitle(section string) string {
	words := strings.Split(section, " ")
	lead := strings.ToLower(strings.Join(words[:min(titleScanWords, len(words))], " "))

	for _, kw := range titleKeywords {
		if strings.Contains(lead, kw) {
			return strings.ToUpper(kw[:1]) + kw[1:] + " Discussion"
		}
	}

	first := strings.Join(words[:min(3, len(words))], " ")
	if runeLen(first) <= 3 {
		return untitledSection
	}
	return truncate(first, MaxTitleChars-len("...")) + "..."
}

func sectionSummary(section string) string {
	for _, sentence := range sentenceBreak.Split(section, -1) {
		sentence = strings.TrimSpace(sentence)
		if runeLen(sentence) <= 10 {
			continue
		}
		cut := truncate(sentence, summaryChars)
		if len(cut) < len(sentence) {
			return cut + "..."
		}
		return cut
	}
	return defaultSectionSummary
}
