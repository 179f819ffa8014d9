// Package segment splits a pasted transcript into role-tagged messages.
package segment

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// Role identifies who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RolePlain     Role = "plain"
)

// Message is one non-blank transcript line, classified by its role prefix.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// StartOffset is the character (rune) index in the original transcript
	// where this message's source line begins.
	StartOffset int `json:"start_offset"`
}

type rolePrefix struct {
	prefix string
	role   Role
}

// rolePrefixes is ordered most specific first: "ai assistant:" must win over "ai:".
var rolePrefixes = []rolePrefix{
	{"ai assistant:", RoleAssistant},
	{"assistant:", RoleAssistant},
	{"user:", RoleUser},
	{"ai:", RoleAssistant},
}

// Segment returns the messages of transcript as a lazy sequence.
// The sequence has no state of its own; ranging over it again re-runs the
// segmentation from the start and yields the same messages.
func Segment(transcript string) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		offset := 0
		for line := range strings.SplitSeq(transcript, "\n") {
			start := offset
			// Blank lines still advance the offset.
			offset += utf8.RuneCountInString(line) + 1

			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if !yield(classify(trimmed, start)) {
				return
			}
		}
	}
}

// Messages collects Segment into a slice.
func Messages(transcript string) []Message {
	return slices.Collect(Segment(transcript))
}

// classify matches a trimmed line against the role prefixes, case-insensitively.
func classify(line string, offset int) Message {
	for _, p := range rolePrefixes {
		if hasPrefixFold(line, p.prefix) {
			return Message{
				Role:        p.role,
				Content:     strings.TrimSpace(line[len(p.prefix):]),
				StartOffset: offset,
			}
		}
	}
	return Message{Role: RolePlain, Content: line, StartOffset: offset}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Counts tallies messages by role.
func Counts(messages iter.Seq[Message]) map[Role]int {
	counts := make(map[Role]int, 3)
	for m := range messages {
		counts[m.Role]++
	}
	return counts
}
