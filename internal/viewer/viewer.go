// Package viewer builds the transcript viewer model: role-tagged messages,
// the topic each belongs to, and where each topic sits in the transcript.
package viewer

import (
	"bytes"
	"html/template"
	"unicode/utf8"

	"github.com/yuin/goldmark"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/conversation"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/segment"
)

// NoTopic is the TopicIndex of a message outside every topic.
const NoTopic = -1

// NoScroll is the ScrollFraction of a topic that starts past the transcript.
const NoScroll = -1.0

// Raw HTML in model output is dropped (goldmark's default).
var markdown = goldmark.New()

// View is everything the conversation page renders.
type View struct {
	Title    string
	Chars    int
	Messages []MessageView
	Topics   []TopicView
}

// MessageView is one transcript message ready for display.
type MessageView struct {
	Role    segment.Role
	Content string
	HTML    template.HTML
	Offset  int

	// TopicIndex is the index into View.Topics of the first topic whose
	// span overlaps the message's region, or NoTopic.
	TopicIndex int

	// Marker is set on the first message of each run of messages sharing a topic.
	Marker bool
}

// TopicView is one entry of the topic index.
type TopicView struct {
	Number  int
	Title   string
	Summary string
	Start   int
	End     int

	// ScrollFraction is Start relative to the transcript length, in [0, 1],
	// or NoScroll.
	ScrollFraction float64
}

// Build assembles the view for a transcript and its topics.
func Build(title, transcript string, topics []extract.Topic) View {
	n := utf8.RuneCountInString(transcript)

	v := View{
		Title:  title,
		Chars:  n,
		Topics: make([]TopicView, 0, len(topics)),
	}
	for i, t := range topics {
		v.Topics = append(v.Topics, TopicView{
			Number:         i + 1,
			Title:          t.Title,
			Summary:        t.Summary,
			Start:          t.PositionStart,
			End:            t.PositionEnd,
			ScrollFraction: ScrollFraction(t.PositionStart, n),
		})
	}

	messages := segment.Messages(transcript)
	prev := NoTopic
	for i, m := range messages {
		// A message's region runs up to the next message, so the role
		// prefix and any blank lines after it belong with its content.
		end := n
		if i+1 < len(messages) {
			end = messages[i+1].StartOffset - 1
		}
		idx := topicAt(topics, m.StartOffset, end)
		v.Messages = append(v.Messages, MessageView{
			Role:       m.Role,
			Content:    m.Content,
			HTML:       render(m),
			Offset:     m.StartOffset,
			TopicIndex: idx,
			Marker:     idx != NoTopic && idx != prev,
		})
		prev = idx
	}
	return v
}

// ScrollFraction returns how far into a transcript of length chars the
// offset start sits. An empty transcript scrolls to the top.
func ScrollFraction(start, chars int) float64 {
	switch {
	case chars == 0:
		return 0
	case start > chars:
		return NoScroll
	case start <= 0:
		return 0
	}
	return float64(start) / float64(chars)
}

// FromStored converts persisted topics for Build.
func FromStored(stored []conversation.Topic) []extract.Topic {
	topics := make([]extract.Topic, len(stored))
	for i, t := range stored {
		topics[i] = extract.Topic{
			Title:         t.Title,
			Summary:       t.Summary,
			PositionStart: t.PositionStart,
			PositionEnd:   t.PositionEnd,
		}
	}
	return topics
}

func topicAt(topics []extract.Topic, start, end int) int {
	for i, t := range topics {
		if t.PositionStart <= end && start <= t.PositionEnd {
			return i
		}
	}
	return NoTopic
}

// render formats assistant replies as markdown and everything else as text.
func render(m segment.Message) template.HTML {
	if m.Role == segment.RoleAssistant {
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &buf); err == nil {
			return template.HTML(buf.String())
		}
	}
	return template.HTML(template.HTMLEscapeString(m.Content))
}
