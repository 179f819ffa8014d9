package ops

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/errors"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/extract"
	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/segment"
)

// DefaultMinTranscriptChars is the shortest transcript accepted when the
// caller does not configure one.
const DefaultMinTranscriptChars = 50

// TopicExtractor produces topics for a transcript. *extract.Extractor
// satisfies it.
type TopicExtractor interface {
	Extract(ctx context.Context, transcript string) extract.Outcome
}

// AnalyzeInput contains parameters for the Analyze operation.
type AnalyzeInput struct {
	Conversation string
	Title        string

	// MinChars overrides DefaultMinTranscriptChars when positive.
	MinChars int
}

// AnalyzeOutput is the result of analyzing one transcript.
type AnalyzeOutput struct {
	Topics              []extract.Topic   `json:"topics"`
	ConversationSummary string            `json:"conversation_summary"`
	Title               string            `json:"title"`
	ConversationContent string            `json:"conversation_content"`
	Source              extract.Source    `json:"source"`
	Messages            []segment.Message `json:"-"`

	// Reason explains a heuristic Source; empty otherwise.
	Reason string `json:"fallback_reason,omitempty"`
}

// ValidateTranscript checks that transcript is long enough to analyze.
// Length is counted in characters.
func ValidateTranscript(transcript string, minChars int) error {
	if minChars <= 0 {
		minChars = DefaultMinTranscriptChars
	}
	if transcript == "" {
		return errors.NewInvalidRequest("Conversation text is required")
	}
	if n := utf8.RuneCountInString(transcript); n < minChars {
		return errors.NewTranscriptTooShort(minChars, n)
	}
	return nil
}

// Analyze validates a transcript, then segments it and extracts topics
// concurrently. Extraction failures never surface here; they degrade to
// heuristic topics recorded in Source and Reason.
func Analyze(ctx context.Context, extractor TopicExtractor, input AnalyzeInput) (*AnalyzeOutput, error) {
	if err := ValidateTranscript(input.Conversation, input.MinChars); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = DefaultTitle
	}

	var (
		messages []segment.Message
		outcome  extract.Outcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		messages = segment.Messages(input.Conversation)
		return nil
	})
	g.Go(func() error {
		outcome = extractor.Extract(gctx, input.Conversation)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("analyze")
	}

	return &AnalyzeOutput{
		Topics:              outcome.Result.Topics,
		ConversationSummary: outcome.Result.ConversationSummary,
		Title:               title,
		ConversationContent: input.Conversation,
		Source:              outcome.Source,
		Messages:            messages,
		Reason:              outcome.ReasonText(),
	}, nil
}

// Result returns the extraction result carried by out.
func (out *AnalyzeOutput) Result() extract.Result {
	return extract.Result{Topics: out.Topics, ConversationSummary: out.ConversationSummary}
}
