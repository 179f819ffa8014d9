package extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Syed-Sharful-Islam-Sifat/Easy-Conversation/internal/config"
)

const (
	defaultBaseURL     = "https://api.deepseek.com/v1"
	defaultModel       = "deepseek-chat"
	defaultMaxTokens   = 2000
	defaultTemperature = 0.3

	// demoKey is treated the same as no key at all.
	demoKey = "demo-key"
)

// chatCompleter is the subset of *openai.Client used here.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor calls an OpenAI-compatible chat-completion endpoint and falls
// back to the heuristic extractor whenever that call cannot be used.
// It is safe for concurrent use.
type Extractor struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	client      chatCompleter
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel sets the completion model.
func WithModel(model string) Option {
	return func(e *Extractor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithBaseURL sets the API base URL (for testing or proxies).
func WithBaseURL(url string) Option {
	return func(e *Extractor) {
		if url != "" {
			e.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(e *Extractor) {
		e.temperature = t
	}
}

// WithTimeout bounds each completion call. Zero means no bound beyond the
// caller's context and the transport.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		e.timeout = d
	}
}

// withClient replaces the completion client (for testing).
func withClient(c chatCompleter) Option {
	return func(e *Extractor) {
		e.client = c
	}
}

// New creates an Extractor. An empty or demo API key yields an Extractor
// that always uses the heuristic.
func New(apiKey string, opts ...Option) *Extractor {
	e := &Extractor{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(e)
	}
	// Client is built after options so the base URL applies.
	if e.client == nil && e.HasCredentials() {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = e.baseURL
		e.client = openai.NewClientWithConfig(cfg)
	}
	return e
}

// NewFromConfig creates an Extractor from loaded configuration.
func NewFromConfig(cfg config.ExtractionConfig) *Extractor {
	opts := []Option{
		WithModel(cfg.Model),
		WithBaseURL(cfg.BaseURL),
		WithMaxTokens(cfg.MaxTokens),
		WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
	if cfg.Temperature != nil {
		opts = append(opts, WithTemperature(float32(*cfg.Temperature)))
	}
	return New(cfg.APIKey, opts...)
}

// HasCredentials reports whether a usable API key is configured.
func (e *Extractor) HasCredentials() bool {
	return e.apiKey != "" && e.apiKey != demoKey
}

// Model returns the configured completion model.
func (e *Extractor) Model() string {
	return e.model
}

// Extract returns topics for transcript. It never fails: any problem with
// the model call produces a heuristic Outcome whose Reason says why.
// There is no retry.
func (e *Extractor) Extract(ctx context.Context, transcript string) Outcome {
	if e.client == nil {
		return degraded(transcript, ErrNoCredentials)
	}

	res, err := e.complete(ctx, transcript)
	if err != nil {
		log.Printf("extract: using heuristic topics: %v", err)
		return degraded(transcript, err)
	}
	return Outcome{Result: res, Source: SourceModel}
}

func (e *Extractor) complete(ctx context.Context, transcript string) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return Result{}, classifyError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Result{}, ErrEmptyResponse
	}

	obj, err := decodeContent(resp.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	res, kept := normalize(obj, transcript)
	if kept == 0 {
		return Result{}, fmt.Errorf("no usable topics in model output: %w", ErrMalformedResponse)
	}
	if len(res.Topics) > MaxTopics {
		res.Topics = res.Topics[:MaxTopics]
	}
	return res, nil
}

func degraded(transcript string, reason error) Outcome {
	return Outcome{
		Result: Fallback(transcript),
		Source: SourceHeuristic,
		Reason: reason,
	}
}
