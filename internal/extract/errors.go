package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Reasons a model extraction degrades to the heuristic.
// Wrapped with context; check with errors.Is.
var (
	ErrNoCredentials     = errors.New("no API key configured")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrRateLimit         = errors.New("rate limit exceeded")
	ErrTimeout           = errors.New("request timeout")
	ErrUpstream          = errors.New("upstream error")
	ErrEmptyResponse     = errors.New("empty model response")
	ErrMalformedResponse = errors.New("malformed model response")
)

// classifyError maps go-openai and transport errors to the sentinels above.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(reqErr.HTTPStatusCode, reqErr.Error())
	}

	return fmt.Errorf("%v: %w", err, ErrUpstream)
}

func statusError(code int, msg string) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, ErrAuthFailed)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, ErrRateLimit)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w", msg, ErrTimeout)
	}
	return fmt.Errorf("status %d: %s: %w", code, msg, ErrUpstream)
}
