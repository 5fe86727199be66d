package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultRetryAfter is used when a rate-limited provider response carries no
// parseable retry hint.
const DefaultRetryAfter = 30 * time.Second

// RateLimitError reports that the generation provider refused a call due to
// rate limiting. RetryAfter is the delay the caller should wait before
// retrying; it is never zero.
type RateLimitError struct {
	RetryAfter time.Duration
	cause      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limited, retry after %ds", e.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error { return e.cause }

// RetryAfterSeconds returns the retry delay rounded up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// ProviderError reports a non-rate-limit upstream failure. It is surfaced to
// the caller as-is and never retried automatically.
type ProviderError struct {
	cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call failed: %v", e.cause)
}

func (e *ProviderError) Unwrap() error { return e.cause }

// Guard wraps a client so every provider failure comes back classified as
// either *RateLimitError or *ProviderError. The guard performs no retries;
// callers decide what to do with the retry-after hint.
func Guard(inner Client) Client {
	return &guardedClient{inner: inner}
}

type guardedClient struct {
	inner Client
}

func (g *guardedClient) Generate(ctx context.Context, messages []Message) (string, error) {
	out, err := g.inner.Generate(ctx, messages)
	if err != nil {
		return "", Classify(err)
	}
	return out, nil
}

func (g *guardedClient) GenerateJSON(ctx context.Context, messages []Message) (string, error) {
	var (
		out string
		err error
	)
	if jc, ok := g.inner.(JSONClient); ok {
		out, err = jc.GenerateJSON(ctx, messages)
	} else {
		out, err = g.inner.Generate(ctx, messages)
	}
	if err != nil {
		return "", Classify(err)
	}
	return out, nil
}

func (g *guardedClient) TranscribeImage(ctx context.Context, image []byte) (string, error) {
	vc, ok := g.inner.(VisionClient)
	if !ok {
		return "", &ProviderError{cause: fmt.Errorf("provider does not support image transcription")}
	}
	out, err := vc.TranscribeImage(ctx, image)
	if err != nil {
		return "", Classify(err)
	}
	return out, nil
}

var (
	_ JSONClient   = (*guardedClient)(nil)
	_ VisionClient = (*guardedClient)(nil)
)

// Classify translates a raw provider error into the guard's taxonomy. Errors
// that are already classified pass through unchanged, so embedding calls can
// reuse the same mapping.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		return err
	}
	var provider *ProviderError
	if errors.As(err, &provider) {
		return err
	}

	if status, ok := statusCode(err); ok && status == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfterHint(err.Error()), cause: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429") {
		return &RateLimitError{RetryAfter: retryAfterHint(err.Error()), cause: err}
	}

	return &ProviderError{cause: err}
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return httpErr.status, true
	}
	return 0, false
}

var (
	retryPhrasePattern = regexp.MustCompile(`(?i)(?:retry[ -]?after[:\s]+|wait\s+|try again in\s+)(\d+(?:\.\d+)?)\s*s`)
	bareSecondsPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*s(?:econds?)?\b`)
)

// retryAfterHint pulls a retry delay out of a provider error message, falling
// back to DefaultRetryAfter when none is present.
func retryAfterHint(message string) time.Duration {
	match := retryPhrasePattern.FindStringSubmatch(message)
	if match == nil {
		match = bareSecondsPattern.FindStringSubmatch(message)
	}
	if match == nil {
		return DefaultRetryAfter
	}

	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil || seconds <= 0 {
		return DefaultRetryAfter
	}
	return time.Duration(math.Ceil(seconds)) * time.Second
}
