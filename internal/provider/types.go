// Package provider wraps the external generative service that writes idea analyses.
package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse means the provider answered with text that is not
	// a JSON document of the expected shape.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrProviderFatal means generation failed for good: retries were
	// exhausted or the request was not retryable.
	ErrProviderFatal = errors.New("provider generation failed")
)

// Result is a parsed analysis: top-level section name to arbitrary JSON value.
type Result map[string]any

// Transport sends one prompt to the provider and returns its raw text reply.
type Transport interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RateLimitError is returned by a Transport when the provider throttled the request.
type RateLimitError struct {
	StatusCode int
	RetryAfter string
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("provider rate limited (status %d, retry-after %s): %s", e.StatusCode, e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("provider rate limited (status %d): %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err was caused by provider throttling.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
