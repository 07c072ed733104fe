package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kaptinlin/jsonschema"
)

// Defaults for the retry policy
const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 120 * time.Second
)

// RequiredSections must be present at the top level of every full analysis.
var RequiredSections = []string{"summary", "market_size", "competitors", "swot", "roadmap"}

// Adapter calls a Transport with a per-attempt timeout, retries transient
// failures and guarantees the shape of what it returns. It never looks at the
// meaning of the content.
type Adapter struct {
	transport   Transport
	timeout     time.Duration
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	schema      *jsonschema.Schema
	logger      *slog.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithTimeout bounds each individual provider call.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithMaxAttempts sets how many calls Generate makes before giving up.
func WithMaxAttempts(n int) Option {
	return func(a *Adapter) { a.maxAttempts = n }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Adapter) { a.sleep = sleep }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// NewAdapter creates an adapter over transport
func NewAdapter(transport Transport, opts ...Option) (*Adapter, error) {
	schema, err := compileResultSchema()
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		transport:   transport,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
		schema:      schema,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxAttempts < 1 {
		a.maxAttempts = 1
	}
	return a, nil
}

// Generate produces a full analysis for prompt.
//
// A rate-limited attempt waits 2^attempt seconds before the next one; any
// other failure is retried immediately. The error returned after the last
// attempt matches ErrProviderFatal and wraps the final cause.
func (a *Adapter) Generate(ctx context.Context, prompt string) (Result, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		attempts = attempt

		result, err := a.generateOnce(ctx, prompt)
		if err == nil {
			if attempt > 1 {
				a.logger.Info("Provider generation succeeded after retry", "attempt", attempt)
			}
			return result, nil
		}
		lastErr = err

		if attempt == a.maxAttempts || ctx.Err() != nil {
			break
		}

		if IsRateLimited(err) {
			delay := time.Duration(1<<attempt) * time.Second
			a.logger.Warn(
				"Provider rate limited, backing off",
				"attempt", attempt,
				"max_attempts", a.maxAttempts,
				"delay", delay,
				"error", err.Error(),
			)
			if err := a.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
			continue
		}

		a.logger.Warn(
			"Provider attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", a.maxAttempts,
			"error", err.Error(),
		)
	}

	return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrProviderFatal, attempts, lastErr)
}

// RegenerateSection makes a single call and returns the parsed JSON value as
// is. Where it lands in the analysis is the caller's decision.
func (a *Adapter) RegenerateSection(ctx context.Context, prompt, section string) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.transport.Complete(attemptCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: regenerate %s: %w", ErrProviderFatal, section, err)
	}

	var value any
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &value); err != nil {
		return nil, fmt.Errorf("%w: regenerate %s: %w: %v", ErrProviderFatal, section, ErrMalformedResponse, err)
	}
	return value, nil
}

func (a *Adapter) generateOnce(ctx context.Context, prompt string) (Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.transport.Complete(attemptCtx, prompt)
	if err != nil {
		return nil, err
	}
	return a.parseResult(text)
}

func (a *Adapter) parseResult(text string) (Result, error) {
	var parsed any
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedResponse, err)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %T", ErrMalformedResponse, parsed)
	}

	result := a.schema.Validate(obj)
	if !result.IsValid() {
		var messages []string
		for field, evalErr := range result.Errors {
			messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(messages)
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(messages, "; "))
	}

	return Result(obj), nil
}

// StripCodeFence removes a surrounding markdown code fence, with or without a
// language tag, and returns the trimmed inner text.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the language tag, which directly follows the opening fence.
	s = strings.TrimLeftFunc(strings.TrimPrefix(s, "```"), unicode.IsLetter)
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func compileResultSchema() (*jsonschema.Schema, error) {
	required, err := json.Marshal(RequiredSections)
	if err != nil {
		return nil, err
	}
	schemaData := []byte(`{"type":"object","required":` + string(required) + `}`)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to compile result schema: %w", err)
	}
	return schema, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
