package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicVersion = "2023-06-01"
	systemPrompt     = "You are a senior startup analyst and venture partner. " +
		"You write thorough, specific, realistic business analyses. " +
		"Respond ONLY with valid JSON. Do not include explanations outside the JSON."
)

// HTTPTransport calls the Anthropic Messages API
type HTTPTransport struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewHTTPTransport creates a transport with the given API configuration
func NewHTTPTransport(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete sends the prompt as a single user message and returns the concatenated text reply
func (t *HTTPTransport) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      t.model,
		"max_tokens": t.maxTokens,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", t.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       string(body),
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResponse struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range apiResponse.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from provider (stop_reason=%s)", apiResponse.StopReason)
	}

	return text.String(), nil
}

// StubTransport returns canned content for local development without an API key
type StubTransport struct {
	delay time.Duration
}

// NewStubTransport creates a stub transport that waits delay before answering
func NewStubTransport(delay time.Duration) *StubTransport {
	return &StubTransport{delay: delay}
}

// Complete returns a fenced JSON analysis, or a single section when the
// prompt asks for one.
func (t *StubTransport) Complete(ctx context.Context, prompt string) (string, error) {
	if t.delay > 0 {
		if err := sleepContext(ctx, t.delay); err != nil {
			return "", err
		}
	}

	var body any = stubAnalysis
	if section, ok := sectionFromPrompt(prompt); ok {
		body = map[string]any{section: stubAnalysis[section]}
	}

	b, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}

var stubAnalysis = map[string]any{
	"summary": "A focused product with a clear early-adopter niche and a credible path to revenue.",
	"market_size": map[string]any{
		"tam":         "$12B",
		"sam":         "$1.4B",
		"som":         "$35M",
		"methodology": "Bottom-up estimate from comparable SaaS spend per target company.",
	},
	"target_audience": []any{
		map[string]any{"segment": "Independent consultants", "pain": "Manual reporting eats billable hours"},
		map[string]any{"segment": "Small agencies", "pain": "No visibility across client projects"},
	},
	"competitors": []any{
		map[string]any{"name": "Incumbent Suite", "strength": "Brand and integrations", "weakness": "Expensive, slow to adopt"},
		map[string]any{"name": "Spreadsheet workflows", "strength": "Free and flexible", "weakness": "Error-prone, no automation"},
	},
	"swot": map[string]any{
		"strengths":     []any{"Narrow, underserved niche", "Low build cost"},
		"weaknesses":    []any{"No distribution yet"},
		"opportunities": []any{"Partnerships with accounting platforms"},
		"threats":       []any{"Incumbents adding the same feature"},
	},
	"technical_feasibility": map[string]any{
		"complexity": "medium",
		"stack":      []any{"Go API", "Postgres", "React dashboard"},
		"risks":      []any{"Third-party API rate limits"},
	},
	"cost_estimate": map[string]any{
		"mvp":          "$40k over 3 months",
		"monthly_burn": "$8k",
	},
	"pricing": map[string]any{
		"model": "Tiered subscription",
		"tiers": []any{
			map[string]any{"name": "Solo", "price": "$19/mo"},
			map[string]any{"name": "Team", "price": "$79/mo"},
		},
	},
	"roadmap": []any{
		map[string]any{"phase": "MVP", "duration": "0-3 months", "goals": []any{"Core workflow", "10 design partners"}},
		map[string]any{"phase": "Launch", "duration": "3-6 months", "goals": []any{"Self-serve onboarding", "Billing"}},
		map[string]any{"phase": "Scale", "duration": "6-12 months", "goals": []any{"Integrations marketplace"}},
	},
	"pitch": "We give small teams the reporting superpowers of an enterprise suite at a tenth of the price.",
	"risk_assessment": []any{
		map[string]any{"risk": "Slow adoption", "likelihood": "medium", "mitigation": "Concierge onboarding"},
	},
	"go_to_market": map[string]any{
		"channels": []any{"Founder-led sales", "Community content", "Partner referrals"},
	},
}
