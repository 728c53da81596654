// Package gemini provides a client for the Google Generative Language REST
// API. It exposes a plain text-in/text-out completion call; prompt assembly
// and answer policy live in engine/rag.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the production Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrNoAnswer means the model responded but the reply carried no answer text.
var ErrNoAnswer = errors.New("gemini: response contains no answer text")

// ErrMissingKey means the client was built without a usable API key.
var ErrMissingKey = errors.New("gemini: api key missing or placeholder")

// Client calls a Gemini model for text completion.
type Client struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float32
	client      *http.Client
}

// New creates a Gemini client. The key may be empty or a placeholder; the
// client is still constructed so startup can proceed, but every Generate
// call will fail with ErrMissingKey until a real key is configured.
func New(baseURL, model, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		model:       model,
		apiKey:      apiKey,
		temperature: 0.7,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// Configured reports whether the client has a usable API key.
func (c *Client) Configured() bool {
	return !IsPlaceholderKey(c.apiKey)
}

// IsPlaceholderKey reports whether a key is absent or still a template value.
func IsPlaceholderKey(key string) bool {
	if strings.TrimSpace(key) == "" {
		return true
	}
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "YOUR_") || strings.Contains(upper, "API_KEY_HERE")
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate sends the prompt and returns the model's answer text. A response
// with no candidate text yields ErrNoAnswer rather than an empty string.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", ErrMissingKey
	}

	body, _ := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: c.temperature},
	})

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	defer resp.Body.Close()

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("gemini decode: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("gemini generate: %s (status %s)", result.Error.Message, result.Error.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini generate: status %d", resp.StatusCode)
	}

	var b strings.Builder
	for _, cand := range result.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		// Only the first candidate is used.
		break
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrNoAnswer
	}
	return b.String(), nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }
