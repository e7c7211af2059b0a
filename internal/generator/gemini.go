// Package generator turns extracted pages into llms.txt documents with the
// help of a language model.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

const defaultModel = "gemini-2.5-flash-lite"

// GeminiClient implements crawl.GenerationClient on top of the Google
// generative AI SDK. The API key lives only inside the SDK client and is
// released when Close is called.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient dials the generative language API with the supplied key.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// NewGenerationClient adapts NewGeminiClient to crawl.GenerationClientFactory.
func NewGenerationClient(model string) crawl.GenerationClientFactory {
	return func(ctx context.Context, apiKey string) (crawl.GenerationClient, error) {
		return NewGeminiClient(ctx, apiKey, model)
	}
}

// GenerateJSON sends a prompt and returns the raw text of the first
// candidate, with any markdown code fences stripped.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.ResponseMIMEType = "application/json"
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("model returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return StripFences(sb.String()), nil
}

// Validate performs a minimal generation call to prove the key works
// before a job is accepted.
func (c *GeminiClient) Validate(ctx context.Context) error {
	model := c.client.GenerativeModel(c.model)
	if _, err := model.GenerateContent(ctx, genai.Text("Reply with OK.")); err != nil {
		return fmt.Errorf("validate api key: %w", err)
	}
	return nil
}

// Close releases the underlying SDK client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// StripFences removes ```json ... ``` wrappers that models sometimes emit
// around JSON payloads.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
