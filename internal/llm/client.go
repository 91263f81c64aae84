// Package llm holds the answer-synthesis and query-routing clients built on
// the completion backends.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"
	"google.golang.org/api/option"
)

// Client is the abstraction over the underlying text-generation backends.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// CompletionClient calls an OpenAI-compatible completion endpoint such as a
// TGI or Together deployment.
type CompletionClient struct {
	url         string
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	topP        float32
	httpClient  *http.Client
}

func NewCompletionClient(url, apiKey, model string, maxTokens int, temperature, topP float32, timeout time.Duration) *CompletionClient {
	return &CompletionClient{
		url:         url,
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
	Temperature float32  `json:"temperature"`
	TopP        float32  `json:"top_p"`
}

// Generate sends a completion request and returns the first choice's text.
func (c *CompletionClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(completionRequest{
		Model:       c.model,
		Prompt:      prompt,
		MaxTokens:   c.maxTokens,
		Stop:        []string{"</s>"},
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion backend returned status %d: %s", resp.StatusCode, string(body))
	}

	text := gjson.GetBytes(body, "choices.0.text")
	if !text.Exists() {
		return "", fmt.Errorf("completion response carried no choices")
	}
	return text.String(), nil
}

func (c *CompletionClient) Name() string {
	return fmt.Sprintf("Completion (%s)", c.model)
}

// GeminiClient generates answers through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key must not be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  client.GenerativeModel("gemini-1.5-flash"),
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	log.Printf("[Gemini] Sending request to Gemini 1.5 Flash...")

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from gemini")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text), nil
		}
	}
	return "", fmt.Errorf("unexpected response format from gemini")
}

func (c *GeminiClient) Name() string {
	return "Gemini 1.5 Flash (Cloud)"
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}
