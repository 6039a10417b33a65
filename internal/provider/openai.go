// Package provider implements the oracle.Generator contract against
// OpenAI-compatible chat-completion APIs. The base URL is configurable, so
// the same client serves OpenAI, OpenRouter, and local inference servers.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/iambrandonn/nlsh/internal/oracle"
)

const defaultRequestTimeout = 30 * time.Second

// OpenAIClient talks to a /chat/completions endpoint.
type OpenAIClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for the given endpoint and model.
func NewOpenAIClient(baseURL, model, apiKey string, logger *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateStructured requests a JSON-object completion constrained by the
// schema (embedded in the system prompt; not every compatible server supports
// server-side schema enforcement). Data is nil when the response is not a
// parseable JSON object.
func (c *OpenAIClient) GenerateStructured(ctx context.Context, schema, systemPrompt string, messages []oracle.Message) (*oracle.StructuredResult, error) {
	system := systemPrompt + "\n\nRespond with a single JSON object conforming to this JSON schema, and nothing else:\n" + schema

	content, err := c.complete(ctx, system, messages, &responseFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}

	result := &oracle.StructuredResult{RawText: content}
	if extracted, ok := extractJSONObject(content); ok {
		result.Data = json.RawMessage(extracted)
	} else {
		c.logger.Warn("structured completion was not a JSON object", "model", c.model)
	}
	return result, nil
}

// GenerateText requests a plain completion.
func (c *OpenAIClient) GenerateText(ctx context.Context, systemPrompt string, messages []oracle.Message) (string, error) {
	return c.complete(ctx, systemPrompt, messages, nil)
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt string, messages []oracle.Message, format *responseFormat) (string, error) {
	chatMessages := make([]chatMessage, 0, len(messages)+1)
	chatMessages = append(chatMessages, chatMessage{Role: "system", Content: systemPrompt})
	for _, m := range messages {
		chatMessages = append(chatMessages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       chatMessages,
		Temperature:    0.2,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation request returned %d: %s", resp.StatusCode, truncate(string(data), 512))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// extractJSONObject pulls a JSON object out of a completion, tolerating
// markdown fences and surrounding prose.
func extractJSONObject(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
