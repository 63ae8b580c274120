package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Client is an OpenAI-compatible embeddings API client.
type Client struct {
	APIKey           string
	BaseURL          string
	EmbeddingBaseURL string // Separate base URL for embeddings (optional)
	HTTP             *http.Client
}

// NewClient creates a new client from environment variables.
func NewClient() *Client {
	baseURL := getEnvOr("BASE_URL", "https://api.openai.com/v1")
	return &Client{
		APIKey:           os.Getenv("OPENAI_API_KEY"),
		BaseURL:          baseURL,
		EmbeddingBaseURL: getEnvOr("EMBEDDING_URL", baseURL),
		HTTP: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// NewClientWith creates a client with explicit parameters.
func NewClientWith(apiKey, baseURL string) *Client {
	return &Client{
		APIKey:           apiKey,
		BaseURL:          baseURL,
		EmbeddingBaseURL: baseURL,
		HTTP:             &http.Client{Timeout: 120 * time.Second},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates embedding vectors for the given texts. The result is
// aligned with texts; entries the API did not return are nil.
func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if model == "" {
		model = DefaultEmbeddingModel
	}

	req := embeddingRequest{
		Model: model,
		Input: texts,
	}

	var url string
	if strings.HasSuffix(c.EmbeddingBaseURL, "/embeddings") {
		url = c.EmbeddingBaseURL
	} else {
		url = strings.TrimSuffix(c.EmbeddingBaseURL, "/") + "/embeddings"
	}

	body, err := c.postTo(ctx, url, req)
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}

	// Sort by index to maintain order
	result := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(result) {
			result[d.Index] = d.Embedding
		}
	}

	return result, nil
}

func (c *Client) postTo(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
