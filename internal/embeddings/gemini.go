package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiDriver implements Driver against the Gemini batch embedding API.
// Supports text-embedding-004 (768d).
type GeminiDriver struct {
	apiKey     string
	model      string
	endpoint   string
	dimensions int
	client     *http.Client
}

// GeminiOption configures the Gemini driver.
type GeminiOption func(*GeminiDriver)

// WithGeminiEndpoint sets a custom API base URL.
func WithGeminiEndpoint(endpoint string) GeminiOption {
	return func(d *GeminiDriver) { d.endpoint = endpoint }
}

// NewGeminiDriver creates a Gemini embedding driver.
func NewGeminiDriver(apiKey, model string, opts ...GeminiOption) *GeminiDriver {
	dims := 768
	d := &GeminiDriver{
		apiKey:     apiKey,
		model:      model,
		endpoint:   "https://generativelanguage.googleapis.com/v1beta",
		dimensions: dims,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *GeminiDriver) Kind() string    { return "gemini" }
func (d *GeminiDriver) ModelID() string { return d.model }
func (d *GeminiDriver) Dimensions() int { return d.dimensions }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedItem struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedItem `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates vector embeddings via batchEmbedContents.
func (d *GeminiDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	items := make([]geminiEmbedItem, len(texts))
	for i, t := range texts {
		items[i] = geminiEmbedItem{
			Model:   "models/" + d.model,
			Content: geminiContent{Parts: []geminiPart{{Text: t}}},
		}
	}
	body, err := json.Marshal(geminiBatchRequest{Requests: items})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", d.endpoint, d.model, d.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini embeddings API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result geminiBatchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("gemini error %d: %s", result.Error.Code, result.Error.Message)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for i, e := range result.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}
