// Package embedding generates Gemini text embeddings for the semantic library.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	maxRetries     = 3
	initialBackoff = time.Second
	maxBatchSize   = 100
)

// Task types understood by the embedding API
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

var (
	ErrMissingAPIKey   = errors.New("GEMINI_API_KEY not set")
	ErrEmbeddingFailed = errors.New("failed to generate embedding")
)

// Client calls the Gemini embedding endpoints
type Client struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API base URL
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithInitialBackoff sets the delay before the first retry
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// NewClient creates an embedding client
func NewClient(apiKey, model string, dimensions int, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff:    initialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimensions returns the output dimensionality
func (c *Client) Dimensions() int {
	return c.dimensions
}

type contentInput struct {
	Parts []partInput `json:"parts"`
}

type partInput struct {
	Text string `json:"text"`
}

type embedRequest struct {
	Model                string       `json:"model"`
	Content              contentInput `json:"content"`
	TaskType             string       `json:"taskType"`
	Title                string       `json:"title,omitempty"`
	OutputDimensionality int          `json:"outputDimensionality"`
}

type embedValues struct {
	Values []float32 `json:"values"`
}

// EmbedQuery embeds a search query
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{
		Model:                "models/" + c.model,
		Content:              contentInput{Parts: []partInput{{Text: text}}},
		TaskType:             TaskRetrievalQuery,
		OutputDimensionality: c.dimensions,
	}

	var resp struct {
		Embedding embedValues `json:"embedding"`
	}
	if err := c.post(ctx, ":embedContent", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, ErrEmbeddingFailed
	}
	return Normalize(resp.Embedding.Values), nil
}

// EmbedDocuments embeds document chunks, batching requests as needed
func (c *Client) EmbedDocuments(ctx context.Context, title string, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))

		requests := make([]embedRequest, 0, end-start)
		for _, text := range texts[start:end] {
			requests = append(requests, embedRequest{
				Model:                "models/" + c.model,
				Content:              contentInput{Parts: []partInput{{Text: text}}},
				TaskType:             TaskRetrievalDocument,
				Title:                title,
				OutputDimensionality: c.dimensions,
			})
		}

		var resp struct {
			Embeddings []embedValues `json:"embeddings"`
		}
		if err := c.post(ctx, ":batchEmbedContents", map[string]any{"requests": requests}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, end-start, len(resp.Embeddings))
		}
		for _, e := range resp.Embeddings {
			out = append(out, Normalize(e.Values))
		}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, method string, body any, out any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s%s", c.baseURL, c.model, method)

	backoff := c.backoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				if attempt == maxRetries-1 {
					return fmt.Errorf("failed to decode response: %w", err)
				}
				continue
			}
			return nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		// Don't retry on 400 or 401 errors
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("API error: %d", resp.StatusCode)
		}
		if attempt == maxRetries-1 {
			return fmt.Errorf("API error after %d attempts: %d", maxRetries, resp.StatusCode)
		}
	}

	return ErrEmbeddingFailed
}

// Normalize scales v to unit length in place and returns it
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v
}
