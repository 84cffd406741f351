// Package embeddings provides text embedding via Ollama.
package embeddings

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// Embedder generates fixed-dimension vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() uint64
}

// Service handles embedding generation. Results are cached by content hash;
// transient failures are retried within a bounded window at a fixed interval.
type Service struct {
	baseURL string
	model   string
	client  *http.Client

	retryWindow  time.Duration
	pollInterval time.Duration

	mu    sync.RWMutex
	cache map[string][]float32
}

// Config for embedding service
type Config struct {
	BaseURL      string        // Ollama URL, default "http://localhost:11434"
	Model        string        // Embedding model, default "nomic-embed-text"
	Timeout      time.Duration // Per-request timeout
	RetryWindow  time.Duration // Total time to keep retrying transient failures
	PollInterval time.Duration // Fixed wait between retries
}

// DefaultConfig returns sensible defaults, reading from env vars if set
func DefaultConfig() Config {
	baseURL := os.Getenv("OLLAMA_HOST")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := os.Getenv("OLLAMA_EMBED_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}
	return Config{
		BaseURL:      baseURL,
		Model:        model,
		Timeout:      30 * time.Second,
		RetryWindow:  2 * time.Minute,
		PollInterval: 5 * time.Second,
	}
}

// NewService creates an embedding service
func NewService(cfg Config) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryWindow == 0 {
		cfg.RetryWindow = 2 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}

	return &Service{
		baseURL:      cfg.BaseURL,
		model:        cfg.Model,
		retryWindow:  cfg.RetryWindow,
		pollInterval: cfg.PollInterval,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache: make(map[string][]float32),
	}
}

// EmbedRequest is the Ollama embedding API request
type EmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// EmbedResponse is the Ollama embedding API response
type EmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for the given text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	deadline := time.Now().Add(s.retryWindow)
	var lastErr error

	for {
		embedding, retryable, err := s.embedOnce(ctx, text)
		if err == nil {
			s.mu.Lock()
			s.cache[key] = embedding
			s.mu.Unlock()
			return embedding, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("embedding retries exhausted: %w", lastErr)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// embedOnce performs a single request. The second return value reports
// whether the failure is worth retrying.
func (s *Service) embedOnce(ctx context.Context, text string) ([]float32, bool, error) {
	req := EmbedRequest{
		Model:  s.model,
		Prompt: text,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		// Network errors are transient.
		return nil, true, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("embedding failed: %s - %s", resp.Status, string(respBody))
		return nil, retryableStatus(resp.StatusCode), err
	}

	var embedResp EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}

	return embedResp.Embedding, false, nil
}

// retryableStatus reports whether a status code indicates a transient
// condition. Client errors other than 429 fail fast.
func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500
}

// CacheSize returns the number of cached embeddings.
func (s *Service) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Dimension returns the embedding dimension (for nomic-embed-text: 768)
func (s *Service) Dimension() uint64 {
	return 768
}

// ModelName returns the model being used
func (s *Service) ModelName() string {
	return s.model
}

// Health checks if Ollama is available
func (s *Service) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama unhealthy: %s", resp.Status)
	}

	return nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
