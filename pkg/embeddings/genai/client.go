// Package genai provides a Google Gen AI embeddings client for query text.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
	"github.com/Healer-AI/p8fs-sub000/pkg/retry"
)

const (
	// DefaultModel is the default embedding model
	DefaultModel = "text-embedding-004"

	// DefaultDimension is the embedding dimension for text-embedding-004
	DefaultDimension = 768

	// DefaultMaxAttempts bounds calls per text, including the first
	DefaultMaxAttempts = 4

	// DefaultBaseDelay is the base delay for exponential backoff
	DefaultBaseDelay = 100 * time.Millisecond

	// DefaultMaxDelay is the maximum delay for exponential backoff
	DefaultMaxDelay = 10 * time.Second

	taskRetrievalQuery = "RETRIEVAL_QUERY"
)

// ErrNoEmbedding is returned when the API answers without a vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// Config selects the Gemini API (APIKey) or Vertex AI (Project, Location).
type Config struct {
	APIKey    string
	Project   string
	Location  string
	Model     string
	Dimension int
}

// UseVertex reports whether Vertex AI credentials were given.
func (c Config) UseVertex() bool {
	return c.Project != "" && c.Location != ""
}

// Embedder is the slice of the genai Models API the client needs.
type Embedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client embeds query text with retry.
type Client struct {
	models    Embedder
	model     string
	dimension int
	policy    retry.Policy
	log       *slog.Logger
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithRetryPolicy replaces the default backoff policy
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithEmbedder swaps the API for tests
func WithEmbedder(e Embedder) ClientOption {
	return func(c *Client) {
		c.models = e
	}
}

// NewClient creates a client for the configured backend.
func NewClient(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}

	c := &Client{
		model:     cfg.Model,
		dimension: cfg.Dimension,
		policy: retry.Policy{
			MaxAttempts: DefaultMaxAttempts,
			Delay:       DefaultBaseDelay,
			Multiplier:  2,
			MaxDelay:    DefaultMaxDelay,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.models != nil {
		return c, nil
	}

	cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: cfg.APIKey}
	if cfg.UseVertex() {
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key or Vertex project is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	c.models = client.Models
	return c, nil
}

// EmbedQuery embeds one search query.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	dim := int32(c.dimension)
	policy := c.policy
	policy.OnRetry = func(attempt int, err error) {
		c.log.Warn("embedding request failed",
			slog.Int("attempt", attempt),
			logger.Error(err),
		)
	}

	vec, err := retry.DoWithResult(ctx, policy, func(ctx context.Context) ([]float32, error) {
		resp, err := c.models.EmbedContent(ctx, c.model, genai.Text(query), &genai.EmbedContentConfig{
			TaskType:             taskRetrievalQuery,
			OutputDimensionality: &dim,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return nil, retry.Permanent(ErrNoEmbedding)
		}
		return resp.Embeddings[0].Values, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}
