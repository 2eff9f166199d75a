// Package embeddings turns REM search text into query vectors.
package embeddings

import (
	"context"
)

// Client generates query embeddings.
type Client interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// NoopClient is used when no embedding provider is configured. It returns
// no vector, which SEARCH reports as an unavailable backend.
type NoopClient struct{}

// NewNoopClient creates a new NoopClient
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

// EmbedQuery returns nil, nil (no embedding available)
func (c *NoopClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return nil, nil
}
