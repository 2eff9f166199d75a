package genai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Healer-AI/p8fs-sub000/pkg/retry"
)

type fakeModels struct {
	calls  atomic.Int32
	failN  int32
	err    error
	values []float32
	last   *genai.EmbedContentConfig
	model  string
}

func (f *fakeModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	n := f.calls.Add(1)
	f.last = cfg
	f.model = model
	if n <= f.failN {
		return nil, f.err
	}
	if f.values == nil {
		return &genai.EmbedContentResponse{}, nil
	}
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: f.values}},
	}, nil
}

func newTestClient(t *testing.T, models *fakeModels) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{Dimension: 3},
		WithEmbedder(models),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}),
	)
	require.NoError(t, err)
	return c
}

func TestEmbedQuery(t *testing.T) {
	models := &fakeModels{values: []float32{0.1, 0.2, 0.3}}
	c := newTestClient(t, models)

	vec, err := c.EmbedQuery(context.Background(), "database performance")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, DefaultModel, models.model)
	assert.Equal(t, "RETRIEVAL_QUERY", models.last.TaskType)
	require.NotNil(t, models.last.OutputDimensionality)
	assert.Equal(t, int32(3), *models.last.OutputDimensionality)
}

func TestEmbedQuery_RetriesTransientFailures(t *testing.T) {
	models := &fakeModels{values: []float32{1}, failN: 2, err: errors.New("503 unavailable")}
	c := newTestClient(t, models)

	vec, err := c.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), models.calls.Load())
}

func TestEmbedQuery_GivesUp(t *testing.T) {
	models := &fakeModels{values: []float32{1}, failN: 10, err: errors.New("503 unavailable")}
	c := newTestClient(t, models)

	_, err := c.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(3), models.calls.Load())
}

func TestEmbedQuery_EmptyResponseIsNotRetried(t *testing.T) {
	models := &fakeModels{}
	c := newTestClient(t, models)

	_, err := c.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEmbedding)
	assert.Equal(t, int32(1), models.calls.Load())
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)
}

func TestConfig_UseVertex(t *testing.T) {
	assert.True(t, Config{Project: "p", Location: "us-central1"}.UseVertex())
	assert.False(t, Config{APIKey: "k"}.UseVertex())
}
