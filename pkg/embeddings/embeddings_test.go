package embeddings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubClient struct {
	vec []float32
	err error
}

func (s stubClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.vec, s.err
}

func TestNoopClient_EmbedQuery(t *testing.T) {
	result, err := NewNoopClient().EmbedQuery(context.Background(), "test query")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestNewNoopService(t *testing.T) {
	svc := NewNoopService(discardLogger())
	require.NotNil(t, svc)
	assert.False(t, svc.IsEnabled())
}

func TestNewServiceWithClient(t *testing.T) {
	svc := NewServiceWithClient(stubClient{vec: []float32{0.5, 0.25}}, discardLogger())
	assert.True(t, svc.IsEnabled())

	vec, err := svc.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)

	svc = NewServiceWithClient(stubClient{err: errors.New("quota")}, discardLogger())
	_, err = svc.EmbedQuery(context.Background(), "q")
	assert.EqualError(t, err, "quota")
}

func TestNewService_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EmbeddingsConfig
	}{
		{"no credentials", config.EmbeddingsConfig{}},
		{"network disabled", config.EmbeddingsConfig{GoogleAPIKey: "key", NetworkDisabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := fxtest.NewLifecycle(t)
			svc := NewService(lc, &config.Config{Embeddings: tt.cfg}, discardLogger())
			lc.RequireStart()
			defer lc.RequireStop()

			assert.False(t, svc.IsEnabled())
			vec, err := svc.EmbedQuery(context.Background(), "q")
			assert.NoError(t, err)
			assert.Nil(t, vec)
		})
	}
}
