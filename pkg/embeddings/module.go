package embeddings

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/pkg/embeddings/genai"
	"github.com/Healer-AI/p8fs-sub000/pkg/logger"
)

// Module provides the embeddings fx.Module
var Module = fx.Module("embeddings",
	fx.Provide(NewService),
)

// Service hands out query embeddings from whichever client is configured.
type Service struct {
	client  Client
	log     *slog.Logger
	enabled bool
}

// NewNoopService creates a service with a noop client (for testing)
func NewNoopService(log *slog.Logger) *Service {
	return &Service{client: NewNoopClient(), log: log}
}

// NewServiceWithClient wraps an existing client.
func NewServiceWithClient(client Client, log *slog.Logger) *Service {
	return &Service{client: client, log: log, enabled: true}
}

// NewService creates the embeddings service. The genai client is built on
// start; a failure leaves the service disabled rather than failing startup.
func NewService(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *Service {
	embCfg := cfg.Embeddings
	log = log.With(logger.Scope("embeddings"))
	svc := NewNoopService(log)

	if !embCfg.IsEnabled() {
		log.Info("embeddings service disabled - no configuration provided")
		return svc
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			gcfg := genai.Config{
				APIKey:    embCfg.GoogleAPIKey,
				Model:     embCfg.Model,
				Dimension: embCfg.Dimension,
			}
			if embCfg.UseVertexAI() {
				gcfg.Project = embCfg.GCPProjectID
				gcfg.Location = embCfg.VertexAILocation
			}
			log.Info("initializing embeddings client",
				slog.String("model", embCfg.Model),
				slog.Bool("vertex", gcfg.UseVertex()),
			)

			client, err := genai.NewClient(ctx, gcfg, genai.WithLogger(log))
			if err != nil {
				log.Error("failed to initialize embeddings client", logger.Error(err))
				return nil
			}
			svc.client = client
			svc.enabled = true
			return nil
		},
	})

	return svc
}

// IsEnabled returns true if embeddings are available
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// EmbedQuery generates an embedding for a single query
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.client.EmbedQuery(ctx, query)
}
