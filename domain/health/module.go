package health

import (
	"go.uber.org/fx"

	"github.com/Healer-AI/p8fs-sub000/internal/config"
	"github.com/Healer-AI/p8fs-sub000/internal/database"
	"github.com/Healer-AI/p8fs-sub000/pkg/embeddings"
)

var Module = fx.Module("health",
	fx.Provide(func(pool *database.Pool, emb *embeddings.Service, cfg *config.Config) *Handler {
		return NewHandler(pool, emb.IsEnabled, cfg)
	}),
	fx.Invoke(RegisterRoutes),
)
